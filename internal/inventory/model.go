package inventory

type Line struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type DepletedLine struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

type ReserveResult struct {
	Reserved []Line
	Depleted []DepletedLine
}
