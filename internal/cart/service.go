package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/pricing"
)

type SessionStore interface {
	Load(ctx context.Context, sessionID string) ([]Item, error)
	Save(ctx context.Context, sessionID string, items []Item) error
	Clear(ctx context.Context, sessionID string) error
}

type Repository interface {
	Load(ctx context.Context, userID int64) ([]Item, error)
	Save(ctx context.Context, userID int64, items []Item) error
	Clear(ctx context.Context, userID int64) error
}

type Catalog interface {
	Get(ctx context.Context, productID int64) (catalog.Product, error)
	GetMany(ctx context.Context, productIDs []int64) (map[int64]catalog.Product, error)
}

type Service struct {
	sessions SessionStore
	carts    Repository
	products Catalog
	logger   logrus.FieldLogger
}

func NewService(sessions SessionStore, carts Repository, products Catalog, logger logrus.FieldLogger) *Service {
	return &Service{sessions: sessions, carts: carts, products: products, logger: logger}
}

func (s *Service) Load(ctx context.Context, owner Owner) ([]Item, error) {
	if owner.Authenticated() {
		return s.carts.Load(ctx, owner.UserID)
	}
	if owner.SessionID == "" {
		return nil, nil
	}
	return s.sessions.Load(ctx, owner.SessionID)
}

func (s *Service) save(ctx context.Context, owner Owner, items []Item) error {
	if owner.Authenticated() {
		return s.carts.Save(ctx, owner.UserID, items)
	}
	if owner.SessionID == "" {
		return fmt.Errorf("save cart: no session")
	}
	return s.sessions.Save(ctx, owner.SessionID, items)
}

// Add increments the product's quantity by one, inserting it at one when absent.
func (s *Service) Add(ctx context.Context, owner Owner, productID int64) (Item, error) {
	p, err := s.publishedProduct(ctx, productID)
	if err != nil {
		return Item{}, err
	}

	items, err := s.Load(ctx, owner)
	if err != nil {
		return Item{}, err
	}
	qty := toMap(items)
	if qty[productID]+1 > p.Stock {
		return Item{}, ErrExceedsStock
	}
	qty[productID]++

	if err := s.save(ctx, owner, fromMap(qty)); err != nil {
		return Item{}, err
	}
	return Item{ProductID: productID, Quantity: qty[productID]}, nil
}

func (s *Service) Remove(ctx context.Context, owner Owner, productID int64) error {
	items, err := s.Load(ctx, owner)
	if err != nil {
		return err
	}
	qty := toMap(items)
	if _, ok := qty[productID]; !ok {
		return ErrNotInCart
	}
	delete(qty, productID)
	return s.save(ctx, owner, fromMap(qty))
}

// UpdateQuantity sets an absolute quantity. Zero or negative quantities are
// rejected; callers remove the line instead.
func (s *Service) UpdateQuantity(ctx context.Context, owner Owner, productID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	items, err := s.Load(ctx, owner)
	if err != nil {
		return err
	}
	qty := toMap(items)
	if _, ok := qty[productID]; !ok {
		return ErrNotInCart
	}

	p, err := s.publishedProduct(ctx, productID)
	if err != nil {
		return err
	}
	if quantity > p.Stock {
		return &StockError{ProductID: productID, MaxStock: p.Stock}
	}

	qty[productID] = quantity
	return s.save(ctx, owner, fromMap(qty))
}

func (s *Service) Contains(ctx context.Context, owner Owner, productID int64) (bool, int, error) {
	items, err := s.Load(ctx, owner)
	if err != nil {
		return false, 0, err
	}
	q, ok := toMap(items)[productID]
	return ok, q, nil
}

// Summary prices the cart with live catalog data. Unpublished or missing
// products are left out.
func (s *Service) Summary(ctx context.Context, owner Owner) (Summary, error) {
	items, err := s.Load(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	products, err := s.products.GetMany(ctx, productIDs(items))
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Items: []Line{}, TotalPrice: decimal.Zero}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok || !p.Published() {
			continue
		}
		unit := p.UnitPrice()
		line := Line{
			ProductID: p.ID,
			Title:     p.Title,
			Quantity:  it.Quantity,
			Stock:     p.Stock,
			UnitPrice: unit,
			LineTotal: pricing.LineTotal(unit, it.Quantity),
		}
		sum.Items = append(sum.Items, line)
		sum.TotalQuantity += it.Quantity
		sum.TotalPrice = sum.TotalPrice.Add(line.LineTotal)
	}
	return sum, nil
}

// Revalidate fits the cart to current stock: lines with no stock or no
// longer published are dropped, lines above stock are clamped. The adjusted
// cart is persisted and the changes returned.
func (s *Service) Revalidate(ctx context.Context, owner Owner) ([]Item, []Adjustment, error) {
	items, err := s.Load(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	products, err := s.products.GetMany(ctx, productIDs(items))
	if err != nil {
		return nil, nil, err
	}

	var adjustments []Adjustment
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		switch {
		case !ok || !p.Published() || p.Stock <= 0:
			available := 0
			if ok {
				available = p.Stock
			}
			adjustments = append(adjustments, Adjustment{ProductID: it.ProductID, Requested: it.Quantity, Available: available, Removed: true})
		case it.Quantity > p.Stock:
			adjustments = append(adjustments, Adjustment{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Stock})
			kept = append(kept, Item{ProductID: it.ProductID, Quantity: p.Stock})
		default:
			kept = append(kept, it)
		}
	}

	if len(adjustments) > 0 {
		if err := s.save(ctx, owner, kept); err != nil {
			return nil, nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"user_id":     owner.UserID,
			"adjustments": len(adjustments),
		}).Info("cart adjusted to stock")
	}
	return kept, adjustments, nil
}

// Clear empties both the durable and the session cart of owner.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	if owner.Authenticated() {
		if err := s.carts.Clear(ctx, owner.UserID); err != nil {
			return err
		}
	}
	if owner.SessionID != "" {
		if err := s.sessions.Clear(ctx, owner.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// Merge folds the anonymous session cart into the user's durable cart on
// login. The session cart is cleared once the durable cart is written.
func (s *Service) Merge(ctx context.Context, sessionID string, userID int64) ([]Item, error) {
	durable, err := s.carts.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return durable, nil
	}
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(session) == 0 {
		return durable, nil
	}

	merged := MergeItems(session, durable)
	if err := s.carts.Save(ctx, userID, merged); err != nil {
		return nil, err
	}
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		// best effort: a leftover session cart merges to the same result next time
		s.logger.WithError(err).WithField("user_id", userID).Warn("clear session cart after merge")
	}
	return merged, nil
}

func (s *Service) publishedProduct(ctx context.Context, productID int64) (catalog.Product, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Product{}, ErrProductNotFound
		}
		return catalog.Product{}, err
	}
	if !p.Published() {
		return catalog.Product{}, ErrProductNotFound
	}
	return p, nil
}

// StockError reports a requested quantity above the available stock.
type StockError struct {
	ProductID int64
	MaxStock  int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %d: quantity exceeds stock of %d", e.ProductID, e.MaxStock)
}

func (e *StockError) Is(target error) bool { return target == ErrExceedsStock }
