package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
)

type errorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err through the apperr taxonomy. Integrity and internal
// failures are logged with their cause and answered generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err)
	}
	status := apperr.HTTPStatus(e.Kind)
	resp := errorResponse{
		Error:         e.Message,
		Code:          string(e.Code),
		Details:       e.Details,
		CorrelationID: events.CorrelationID(r.Context()),
	}

	if !apperr.Public(e.Kind) {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"path": r.URL.Path,
			"kind": e.Kind,
			"code": e.Code,
		}).Error("request failed")
		resp.Error = "internal error"
		resp.Code = string(apperr.CodeInternalError)
		resp.Details = nil
	}
	writeJSON(w, status, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, apperr.Validation(apperr.CodeInvalidRequest, "invalid json"))
		return false
	}
	return true
}
