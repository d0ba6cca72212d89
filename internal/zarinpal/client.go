// Package zarinpal is a client for the Zarinpal v4 payment gateway.
package zarinpal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
)

const (
	requestPath = "/pg/v4/payment/request.json"
	verifyPath  = "/pg/v4/payment/verify.json"
	startPath   = "/pg/StartPay/"

	// CodeSuccess and CodeAlreadyVerified both mean the payment is settled.
	CodeSuccess         = 100
	CodeAlreadyVerified = 101
)

// ErrGatewayUnavailable covers network errors, non-2xx responses, malformed
// bodies and an open circuit breaker.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

type Config struct {
	MerchantID  string
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
}

type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	cfg     Config
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
}

func NewClient(cfg Config, m *metrics.Metrics, logger logrus.FieldLogger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
	c.breaker = newBreaker("zarinpal", m, logger)
	return c
}

func newBreaker(name string, m *metrics.Metrics, logger logrus.FieldLogger) *gobreaker.CircuitBreaker {
	m.CircuitBreakerState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			m.CircuitBreakerState.WithLabelValues(cbName).Set(state)

			logger.WithFields(logrus.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
}

type paymentRequest struct {
	MerchantID  string            `json:"merchant_id"`
	Amount      int64             `json:"amount"`
	CallbackURL string            `json:"callback_url"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type paymentResponse struct {
	Data struct {
		Code      int    `json:"code"`
		Authority string `json:"authority"`
	} `json:"data"`
}

// RequestPayment registers a payment of amount and returns the gateway's
// authority handle. Metadata keys such as "mobile" or "email" are optional.
func (c *Client) RequestPayment(ctx context.Context, amount decimal.Decimal, description string, metadata map[string]string) (string, error) {
	body, err := c.post(ctx, "request", requestPath, paymentRequest{
		MerchantID:  c.cfg.MerchantID,
		Amount:      amount.IntPart(),
		CallbackURL: c.cfg.CallbackURL,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return "", err
	}

	var resp paymentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode request response: %v", ErrGatewayUnavailable, err)
	}
	if resp.Data.Authority == "" {
		return "", fmt.Errorf("%w: response has no authority", ErrGatewayUnavailable)
	}
	return resp.Data.Authority, nil
}

// RedirectURL is where the user completes payment for authority.
func (c *Client) RedirectURL(authority string) string {
	return c.cfg.BaseURL + startPath + authority
}

type verifyRequest struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

// verifyResponse accepts both the v4 envelope and the flat legacy shape.
type verifyResponse struct {
	Data *struct {
		Code  *int   `json:"code"`
		RefID *int64 `json:"ref_id"`
	} `json:"data"`
	Status *int   `json:"Status"`
	RefID  *int64 `json:"RefID"`
}

type Verification struct {
	StatusCode int
	RefID      *int64
	Raw        []byte
}

// Succeeded reports whether the gateway settled the payment.
func (v Verification) Succeeded() bool {
	return v.StatusCode == CodeSuccess || v.StatusCode == CodeAlreadyVerified
}

// VerifyPayment asks the gateway to settle authority. A non-success status code
// is a gateway-reported failure and is returned without error.
func (c *Client) VerifyPayment(ctx context.Context, amount decimal.Decimal, authority string) (Verification, error) {
	body, err := c.post(ctx, "verify", verifyPath, verifyRequest{
		MerchantID: c.cfg.MerchantID,
		Amount:     amount.IntPart(),
		Authority:  authority,
	})
	if err != nil {
		return Verification{}, err
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Verification{}, fmt.Errorf("%w: decode verify response: %v", ErrGatewayUnavailable, err)
	}

	v := Verification{Raw: body}
	switch {
	case resp.Data != nil && resp.Data.Code != nil:
		v.StatusCode = *resp.Data.Code
		v.RefID = resp.Data.RefID
	case resp.Status != nil:
		v.StatusCode = *resp.Status
		v.RefID = resp.RefID
	default:
		return Verification{}, fmt.Errorf("%w: verify response has no status", ErrGatewayUnavailable)
	}
	return v, nil
}

func (c *Client) post(ctx context.Context, operation, path string, payload any) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(path)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		c.metrics.GatewayRequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.WithError(err).WithField("operation", operation).Warn("payment gateway call failed")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit %s", ErrGatewayUnavailable, c.breaker.State())
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	c.metrics.GatewayRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return result.([]byte), nil
}
