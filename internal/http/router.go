package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
)

type RouterConfig struct {
	Logger           logrus.FieldLogger
	Metrics          *metrics.Metrics
	Gatherer         prometheus.Gatherer
	CORSAllowOrigins []string
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationID)
	r.Use(RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSAllowOrigins))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(Identity)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/summary", h.CartSummary)
			r.Post("/add", h.CartAdd)
			r.Post("/remove", h.CartRemove)
			r.Post("/update-quantity", h.CartUpdateQuantity)
			r.Post("/check", h.CartCheck)
			r.With(RequireUser).Post("/merge", h.CartMerge)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Post("/order/checkout", h.Checkout)
			r.Post("/order/validate-coupon", h.ValidateCoupon)
			r.Get("/payment/verify", h.VerifyPayment)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{orderID}", h.GetOrder)
		})
	})

	return r
}
