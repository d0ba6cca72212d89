// Package sweeper fails pending orders whose payment was abandoned and
// returns their stock.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

const (
	DefaultExpiry    = 11 * time.Minute
	DefaultInterval  = time.Minute
	DefaultBatchSize = 100
)

type Orders interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
	LockPendingWithTx(ctx context.Context, tx pgx.Tx, orderID int64) (*order.Order, error)
	SetStatusWithTx(ctx context.Context, tx pgx.Tx, orderID int64, status order.Status) error
	ItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64) ([]order.Item, error)
	DeleteItemsWithTx(ctx context.Context, tx pgx.Tx, orderID int64) error
}

type Stock interface {
	ReleaseWithTx(ctx context.Context, tx pgx.Tx, lines []inventory.Line) error
}

type Publisher interface {
	PublishOrderExpired(ctx context.Context, meta events.EventMeta, payload events.OrderExpiredPayload) error
}

type Config struct {
	Expiry    time.Duration
	Interval  time.Duration
	BatchSize int
}

type Sweeper struct {
	pool      db.TxBeginner
	orders    Orders
	stock     Stock
	publisher Publisher
	cfg       Config
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
	now       func() time.Time
}

func New(pool db.TxBeginner, orders Orders, stock Stock, publisher Publisher, cfg Config, m *metrics.Metrics, logger logrus.FieldLogger) *Sweeper {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Sweeper{
		pool:      pool,
		orders:    orders,
		stock:     stock,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.WithField("component", "sweeper"),
		now:       time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"expiry":   s.cfg.Expiry.String(),
		"interval": s.cfg.Interval.String(),
	}).Info("expiry sweeper started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("expiry sweep failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every pending order older than the expiry window and
// returns how many it expired. Each order is handled in its own transaction;
// a failing order is logged and counted but does not stop the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Expiry)
	ids, err := s.orders.ListStalePending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := s.expire(ctx, id)
		if err != nil {
			s.metrics.SweepFailuresTotal.Inc()
			s.logger.WithError(err).WithField("order_id", id).Error("expire order")
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("expired stale orders")
	}
	return expired, nil
}

// expire reports false when the order was paid, expired or locked by someone
// else since it was listed.
func (s *Sweeper) expire(ctx context.Context, orderID int64) (bool, error) {
	var (
		o     *order.Order
		lines []inventory.Line
		units int
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		o, err = s.orders.LockPendingWithTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := s.orders.SetStatusWithTx(ctx, tx, orderID, order.StatusFailed); err != nil {
			return err
		}

		items, err := s.orders.ItemsWithTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
			units += it.Quantity
		}
		if err := s.stock.ReleaseWithTx(ctx, tx, lines); err != nil {
			return err
		}
		return s.orders.DeleteItemsWithTx(ctx, tx, orderID)
	})
	if errors.Is(err, order.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.metrics.ExpiredOrdersTotal.Inc()
	s.metrics.RestoredUnitsTotal.Add(float64(units))
	s.logger.WithFields(logrus.Fields{"order_id": orderID, "user_id": o.UserID, "units": units}).
		Info("order expired")

	restored := make([]events.RestoredLine, 0, len(lines))
	for _, l := range lines {
		restored = append(restored, events.RestoredLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	payload := events.OrderExpiredPayload{
		OrderID:   orderID,
		UserID:    o.UserID,
		Restored:  restored,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.PublishOrderExpired(ctx, events.MetaFor(ctx, orderID), payload); err != nil {
		s.metrics.EventPublishFailures.WithLabelValues(events.EventTypeOrderExpired).Inc()
		s.logger.WithError(err).WithField("order_id", orderID).Warn("publish order expired")
	}
	return true, nil
}
