package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/coupon"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/sequence"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/sweeper"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/zarinpal"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("service", "checkout-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, log); err != nil {
			log.WithError(err).Fatal("run migrations")
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("connect redis")
	}

	var publisher events.DomainPublisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.WithError(err).Fatal("connect rabbitmq")
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn, sequence.NewRepository(pool), "checkout-service")
		if err != nil {
			log.WithError(err).Fatal("create event publisher")
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.WithError(err).Warn("close event publisher")
			}
		}()
		publisher = pub
	} else {
		log.Warn("RABBITMQ_URL not set, domain events are dropped")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gateway := zarinpal.NewClient(zarinpal.Config{
		MerchantID:  cfg.Zarinpal.MerchantID,
		BaseURL:     cfg.Zarinpal.BaseURL,
		CallbackURL: cfg.Zarinpal.CallbackURL,
		Timeout:     cfg.Zarinpal.Timeout,
	}, m, log)

	products := catalog.NewPostgresRepository(pool)
	orders := order.NewPostgresRepository(pool)
	stock := inventory.NewPostgresRepository(pool)
	coupons := coupon.NewPostgresRepository(pool)
	payments := payment.NewPostgresRepository()

	carts := cart.NewService(
		cart.NewRedisSessionStore(rdb, cfg.CartSessionTTL),
		cart.NewPostgresRepository(pool),
		products,
		log,
	)

	checkoutSvc := checkout.NewService(checkout.Deps{
		Pool:        pool,
		Carts:       carts,
		Products:    products,
		Addresses:   order.NewAddressRepository(pool),
		Orders:      orders,
		Stock:       stock,
		Coupons:     coupon.NewValidator(coupons, time.Now),
		Redemptions: coupons,
		Payments:    payments,
		Gateway:     gateway,
		Publisher:   publisher,
		Metrics:     m,
		Logger:      log,
	})
	verifier := payment.NewVerifier(pool, payments, orders, gateway, publisher, m, log)

	sweep := sweeper.New(pool, orders, stock, publisher, sweeper.Config{
		Expiry:   cfg.OrderExpiry,
		Interval: cfg.SweepInterval,
	}, m, log)

	h := httpapi.NewHandler(checkoutSvc, verifier, carts, orders, log)
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		Logger:           log,
		Metrics:          m,
		Gatherer:         reg,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	})
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("checkout-service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweep.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("checkout-service stopped with error")
		os.Exit(1)
	}
	log.Info("checkout-service stopped")
}
