//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/coupon"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/payment"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/sweeper"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/zarinpal"
)

func startPostgres(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "shop"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/shop?sslmode=disable", host, mappedPort.Port())
	return container, dsn
}

func startRabbitMQ(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("amqp://guest:guest@%s:%s/", host, mappedPort.Port())
}

func terminateContainer(t *testing.T, c testcontainers.Container) {
	t.Helper()
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(terminateCtx))
}

// fakeZarinpal answers the request and verify endpoints of the gateway.
type fakeZarinpal struct {
	server      *httptest.Server
	requests    atomic.Int64
	verifyCalls atomic.Int64

	mu         sync.Mutex
	verifyCode int
}

func newFakeZarinpal(t *testing.T) *fakeZarinpal {
	t.Helper()
	f := &fakeZarinpal{verifyCode: zarinpal.CodeSuccess}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /pg/v4/payment/request.json", func(w http.ResponseWriter, r *http.Request) {
		n := f.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"code": 100, "authority": fmt.Sprintf("A%035d", n)},
		})
	})
	mux.HandleFunc("POST /pg/v4/payment/verify.json", func(w http.ResponseWriter, r *http.Request) {
		n := f.verifyCalls.Add(1)
		f.mu.Lock()
		code := f.verifyCode
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"Status": code, "RefID": 9000 + n})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

type app struct {
	pool     *pgxpool.Pool
	carts    *cart.Service
	checkout *checkout.Service
	verifier *payment.Verifier
	sweeper  *sweeper.Sweeper
	stock    *inventory.PostgresRepository
	gateway  *fakeZarinpal
}

func newApp(ctx context.Context, t *testing.T, dsn string, publisher events.DomainPublisher) *app {
	t.Helper()

	logger := logging.Discard()
	require.NoError(t, db.RunMigrations(dsn, logger))

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	m := metrics.New(prometheus.NewRegistry())
	gw := newFakeZarinpal(t)
	client := zarinpal.NewClient(zarinpal.Config{
		MerchantID:  "merchant",
		BaseURL:     gw.server.URL,
		CallbackURL: "http://localhost/payment/verify",
		Timeout:     5 * time.Second,
	}, m, logger)

	products := catalog.NewPostgresRepository(pool)
	orders := order.NewPostgresRepository(pool)
	stock := inventory.NewPostgresRepository(pool)
	coupons := coupon.NewPostgresRepository(pool)
	payments := payment.NewPostgresRepository()
	carts := cart.NewService(cart.NewRedisSessionStore(rdb, time.Hour), cart.NewPostgresRepository(pool), products, logger)

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
		Gateway:     client,
		Publisher:   publisher,
		Metrics:     m,
		Logger:      logger,
	})

	return &app{
		pool:     pool,
		carts:    carts,
		checkout: checkoutSvc,
		verifier: payment.NewVerifier(pool, payments, orders, client, publisher, m, logger),
		sweeper:  sweeper.New(pool, orders, stock, publisher, sweeper.Config{}, m, logger),
		stock:    stock,
		gateway:  gw,
	}
}

func (a *app) seedProduct(ctx context.Context, t *testing.T, price int64, stock int) int64 {
	t.Helper()
	var id int64
	err := a.pool.QueryRow(ctx, `
		INSERT INTO products (title, price, stock, status)
		VALUES ($1, $2, $3, 'publish')
		RETURNING id
	`, fmt.Sprintf("product-%d", time.Now().UnixNano()), price, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func (a *app) seedAddress(ctx context.Context, t *testing.T, userID int64) int64 {
	t.Helper()
	var id int64
	err := a.pool.QueryRow(ctx, `
		INSERT INTO user_addresses (user_id, address, state, city, zip_code)
		VALUES ($1, '1 Main St', 'Tehran', 'Tehran', '12345')
		RETURNING id
	`, userID).Scan(&id)
	require.NoError(t, err)
	return id
}

func (a *app) seedCoupon(ctx context.Context, t *testing.T, code string, percent, maxUsage int) int64 {
	t.Helper()
	var id int64
	err := a.pool.QueryRow(ctx, `
		INSERT INTO coupons (code, discount_percent, max_limit_usage)
		VALUES ($1, $2, $3)
		RETURNING id
	`, code, percent, maxUsage).Scan(&id)
	require.NoError(t, err)
	return id
}

func (a *app) fillCart(ctx context.Context, t *testing.T, userID, productID int64, qty int) {
	t.Helper()
	owner := cart.Owner{UserID: userID}
	for i := 0; i < qty; i++ {
		_, err := a.carts.Add(ctx, owner, productID)
		require.NoError(t, err)
	}
}

func (a *app) stockOf(ctx context.Context, t *testing.T, productID int64) int {
	t.Helper()
	var stock int
	require.NoError(t, a.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock))
	return stock
}

func (a *app) count(ctx context.Context, t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, a.pool.QueryRow(ctx, query, args...).Scan(&n))
	return n
}
