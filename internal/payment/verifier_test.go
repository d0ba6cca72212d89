package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/testutil"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/zarinpal"
)

type fakePayments struct {
	mu       sync.Mutex
	rows     map[string]*Payment
	locks    map[string]*sync.Mutex
	recorded int
}

func newFakePayments(ps ...Payment) *fakePayments {
	f := &fakePayments{rows: map[string]*Payment{}, locks: map[string]*sync.Mutex{}}
	for i := range ps {
		p := ps[i]
		f.rows[p.AuthorityID] = &p
		f.locks[p.AuthorityID] = &sync.Mutex{}
	}
	return f
}

func (f *fakePayments) CreateWithTx(ctx context.Context, tx pgx.Tx, p *Payment) error {
	return errors.New("not used")
}

func (f *fakePayments) LockByAuthorityWithTx(ctx context.Context, tx pgx.Tx, authority string) (*Payment, error) {
	f.mu.Lock()
	l, ok := f.locks[authority]
	f.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	l.Lock()
	testutil.Locked(tx, l.Unlock)

	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.rows[authority]
	return &cp, nil
}

func (f *fakePayments) RecordVerificationWithTx(ctx context.Context, tx pgx.Tx, p *Payment) error {
	f.mu.Lock()
	prev := *f.rows[p.AuthorityID]
	cp := *p
	f.rows[p.AuthorityID] = &cp
	f.recorded++
	f.mu.Unlock()

	testutil.Undo(tx, func() {
		f.mu.Lock()
		f.rows[p.AuthorityID] = &prev
		f.recorded--
		f.mu.Unlock()
	})
	return nil
}

func (f *fakePayments) get(authority string) Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[authority]
}

type fakeOrders struct {
	mu        sync.Mutex
	byPayment map[int64][]order.Order
	status    map[int64]order.Status
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byPayment: map[int64][]order.Order{}, status: map[int64]order.Status{}}
}

func (f *fakeOrders) add(paymentID int64, o order.Order) {
	f.byPayment[paymentID] = append(f.byPayment[paymentID], o)
	f.status[o.ID] = o.Status
}

func (f *fakeOrders) LockByPaymentWithTx(ctx context.Context, tx pgx.Tx, paymentID int64) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]order.Order(nil), f.byPayment[paymentID]...), nil
}

func (f *fakeOrders) SetStatusWithTx(ctx context.Context, tx pgx.Tx, orderID int64, status order.Status) error {
	f.mu.Lock()
	prev := f.status[orderID]
	f.status[orderID] = status
	f.mu.Unlock()
	testutil.Undo(tx, func() {
		f.mu.Lock()
		f.status[orderID] = prev
		f.mu.Unlock()
	})
	return nil
}

func (f *fakeOrders) statusOf(orderID int64) order.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[orderID]
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  int
	result zarinpal.Verification
	err    error
}

func (f *fakeGateway) VerifyPayment(ctx context.Context, amount decimal.Decimal, authority string) (zarinpal.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []events.PaymentVerifiedPayload
}

func (r *recordingPublisher) PublishPaymentVerified(ctx context.Context, meta events.EventMeta, p events.PaymentVerifiedPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return nil
}

type verifierFixture struct {
	verifier  *Verifier
	txs       *testutil.TxFactory
	payments  *fakePayments
	orders    *fakeOrders
	gateway   *fakeGateway
	publisher *recordingPublisher
}

func refID(v int64) *int64 { return &v }

func newFixture(gatewayCode int) *verifierFixture {
	f := &verifierFixture{
		txs: &testutil.TxFactory{},
		payments: newFakePayments(Payment{
			ID:          11,
			AuthorityID: "A1",
			Amount:      decimal.NewFromInt(1600),
			Status:      StatusPending,
		}),
		orders:    newFakeOrders(),
		gateway:   &fakeGateway{result: zarinpal.Verification{StatusCode: gatewayCode, RefID: refID(201), Raw: []byte(`{"Status":100}`)}},
		publisher: &recordingPublisher{},
	}
	f.orders.add(11, order.Order{ID: 7, UserID: 9, Status: order.StatusPending})
	f.verifier = NewVerifier(f.txs, f.payments, f.orders, f.gateway, f.publisher,
		metrics.New(prometheus.NewRegistry()), logging.Discard())
	return f
}

func TestVerifySuccess(t *testing.T) {
	f := newFixture(zarinpal.CodeSuccess)

	out, err := f.verifier.Verify(context.Background(), 9, "A1", "OK")
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, int64(7), out.OrderID)
	assert.Equal(t, NextStepCompleted, out.NextStep)
	require.NotNil(t, out.RefID)
	assert.Equal(t, int64(201), *out.RefID)
	assert.True(t, out.Amount.Equal(decimal.NewFromInt(1600)))

	p := f.payments.get("A1")
	assert.Equal(t, StatusSuccess, p.Status)
	require.NotNil(t, p.ResponseCode)
	assert.Equal(t, 100, *p.ResponseCode)
	assert.Equal(t, `{"Status":100}`, string(p.ResponseJSON))
	assert.Equal(t, order.StatusSuccess, f.orders.statusOf(7))
	assert.Len(t, f.publisher.payloads, 1)
}

func TestVerifyAlreadyVerifiedCodeIsSuccess(t *testing.T) {
	f := newFixture(zarinpal.CodeAlreadyVerified)

	out, err := f.verifier.Verify(context.Background(), 9, "A1", "OK")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, order.StatusSuccess, f.orders.statusOf(7))
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newFixture(zarinpal.CodeSuccess)
	ctx := context.Background()

	first, err := f.verifier.Verify(ctx, 9, "A1", "OK")
	require.NoError(t, err)
	second, err := f.verifier.Verify(ctx, 9, "A1", "OK")
	require.NoError(t, err)

	assert.Equal(t, 1, f.gateway.callCount())
	assert.Equal(t, 1, f.payments.recorded)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, *first.RefID, *second.RefID)
	assert.True(t, second.Cached)
	assert.Len(t, f.publisher.payloads, 1)
}

func TestVerifyConcurrentDuplicateCallbacks(t *testing.T) {
	f := newFixture(zarinpal.CodeSuccess)

	var wg sync.WaitGroup
	outs := make([]Outcome, 8)
	errs := make([]error, 8)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = f.verifier.Verify(context.Background(), 9, "A1", "OK")
		}(i)
	}
	wg.Wait()

	for i := range outs {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusSuccess, outs[i].Status)
		assert.Equal(t, int64(201), *outs[i].RefID)
	}
	assert.Equal(t, 1, f.gateway.callCount())
	assert.Equal(t, 1, f.payments.recorded)
}

func TestVerifyGatewayReportedFailure(t *testing.T) {
	f := newFixture(-51)
	f.gateway.result.RefID = nil

	out, err := f.verifier.Verify(context.Background(), 9, "A1", "OK")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, NextStepFailed, out.NextStep)
	assert.Equal(t, StatusFailed, f.payments.get("A1").Status)
	assert.Equal(t, order.StatusFailed, f.orders.statusOf(7))

	_, err = f.verifier.Verify(context.Background(), 9, "A1", "OK")
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.callCount())
}

func TestVerifyCancelledDoesNothing(t *testing.T) {
	f := newFixture(zarinpal.CodeSuccess)

	out, err := f.verifier.Verify(context.Background(), 9, "A1", "NOK")
	assert.Equal(t, apperr.CodeUserCancelled, apperr.CodeOf(err))
	assert.Equal(t, NextStepFailed, out.NextStep)
	assert.Zero(t, f.gateway.callCount())
	assert.Zero(t, f.txs.Count())
	assert.Equal(t, StatusPending, f.payments.get("A1").Status)
}

func TestVerifyErrors(t *testing.T) {
	tests := map[string]struct {
		setup     func(f *verifierFixture)
		userID    int64
		authority string
		status    string
		wantKind  apperr.Kind
		wantCode  apperr.Code
	}{
		"missing authority": {
			userID: 9, status: "OK",
			wantKind: apperr.KindValidation, wantCode: apperr.CodeInvalidRequest,
		},
		"missing status": {
			userID: 9, authority: "A1",
			wantKind: apperr.KindValidation, wantCode: apperr.CodeInvalidRequest,
		},
		"unknown authority": {
			userID: 9, authority: "A404", status: "OK",
			wantKind: apperr.KindNotFound, wantCode: apperr.CodeNotFound,
		},
		"orphaned payment": {
			setup: func(f *verifierFixture) {
				delete(f.orders.byPayment, 11)
			},
			userID: 9, authority: "A1", status: "OK",
			wantKind: apperr.KindIntegrity, wantCode: apperr.CodeOrphanedPayment,
		},
		"payment on two orders": {
			setup: func(f *verifierFixture) {
				f.orders.add(11, order.Order{ID: 8, UserID: 9, Status: order.StatusPending})
			},
			userID: 9, authority: "A1", status: "OK",
			wantKind: apperr.KindIntegrity, wantCode: apperr.CodeIntegrityViolation,
		},
		"other user's order": {
			userID: 10, authority: "A1", status: "OK",
			wantKind: apperr.KindAuthorization, wantCode: apperr.CodeForbidden,
		},
		"gateway unreachable": {
			setup: func(f *verifierFixture) {
				f.gateway.err = zarinpal.ErrGatewayUnavailable
			},
			userID: 9, authority: "A1", status: "OK",
			wantKind: apperr.KindGateway, wantCode: apperr.CodeGatewayUnavailable,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(zarinpal.CodeSuccess)
			if tc.setup != nil {
				tc.setup(f)
			}

			_, err := f.verifier.Verify(context.Background(), tc.userID, tc.authority, tc.status)
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, apperr.KindOf(err))
			assert.Equal(t, tc.wantCode, apperr.CodeOf(err))

			assert.Zero(t, f.payments.recorded)
			assert.Equal(t, StatusPending, f.payments.get("A1").Status)
			assert.Equal(t, order.StatusPending, f.orders.statusOf(7))
		})
	}
}
