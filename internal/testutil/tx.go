package testutil

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// FakeTx is a pgx.Tx for service tests. Fakes register undo functions with
// OnRollback so a rolled back transaction really discards their writes, and
// release simulated row locks with OnClose. Methods other than Commit and
// Rollback panic.
type FakeTx struct {
	pgx.Tx

	mu         sync.Mutex
	committed  bool
	rolledBack bool
	undo       []func()
	closers    []func()
	CommitErr  error
}

// OnClose registers fn to run once the transaction commits or rolls back.
func (t *FakeTx) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closers = append(t.closers, fn)
}

func (t *FakeTx) close() {
	t.mu.Lock()
	closers := t.closers
	t.closers = nil
	t.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func (t *FakeTx) OnRollback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

func (t *FakeTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.committed || t.rolledBack {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	if t.CommitErr != nil {
		t.mu.Unlock()
		_ = t.Rollback(ctx)
		return t.CommitErr
	}
	t.committed = true
	t.undo = nil
	t.mu.Unlock()
	t.close()
	return nil
}

func (t *FakeTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.committed || t.rolledBack {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	t.close()
	return nil
}

func (t *FakeTx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

func (t *FakeTx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}

// Undo registers fn on tx when it is a *FakeTx.
func Undo(tx pgx.Tx, fn func()) {
	if ft, ok := tx.(*FakeTx); ok {
		ft.OnRollback(fn)
	}
}

// Locked registers fn on tx to run when tx ends, for fakes that simulate row locks.
func Locked(tx pgx.Tx, release func()) {
	if ft, ok := tx.(*FakeTx); ok {
		ft.OnClose(release)
		return
	}
	release()
}

// TxFactory hands out FakeTx values and remembers them.
type TxFactory struct {
	mu  sync.Mutex
	Txs []*FakeTx
	Err error
}

func (f *TxFactory) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	tx := &FakeTx{}
	f.Txs = append(f.Txs, tx)
	return tx, nil
}

func (f *TxFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Txs)
}
