// Package tx carries a SQL transaction through the context so stores taking
// part in one logical write share it without knowing about each other.
package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "timekeep/pkg/domain-errors"
)

type ctxKey struct{}

type scopeKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes fn atomically.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// scope collects the hooks of one outermost RunInTx call.
type scope struct {
	mu          sync.Mutex
	undo        []func()
	afterCommit []func()
}

func scopeFrom(ctx context.Context) (*scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(*scope)
	return sc, ok
}

// OnRollback registers fn to run if the surrounding transaction fails.
// In-memory stores use it to undo their writes. Outside a transaction it does
// nothing.
func OnRollback(ctx context.Context, fn func()) {
	if sc, ok := scopeFrom(ctx); ok {
		sc.mu.Lock()
		sc.undo = append(sc.undo, fn)
		sc.mu.Unlock()
	}
}

// AfterCommit registers fn to run once the surrounding transaction has
// committed. Outside a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	sc, ok := scopeFrom(ctx)
	if !ok {
		fn()
		return
	}
	sc.mu.Lock()
	sc.afterCommit = append(sc.afterCommit, fn)
	sc.mu.Unlock()
}

// run executes fn in a fresh scope. commit finishes the underlying
// transaction; rollback hooks run in reverse order when fn or commit fails.
func run(ctx context.Context, fn func(ctx context.Context) error, commit func() error) error {
	sc := &scope{}
	err := fn(context.WithValue(ctx, scopeKey{}, sc))
	if err == nil {
		err = commit()
	}
	sc.mu.Lock()
	undo, after := sc.undo, sc.afterCommit
	sc.mu.Unlock()
	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	for _, f := range after {
		f()
	}
	return nil
}

// MemoryRunner gives in-memory stores all-or-nothing writes: stores register
// undo hooks with OnRollback and they run when fn fails. Readers outside the
// per-key lock may observe a write before it is undone.
type MemoryRunner struct{}

func (MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := scopeFrom(ctx); ok {
		return fn(ctx)
	}
	return run(ctx, fn, func() error { return nil })
}

const defaultTxTimeout = 5 * time.Second

// SQLRunner opens a transaction per call. A transaction already present in
// ctx is joined rather than nested.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db, timeout: defaultTxTimeout}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	if _, ok := scopeFrom(ctx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	return run(WithTx(ctx, sqlTx), fn, sqlTx.Commit)
}
