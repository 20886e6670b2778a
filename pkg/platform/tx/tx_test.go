package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEmptyContext(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
}

func TestWithNilTxLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))
}

func TestWithTxRoundTrip(t *testing.T) {
	tx := &sql.Tx{}
	got, ok := From(WithTx(context.Background(), tx))
	assert.True(t, ok)
	assert.Same(t, tx, got)
}

func TestMemoryRunnerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	err := MemoryRunner{}.RunInTx(context.Background(), func(context.Context) error {
		called = true
		return boom
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, boom)
}

func TestMemoryRunnerUndoesInReverseOnFailure(t *testing.T) {
	var undone []string
	committed := false
	err := MemoryRunner{}.RunInTx(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { undone = append(undone, "span") })
		OnRollback(ctx, func() { undone = append(undone, "punch") })
		AfterCommit(ctx, func() { committed = true })
		return errors.New("audit write failed")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"punch", "span"}, undone)
	assert.False(t, committed)
}

func TestMemoryRunnerRunsAfterCommitOnSuccess(t *testing.T) {
	var order []string
	err := MemoryRunner{}.RunInTx(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { order = append(order, "undo") })
		AfterCommit(ctx, func() { order = append(order, "offer") })
		order = append(order, "write")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"write", "offer"}, order)
}

func TestMemoryRunnerJoinsOuterScope(t *testing.T) {
	var undone int
	err := MemoryRunner{}.RunInTx(context.Background(), func(ctx context.Context) error {
		inner := MemoryRunner{}.RunInTx(ctx, func(ctx context.Context) error {
			OnRollback(ctx, func() { undone++ })
			return nil
		})
		require.NoError(t, inner)
		assert.Zero(t, undone, "inner success must not finish the outer scope")
		return errors.New("outer failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, undone)
}

func TestHooksOutsideTransaction(t *testing.T) {
	ran := false
	OnRollback(context.Background(), func() { t.Fatal("rollback hook ran without a transaction") })
	AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}

func TestSQLRunnerRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSQLRunner(nil).RunInTx(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
