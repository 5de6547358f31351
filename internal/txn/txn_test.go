package txn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryManager_CommitKeepsWrites(t *testing.T) {
	m := NewMemoryManager()
	var state []string

	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		state = append(state, "a")
		OnRollback(ctx, func() { state = state[:len(state)-1] })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, state)
}

func TestMemoryManager_ErrorRunsUndoInReverse(t *testing.T) {
	m := NewMemoryManager()
	var order []int
	boom := errors.New("boom")

	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { order = append(order, 1) })
		OnRollback(ctx, func() { order = append(order, 2) })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{2, 1}, order)
}

func TestMemoryManager_NestedJoinsOuterUnit(t *testing.T) {
	m := NewMemoryManager()
	undone := false

	err := m.RunInTx(context.Background(), func(ctx context.Context) error {
		// A nested call must not deadlock on the unit lock.
		if err := m.RunInTx(ctx, func(ctx context.Context) error {
			OnRollback(ctx, func() { undone = true })
			return nil
		}); err != nil {
			return err
		}
		return errors.New("outer failed")
	})
	assert.Error(t, err)
	assert.True(t, undone, "inner write should roll back with the outer unit")
}

func TestMemoryManager_PanicRollsBack(t *testing.T) {
	m := NewMemoryManager()
	undone := false

	assert.Panics(t, func() {
		_ = m.RunInTx(context.Background(), func(ctx context.Context) error {
			OnRollback(ctx, func() { undone = true })
			panic("kaboom")
		})
	})
	assert.True(t, undone)

	// Lock released after the panic.
	require.NoError(t, m.RunInTx(context.Background(), func(context.Context) error { return nil }))
}

func TestMemoryManager_Serialises(t *testing.T) {
	m := NewMemoryManager()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RunInTx(context.Background(), func(context.Context) error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestOnRollback_OutsideUnitIsNoop(t *testing.T) {
	called := false
	OnRollback(context.Background(), func() { called = true })
	assert.False(t, called)
	assert.False(t, InTx(context.Background()))
}
