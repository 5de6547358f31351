// Package txn defines the unit-of-work boundary shared by every store.
//
// A unit of work is carried in the context. Stores pick up the active SQL
// transaction with Conn, and in-memory stores register compensating actions
// with OnRollback. Nested RunInTx calls join the outer unit.
package txn

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chibuike-kt/risk-engine/internal/syncutil"
)

// Manager runs fn as one atomic unit of work.
type Manager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DBTX is the subset of *sql.DB and *sql.Tx the Postgres stores use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

type undoKey struct{}

// SQLManager opens one database transaction per unit of work.
type SQLManager struct {
	db *sql.DB
}

// NewSQLManager creates a manager backed by db.
func NewSQLManager(db *sql.DB) *SQLManager {
	return &SQLManager{db: db}
}

// RunInTx begins a READ COMMITTED transaction, runs fn and commits.
// Serialisation of contended resources comes from advisory locks taken inside fn.
func (m *SQLManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a SQL transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// MemoryManager serialises units of work over the in-memory stores and
// reverts their writes when a unit fails.
type MemoryManager struct {
	mu *syncutil.ContextMutex
}

// NewMemoryManager creates a manager for the in-memory backend.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{mu: syncutil.NewContextMutex()}
}

type undoLog struct {
	fns []func()
}

func (u *undoLog) rollback() {
	for i := len(u.fns) - 1; i >= 0; i-- {
		u.fns[i]()
	}
	u.fns = nil
}

// RunInTx runs fn while holding the unit-of-work lock. On error or panic the
// registered undo actions run in reverse order.
func (m *MemoryManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	unlock, err := m.mu.LockContext(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	log := &undoLog{}
	defer func() {
		if r := recover(); r != nil {
			log.rollback()
			panic(r)
		}
		if err != nil {
			log.rollback()
		}
	}()

	return fn(context.WithValue(ctx, undoKey{}, log))
}

// OnRollback registers undo to run if the surrounding in-memory unit fails.
// Outside a unit it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		log.fns = append(log.fns, undo)
	}
}

var (
	_ Manager = (*SQLManager)(nil)
	_ Manager = (*MemoryManager)(nil)
)
