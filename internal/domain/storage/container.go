package storage

import (
	"context"
	"fmt"
	"time"

	"smilepay/internal/domain/activity"
	"smilepay/internal/domain/deliveries"
	"smilepay/internal/domain/invoices"
	"smilepay/internal/domain/sessions"
	"smilepay/internal/domain/settlements"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Container struct {
	pool        *pgxpool.Pool // IMPORTANT: set the pool so WithLedgerTx works
	Invoices    *invoices.Repository
	Sessions    *sessions.Repository
	Settlements *settlements.Repository
	Deliveries  *deliveries.Repository
	Activity    *activity.Repository
}

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{
		pool:        db,
		Invoices:    invoices.NewRepository(db),
		Sessions:    sessions.NewRepository(db, time.Now),
		Settlements: settlements.NewRepository(db),
		Deliveries:  deliveries.NewRepository(db),
		Activity:    activity.NewRepository(db),
	}
}

// LedgerTx is a tx-scoped set of repos for one settlement unit of work.
type LedgerTx struct {
	Invoices    invoices.Store
	Settlements settlements.Store
}

// WithLedgerTx runs fn atomically.
func (c *Container) WithLedgerTx(ctx context.Context, fn func(tx *LedgerTx) error) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil (did you forget to set pool in NewContainer?)")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // safe even if already committed
	}()

	s := &LedgerTx{
		Invoices:    invoices.NewRepository(tx),
		Settlements: settlements.NewRepository(tx),
	}

	if err := fn(s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (c *Container) Pool() *pgxpool.Pool { return c.pool }
