package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"contactlink/internal/contact/service"
	txcontext "contactlink/pkg/platform/tx"
)

// PostgresTx runs a resolution in one database transaction and serializes it
// with transaction-scoped advisory locks, one per cluster key. Locks release
// on commit or rollback.
type PostgresTx struct {
	db      *sql.DB
	store   service.Store
	timeout time.Duration
}

// NewPostgresTx wraps a store whose queries join the transaction carried in
// the context (see pkg/platform/tx).
func NewPostgresTx(db *sql.DB, store service.Store) *PostgresTx {
	return &PostgresTx{db: db, store: store}
}

func (t *PostgresTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store service.Store, held service.KeySet) error) error {
	if err := service.CheckContext(ctx); err != nil {
		return err
	}
	ctx, cancel := service.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cluster tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	sorted := service.SortedKeys(keys)
	for _, key := range sorted {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			if ctxErr := service.CheckContext(ctx); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("acquire advisory lock %s: %w", key, err)
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx), t.store, service.NewHeldKeys(sorted)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cluster tx: %w", err)
	}
	return nil
}
