package postgres

import (
	"context"
	"database/sql"
	"time"

	txcontext "masterdata/pkg/platform/tx"
)

const defaultTxTimeout = 10 * time.Second

// Store implements the full persistence contract over PostgreSQL. Commands
// run their reads and writes through RunInTx, which stashes the *sql.Tx in
// the context; every method picks the transaction up via execer so the same
// store code serves both transactional and standalone calls.
type Store struct {
	db        *sql.DB
	txTimeout time.Duration
}

func New(db *sql.DB) *Store {
	return &Store{db: db, txTimeout: defaultTxTimeout}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx executes fn inside one database transaction. The transaction is
// carried in the context so nested store calls join it transparently.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ctx, hooks := txcontext.WithHooks(txcontext.WithTx(ctx, tx))
	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	hooks.Run()
	return nil
}
