// Package tx carries an open database transaction through a context so
// store methods called inside a command join the command's transaction
// instead of talking to the pool directly.
package tx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// WithTx returns a context whose store calls run on tx. A nil tx leaves
// the context untouched.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// From reports the transaction carried by ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
