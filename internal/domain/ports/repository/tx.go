package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle; nil means no transaction.
type Tx interface{}

// TransactionManager runs fn inside a storage transaction, passing the
// backend-specific handle (pgx.Tx for Postgres) as tx.
// Repositories accept a nil handle for the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
