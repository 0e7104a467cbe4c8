package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one storage transaction and hands the
// transaction handle to fn as tx. Repositories that receive a transactional
// handle lock the rows they read (SELECT ... FOR UPDATE), which is how every
// per-user read-modify-write is serialized. Repositories must accept NoTX
// for the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
