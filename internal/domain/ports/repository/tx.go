package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within a
// database transaction, passing the underlying transaction handle via `tx`.
//
// Repositories receiving a tx handle run their statements on it (and may lock
// rows with SELECT ... FOR UPDATE); a nil tx means the non-transactional path.
//
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//	ok, err := payments.TransitionIfPending(ctx, tx, id, model.PaymentStatusApproved, &now)
//	...
//	return entitlements.Create(ctx, tx, grant)
// })
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
