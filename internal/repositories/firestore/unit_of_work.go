package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/ashgrove-goods/api/internal/platform/firestore"
)

// UnitOfWork groups repository operations into one Firestore transaction.
// The open transaction travels on the context, so a service can re-read an
// order and write the result atomically; a concurrent writer forces a retry
// instead of being overwritten.
type UnitOfWork struct {
	provider *pfirestore.Provider
}

// NewUnitOfWork constructs a Firestore-backed unit of work.
func NewUnitOfWork(provider *pfirestore.Provider) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work requires firestore provider")
	}
	return &UnitOfWork{provider: provider}, nil
}

// RunInTx executes fn inside a Firestore transaction. Nested calls reuse the
// transaction already on the context instead of opening a second one.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("unit of work not initialised")
	}
	if fn == nil {
		return errors.New("unit of work requires a function")
	}
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return fn(ctx)
	}
	return u.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.ContextWithTransaction(txCtx, tx))
	})
}
