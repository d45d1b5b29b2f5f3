package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/backoffice/backend/internal/domain/billing"
)

type txContextKey struct{}

// GormTxRunner implements billing.TxRunner on a GORM connection. The open
// transaction rides along on the context, so repositories called inside
// the closure automatically join it.
type GormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner creates a transaction runner
func NewGormTxRunner(db *gorm.DB) *GormTxRunner {
	return &GormTxRunner{db: db}
}

// InTx runs fn inside one transaction, committing on nil and rolling back
// on error
func (r *GormTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

// dbFromContext returns the transaction bound to ctx, or fallback when the
// call is not transactional
func dbFromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return fallback.WithContext(ctx)
}

var _ billing.TxRunner = (*GormTxRunner)(nil)
