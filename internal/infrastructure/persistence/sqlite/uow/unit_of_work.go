package uow

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"feedstore/internal/errs"
	"feedstore/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm.
type UnitOfWork struct {
	db *gorm.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if fn == nil {
		return errors.New("transaction func is required")
	}

	if _, ok := ports.TxFromContext(ctx).(*gorm.DB); ok {
		return fn(ctx)
	}

	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
	if err != nil {
		return errs.Wrap(err, "run transaction")
	}
	return nil
}
