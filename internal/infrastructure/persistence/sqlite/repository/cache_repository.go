package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"feedstore/internal/errs"
	"feedstore/internal/infrastructure/persistence/sqlite/model"
	"feedstore/internal/ports"
)

// CacheRepository reads and writes feed cache rows. It joins the transaction
// carried by ctx when there is one.
type CacheRepository struct {
	db *gorm.DB
}

func NewCacheRepository(db *gorm.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

func (r *CacheRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// FindAll returns every cache row with its items in stored order.
func (r *CacheRepository) FindAll(ctx context.Context) ([]model.CacheRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.CacheRecord
	if err := db.
		Preload("Items", func(q *gorm.DB) *gorm.DB {
			return q.Order("position asc")
		}).
		Order("cache_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query feed caches")
	}
	return rows, nil
}

// DeleteAll removes every cache row and its items, returning how many caches
// were removed.
func (r *CacheRepository) DeleteAll(ctx context.Context) (int, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var cacheIDs []uint64
	if err := db.Model(&model.CacheRecord{}).Pluck("cache_id", &cacheIDs).Error; err != nil {
		return 0, errs.Wrap(err, "query feed cache ids")
	}
	if len(cacheIDs) == 0 {
		return 0, nil
	}

	// Items go first so the result does not depend on foreign key enforcement.
	if err := db.Where("cache_id IN ?", cacheIDs).Delete(&model.ItemRecord{}).Error; err != nil {
		return 0, errs.Wrap(err, "delete feed cache items")
	}
	if err := db.Where("cache_id IN ?", cacheIDs).Delete(&model.CacheRecord{}).Error; err != nil {
		return 0, errs.Wrap(err, "delete feed caches")
	}
	return len(cacheIDs), nil
}

// Create inserts record and its items.
func (r *CacheRepository) Create(ctx context.Context, record *model.CacheRecord) error {
	if record == nil {
		return errors.New("cache record is required")
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Create(record).Error; err != nil {
		return errs.Wrap(err, "create feed cache")
	}
	return nil
}
