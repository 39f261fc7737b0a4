package utils

import (
	"context"
	"errors"

	"github.com/rentiq/rentiq_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// FetchModel loads one row of T by id within businessId, preloading associations.
// A missing row yields ErrorRecordNotFound.
func FetchModel[T any](ctx context.Context, businessId string, id int, associations ...string) (*T, error) {
	return FetchModelTx[T](config.GetDB().WithContext(ctx), businessId, id, associations...)
}

// FetchModelTx is FetchModel inside an open transaction.
func FetchModelTx[T any](tx *gorm.DB, businessId string, id int, associations ...string) (*T, error) {
	q := tx.Where("business_id = ?", businessId)
	for _, field := range associations {
		q = q.Preload(field)
	}
	var result T
	if err := q.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// FetchAllModels loads every row of T within businessId.
func FetchAllModels[T any](ctx context.Context, businessId string, associations ...string) ([]*T, error) {
	q := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId)
	for _, field := range associations {
		q = q.Preload(field)
	}
	var results []*T
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
