package models

import (
	"context"
	"errors"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

type Resource interface {
	GetBusinessId() string
}

type RedisCleaner interface {
	RemoveInstanceRedis() error
}

// GetResource looks in redis first, then in db scoped to ctx's business, and
// caches what it finds. May return ErrorRecordNotFound.
func GetResource[T Resource](ctx context.Context, id int, associations ...string) (*T, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err := utils.RetrieveRedis[T](id)
	if err != nil {
		config.LogError(config.GetLogger(), utils.GetTypeName[T](), "GetResource", "redis read", id, err)
		result = nil
	}
	if result != nil {
		if (*result).GetBusinessId() != businessId {
			return nil, utils.ErrorRecordNotFound
		}
		return result, nil
	}
	result, err = utils.FetchModel[T](ctx, businessId, id, associations...)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[T](result, id); err != nil {
		config.LogError(config.GetLogger(), utils.GetTypeName[T](), "GetResource", "redis write", id, err)
	}
	return result, nil
}

// ToggleActiveModel flips is_active on one row and records history.
func ToggleActiveModel[T RedisCleaner](ctx context.Context, id int, isActive bool, referenceType string) (*T, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var result T
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&result, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := tx.Model(&result).UpdateColumn("is_active", isActive).Error; err != nil {
			return err
		}
		description := "deactivated " + utils.GetTypeName[T]()
		if isActive {
			description = "activated " + utils.GetTypeName[T]()
		}
		return createHistory(tx, HistoryActionUpdate, id, referenceType, nil, map[string]bool{"is_active": isActive}, description)
	})
	if err != nil {
		return nil, err
	}
	if err := result.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), utils.GetTypeName[T](), "ToggleActiveModel", "redis invalidate", id, err)
	}
	return &result, nil
}
