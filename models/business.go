package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

const (
	DefaultChallanPrefix     = "CH"
	DefaultMinimumRentalDays = 1
	DefaultTimezone          = "Asia/Kolkata"
	DefaultCurrencySymbol    = "₹"
	DefaultLowStockThreshold = 5
)

type Business struct {
	ID                uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name              string    `gorm:"index;size:100;not null" json:"name"`
	Email             string    `gorm:"size:255" json:"email"`
	Phone             string    `gorm:"size:20" json:"phone"`
	Address           string    `gorm:"type:text" json:"address"`
	Timezone          string    `gorm:"size:50" json:"timezone"`
	CurrencySymbol    string    `gorm:"size:10" json:"currency_symbol"`
	ChallanPrefix     string    `gorm:"size:10;not null;default:'CH'" json:"challan_prefix"`
	MinimumRentalDays int       `gorm:"not null;default:1" json:"minimum_rental_days"`
	LowStockThreshold int       `gorm:"not null;default:5" json:"low_stock_threshold"`
	ChallanSeq        int       `gorm:"not null;default:0" json:"-"`
	IsActive          *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name              string `json:"name" binding:"required"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Address           string `json:"address"`
	Timezone          string `json:"timezone"`
	CurrencySymbol    string `json:"currency_symbol"`
	ChallanPrefix     string `json:"challan_prefix"`
	MinimumRentalDays int    `json:"minimum_rental_days"`
	LowStockThreshold *int   `json:"low_stock_threshold"`
}

/*
caches:
	Business:$id
*/

func (business *Business) StoreRedis() error {
	return config.SetRedisObject("Business:"+business.ID.String(), business, utils.GetCacheLifespan())
}

func (business *Business) RemoveRedis() error {
	return config.RemoveRedisKey("Business:" + business.ID.String())
}

func (input *NewBusiness) normalize() error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return utils.NewValidationError("name", "is required")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "is invalid")
	}
	if input.Phone != "" {
		phone, err := utils.FormatPhoneNumber(input.Phone, config.DefaultCountryCode())
		if err != nil {
			return utils.NewValidationError("phone", err.Error())
		}
		input.Phone = phone
	}
	if input.Timezone == "" {
		input.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(input.Timezone); err != nil {
		return utils.NewValidationError("timezone", "is unknown")
	}
	if input.CurrencySymbol == "" {
		input.CurrencySymbol = DefaultCurrencySymbol
	}
	input.ChallanPrefix = strings.ToUpper(strings.TrimSpace(input.ChallanPrefix))
	if input.ChallanPrefix == "" {
		input.ChallanPrefix = DefaultChallanPrefix
	}
	if len(input.ChallanPrefix) > 10 {
		return utils.NewValidationError("challan_prefix", "must be at most 10 characters")
	}
	if input.MinimumRentalDays <= 0 {
		input.MinimumRentalDays = DefaultMinimumRentalDays
	}
	if input.LowStockThreshold != nil && *input.LowStockThreshold < 0 {
		return utils.NewValidationError("low_stock_threshold", "cannot be negative")
	}
	return nil
}

func createBusinessTx(tx *gorm.DB, input *NewBusiness) (*Business, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	threshold := DefaultLowStockThreshold
	if input.LowStockThreshold != nil {
		threshold = *input.LowStockThreshold
	}
	business := Business{
		ID:                uuid.New(),
		Name:              input.Name,
		Email:             input.Email,
		Phone:             input.Phone,
		Address:           input.Address,
		Timezone:          input.Timezone,
		CurrencySymbol:    input.CurrencySymbol,
		ChallanPrefix:     input.ChallanPrefix,
		MinimumRentalDays: input.MinimumRentalDays,
		LowStockThreshold: threshold,
		IsActive:          boolPtr(true),
	}
	if err := tx.Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// CreateBusiness creates a standalone business. Admin bootstrap goes through BootstrapAdmin.
func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	var business *Business
	err := inTx(ctx, func(tx *gorm.DB) error {
		var err error
		business, err = createBusinessTx(tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return business, nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	if businessId == "" {
		return nil, ErrBusinessRequired
	}
	var result Business
	exists, err := config.GetRedisObject("Business:"+businessId, &result)
	if err != nil {
		config.LogError(config.GetLogger(), "Business", "GetBusinessById", "redis read", businessId, err)
	}
	if exists {
		return &result, nil
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Where("id = ?", businessId).Take(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := result.StoreRedis(); err != nil {
		config.LogError(config.GetLogger(), "Business", "GetBusinessById", "redis write", businessId, err)
	}
	return &result, nil
}

// GetBusiness returns the business of the current context.
func GetBusiness(ctx context.Context) (*Business, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return GetBusinessById(ctx, businessId)
}

func UpdateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.normalize(); err != nil {
		return nil, err
	}
	var business Business
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("id = ?", businessId).Take(&business).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		before := business
		updates := map[string]interface{}{
			"Name":              input.Name,
			"Email":             input.Email,
			"Phone":             input.Phone,
			"Address":           input.Address,
			"Timezone":          input.Timezone,
			"CurrencySymbol":    input.CurrencySymbol,
			"ChallanPrefix":     input.ChallanPrefix,
			"MinimumRentalDays": input.MinimumRentalDays,
		}
		if input.LowStockThreshold != nil {
			updates["LowStockThreshold"] = *input.LowStockThreshold
		}
		if err := tx.Model(&business).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", businessId).Take(&business).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionUpdate, 0, ReferenceTypeBusiness, before, business, "Updated business settings")
	})
	if err != nil {
		return nil, err
	}
	if err := business.RemoveRedis(); err != nil {
		config.LogError(config.GetLogger(), "Business", "UpdateBusiness", "redis invalidate", businessId, err)
	}
	return &business, nil
}

// nextChallanNumber increments the business counter under a row lock and
// formats the next challan number.
func nextChallanNumber(tx *gorm.DB, businessId string) (string, error) {
	var business Business
	if err := forUpdate(tx).Where("id = ?", businessId).Take(&business).Error; err != nil {
		return "", err
	}
	seq := business.ChallanSeq + 1
	if err := tx.Model(&Business{}).Where("id = ?", businessId).Update("challan_seq", seq).Error; err != nil {
		return "", err
	}
	return FormatChallanNumber(business.ChallanPrefix, seq), nil
}
