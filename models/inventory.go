package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InventoryItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"size:64;not null;uniqueIndex:uq_item_code,priority:1" json:"business_id"`
	Code              string          `gorm:"size:50;not null;uniqueIndex:uq_item_code,priority:2" json:"code"`
	Name              string          `gorm:"size:255;not null;index" json:"name"`
	Category          string          `gorm:"size:100;index" json:"category"`
	Unit              string          `gorm:"size:20" json:"unit"`
	TotalQuantity     int             `gorm:"not null;default:0" json:"total_quantity"`
	RentedQuantity    int             `gorm:"not null;default:0" json:"rented_quantity"`
	DailyRate         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"daily_rate"`
	ReplacementCost   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"replacement_cost"`
	LowStockThreshold *int            `json:"low_stock_threshold"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockMovement is one change to an item's stock. Quantity is the effect on
// available stock; TotalChange and RentedChange split it.
type StockMovement struct {
	ID            int          `gorm:"primary_key" json:"id"`
	BusinessId    string       `gorm:"size:64;not null;index" json:"business_id"`
	ItemId        int          `gorm:"not null;index" json:"item_id"`
	MovementType  MovementType `gorm:"type:enum('Opening','Adjustment','RentOut','Return','Lost');not null" json:"movement_type"`
	Quantity      int          `gorm:"not null" json:"quantity"`
	TotalChange   int          `gorm:"not null;default:0" json:"total_change"`
	RentedChange  int          `gorm:"not null;default:0" json:"rented_change"`
	ReferenceType string       `gorm:"size:50" json:"reference_type"`
	ReferenceId   int          `gorm:"index" json:"reference_id"`
	Reason        string       `gorm:"size:255" json:"reason"`
	MovementDate  time.Time    `gorm:"not null;index" json:"movement_date"`
	UserId        int          `json:"user_id"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

type NewInventoryItem struct {
	Code              string          `json:"code" binding:"required"`
	Name              string          `json:"name" binding:"required"`
	Category          string          `json:"category"`
	Unit              string          `json:"unit"`
	TotalQuantity     int             `json:"total_quantity"`
	DailyRate         decimal.Decimal `json:"daily_rate"`
	ReplacementCost   decimal.Decimal `json:"replacement_cost"`
	LowStockThreshold *int            `json:"low_stock_threshold"`
	IsActive          *bool           `json:"is_active"`
}

type InventoryFilter struct {
	Search       string
	Category     string
	LowStockOnly bool
	IsActive     *bool
	Limit        int
	After        string
}

func (item InventoryItem) GetId() int            { return item.ID }
func (item InventoryItem) GetBusinessId() string { return item.BusinessId }

func (item InventoryItem) RemoveInstanceRedis() error {
	return utils.RemoveRedisItem[InventoryItem](item.ID)
}

func (item InventoryItem) Available() int {
	return item.TotalQuantity - item.RentedQuantity
}

// IsLowStock compares availability with the item threshold, or def when the
// item has none.
func (item InventoryItem) IsLowStock(def int) bool {
	threshold := def
	if item.LowStockThreshold != nil {
		threshold = *item.LowStockThreshold
	}
	return item.Available() <= threshold
}

func NormalizeItemCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (input *NewInventoryItem) validate(ctx context.Context, businessId string, id int) error {
	input.Code = NormalizeItemCode(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	input.Unit = strings.TrimSpace(input.Unit)
	if input.Code == "" {
		return utils.NewValidationError("code", "is required")
	}
	if input.Name == "" {
		return utils.NewValidationError("name", "is required")
	}
	if input.TotalQuantity < 0 {
		return utils.NewValidationError("total_quantity", "cannot be negative")
	}
	if input.DailyRate.IsNegative() {
		return utils.NewValidationError("daily_rate", "cannot be negative")
	}
	if input.ReplacementCost.IsNegative() {
		return utils.NewValidationError("replacement_cost", "cannot be negative")
	}
	if input.LowStockThreshold != nil && *input.LowStockThreshold < 0 {
		return utils.NewValidationError("low_stock_threshold", "cannot be negative")
	}
	if input.Unit == "" {
		input.Unit = "pcs"
	}
	if err := utils.ValidateUnique[InventoryItem](ctx, businessId, "code", input.Code, id); err != nil {
		return ErrDuplicate
	}
	return nil
}

func CreateInventoryItem(ctx context.Context, input *NewInventoryItem) (*InventoryItem, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}
	item := InventoryItem{
		BusinessId:        businessId,
		Code:              input.Code,
		Name:              input.Name,
		Category:          input.Category,
		Unit:              input.Unit,
		TotalQuantity:     input.TotalQuantity,
		DailyRate:         input.DailyRate,
		ReplacementCost:   input.ReplacementCost,
		LowStockThreshold: input.LowStockThreshold,
		IsActive:          boolPtr(input.IsActive == nil || *input.IsActive),
	}
	err = inTx(ctx, func(tx *gorm.DB) error {
		return createInventoryItemTx(tx, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func createInventoryItemTx(tx *gorm.DB, item *InventoryItem) error {
	if err := tx.Create(item).Error; err != nil {
		return translateWriteErr(err, "item code "+item.Code)
	}
	if item.TotalQuantity > 0 {
		if err := addMovement(tx, item, MovementTypeOpening, item.TotalQuantity, 0, ReferenceTypeItem, item.ID, "opening stock", time.Now()); err != nil {
			return err
		}
	}
	return createHistory(tx, HistoryActionCreate, item.ID, ReferenceTypeItem, nil, item, "Created item "+item.Code)
}

func UpdateInventoryItem(ctx context.Context, id int, input *NewInventoryItem) (*InventoryItem, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	var item InventoryItem
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		before := item
		if input.TotalQuantity < item.RentedQuantity {
			return ErrStockBelowRented
		}
		delta := input.TotalQuantity - item.TotalQuantity
		updates := map[string]interface{}{
			"Code":              input.Code,
			"Name":              input.Name,
			"Category":          input.Category,
			"Unit":              input.Unit,
			"TotalQuantity":     input.TotalQuantity,
			"DailyRate":         input.DailyRate,
			"ReplacementCost":   input.ReplacementCost,
			"LowStockThreshold": input.LowStockThreshold,
		}
		if input.IsActive != nil {
			updates["IsActive"] = *input.IsActive
		}
		if err := tx.Model(&item).Updates(updates).Error; err != nil {
			return translateWriteErr(err, "item code "+input.Code)
		}
		if err := tx.First(&item, id).Error; err != nil {
			return err
		}
		if delta != 0 {
			if err := addMovement(tx, &item, MovementTypeAdjustment, delta, 0, ReferenceTypeItem, item.ID, "edited total quantity", time.Now()); err != nil {
				return err
			}
		}
		return createHistory(tx, HistoryActionUpdate, item.ID, ReferenceTypeItem, before, item, "Updated item "+item.Code)
	})
	if err != nil {
		return nil, err
	}
	if err := item.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "InventoryItem", "UpdateInventoryItem", "redis invalidate", id, err)
	}
	return &item, nil
}

func DeleteInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var item InventoryItem
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&ChallanDetail{}).Where("business_id = ? AND item_id = ?", businessId, id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || item.RentedQuantity > 0 {
			return ErrItemInUse
		}
		if err := tx.Where("business_id = ? AND item_id = ?", businessId, id).Delete(&StockMovement{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionDelete, item.ID, ReferenceTypeItem, item, nil, "Deleted item "+item.Code)
	})
	if err != nil {
		return nil, err
	}
	if err := item.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "InventoryItem", "DeleteInventoryItem", "redis invalidate", id, err)
	}
	return &item, nil
}

func GetInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {
	return GetResource[InventoryItem](ctx, id)
}

func ToggleActiveInventoryItem(ctx context.Context, id int, isActive bool) (*InventoryItem, error) {
	return ToggleActiveModel[InventoryItem](ctx, id, isActive, ReferenceTypeItem)
}

func ListInventoryItems(ctx context.Context, filter InventoryFilter) (*Page[InventoryItem], error) {
	business, err := GetBusiness(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&InventoryItem{}).Where("business_id = ?", business.ID.String())
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + s + "%"
		q = q.Where("code LIKE ? OR name LIKE ?", like, like)
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		q = q.Where("category = ?", c)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if filter.LowStockOnly {
		q = q.Where("(total_quantity - rented_quantity) <= COALESCE(low_stock_threshold, ?)", business.LowStockThreshold)
	}
	return FetchPage[InventoryItem](q, filter.Limit, filter.After)
}

func ListInventoryCategories(ctx context.Context) ([]string, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var categories []string
	err = db.Model(&InventoryItem{}).Where("business_id = ? AND category <> ''", businessId).
		Distinct().Order("category").Pluck("category", &categories).Error
	return categories, err
}

// AdjustStock changes an item's total quantity by delta.
func AdjustStock(ctx context.Context, id int, delta int, reason string) (*InventoryItem, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, utils.NewValidationError("delta", "must not be zero")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, utils.NewValidationError("reason", "is required")
	}
	var item InventoryItem
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		before := item
		newTotal := item.TotalQuantity + delta
		if newTotal < 0 {
			return ErrNegativeStock
		}
		if newTotal < item.RentedQuantity {
			return ErrStockBelowRented
		}
		if err := tx.Model(&item).UpdateColumn("total_quantity", newTotal).Error; err != nil {
			return err
		}
		item.TotalQuantity = newTotal
		if err := addMovement(tx, &item, MovementTypeAdjustment, delta, 0, ReferenceTypeItem, item.ID, reason, time.Now()); err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionUpdate, item.ID, ReferenceTypeItem, before, item, fmt.Sprintf("Adjusted stock by %+d: %s", delta, reason)); err != nil {
			return err
		}
		return recordEvent(tx, EventStockAdjusted, ReferenceTypeItem, item.ID, map[string]interface{}{"delta": delta, "reason": reason})
	})
	if err != nil {
		return nil, err
	}
	if err := item.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "InventoryItem", "AdjustStock", "redis invalidate", id, err)
	}
	return &item, nil
}

func ListStockMovements(ctx context.Context, itemId int) ([]*StockMovement, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var results []*StockMovement
	err = db.Where("business_id = ? AND item_id = ?", businessId, itemId).
		Order("movement_date DESC, id DESC").Find(&results).Error
	return results, err
}

func GetInventoryItemsByIds(ctx context.Context, ids []int) (map[int]*InventoryItem, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var rows []*InventoryItem
	if err := db.Where("business_id = ? AND id IN ?", businessId, utils.UniqueSlice(ids)).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[int]*InventoryItem, len(rows))
	for _, item := range rows {
		result[item.ID] = item
	}
	return result, nil
}

// lockItems loads and row-locks items in id order so concurrent challans
// cannot deadlock on each other.
func lockItems(tx *gorm.DB, businessId string, ids []int) (map[int]*InventoryItem, error) {
	ids = utils.UniqueSlice(ids)
	sort.Ints(ids)
	var rows []*InventoryItem
	if err := forUpdate(tx).Where("business_id = ? AND id IN ?", businessId, ids).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[int]*InventoryItem, len(rows))
	for _, item := range rows {
		result[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, utils.NewValidationError("item_id", fmt.Sprintf("item %d not found", id))
		}
	}
	return result, nil
}

// moveStock applies total/rented changes to a locked item and writes the movement.
func moveStock(tx *gorm.DB, item *InventoryItem, movementType MovementType, totalChange, rentedChange int, referenceType string, referenceId int, reason string, at time.Time) error {
	newTotal := item.TotalQuantity + totalChange
	newRented := item.RentedQuantity + rentedChange
	if newTotal < 0 || newRented < 0 {
		return ErrNegativeStock
	}
	if newRented > newTotal {
		return &InsufficientStockError{ItemCode: item.Code, Requested: rentedChange, Available: item.Available()}
	}
	if err := tx.Model(&InventoryItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"total_quantity":  newTotal,
		"rented_quantity": newRented,
	}).Error; err != nil {
		return err
	}
	item.TotalQuantity = newTotal
	item.RentedQuantity = newRented
	if err := addMovement(tx, item, movementType, totalChange, rentedChange, referenceType, referenceId, reason, at); err != nil {
		return err
	}
	if err := item.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "InventoryItem", "moveStock", "redis invalidate", item.ID, err)
	}
	return nil
}

func addMovement(tx *gorm.DB, item *InventoryItem, movementType MovementType, totalChange, rentedChange int, referenceType string, referenceId int, reason string, at time.Time) error {
	userId, _ := utils.GetUserIdFromContext(tx.Statement.Context)
	return tx.Create(&StockMovement{
		BusinessId:    item.BusinessId,
		ItemId:        item.ID,
		MovementType:  movementType,
		Quantity:      totalChange - rentedChange,
		TotalChange:   totalChange,
		RentedChange:  rentedChange,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		Reason:        reason,
		MovementDate:  at.UTC(),
		UserId:        userId,
	}).Error
}

func LoadInventoryItems(ctx context.Context) ([]*InventoryItem, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchAllModels[InventoryItem](ctx, businessId)
}
