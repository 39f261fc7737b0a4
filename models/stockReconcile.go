package models

import (
	"context"
	"fmt"

	"github.com/rentiq/rentiq_backend/config"
	"gorm.io/gorm"
)

// StockDrift is an item whose counters disagree with its movement ledger.
type StockDrift struct {
	ItemId         int    `json:"item_id"`
	Code           string `json:"code"`
	TotalQuantity  int    `json:"total_quantity"`
	LedgerTotal    int    `json:"ledger_total"`
	RentedQuantity int    `json:"rented_quantity"`
	LedgerRented   int    `json:"ledger_rented"`
	Fixed          bool   `json:"fixed"`
}

type ledgerSum struct {
	ItemId int
	Total  int
	Rented int
}

// findDrift compares item counters with the summed ledger. Items without
// movements must hold zero stock.
func findDrift(items []*InventoryItem, sums map[int]ledgerSum) []*StockDrift {
	var drift []*StockDrift
	for _, item := range items {
		sum := sums[item.ID]
		if item.TotalQuantity == sum.Total && item.RentedQuantity == sum.Rented {
			continue
		}
		drift = append(drift, &StockDrift{
			ItemId:         item.ID,
			Code:           item.Code,
			TotalQuantity:  item.TotalQuantity,
			LedgerTotal:    sum.Total,
			RentedQuantity: item.RentedQuantity,
			LedgerRented:   sum.Rented,
		})
	}
	return drift
}

func sumLedger(tx *gorm.DB, businessId string) (map[int]ledgerSum, error) {
	var rows []ledgerSum
	err := tx.Model(&StockMovement{}).
		Select("item_id, COALESCE(SUM(total_change),0) AS total, COALESCE(SUM(rented_change),0) AS rented").
		Where("business_id = ?", businessId).
		Group("item_id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sums := make(map[int]ledgerSum, len(rows))
	for _, r := range rows {
		sums[r.ItemId] = r
	}
	return sums, nil
}

// ReconcileStock reports items whose total or rented quantity differs from
// their stock movements. With fix set, the counters are rewritten from the
// ledger under row locks and each correction is audited.
func ReconcileStock(ctx context.Context, fix bool) ([]*StockDrift, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !fix {
		db, err := dbFor(ctx)
		if err != nil {
			return nil, err
		}
		var items []*InventoryItem
		if err := db.Where("business_id = ?", businessId).Order("id").Find(&items).Error; err != nil {
			return nil, err
		}
		sums, err := sumLedger(db, businessId)
		if err != nil {
			return nil, err
		}
		return findDrift(items, sums), nil
	}

	var drift []*StockDrift
	var fixed []*InventoryItem
	err = inTx(ctx, func(tx *gorm.DB) error {
		var items []*InventoryItem
		if err := forUpdate(tx).Where("business_id = ?", businessId).Order("id").Find(&items).Error; err != nil {
			return err
		}
		sums, err := sumLedger(tx, businessId)
		if err != nil {
			return err
		}
		drift = findDrift(items, sums)
		byId := make(map[int]*InventoryItem, len(items))
		for _, item := range items {
			byId[item.ID] = item
		}
		for _, d := range drift {
			if d.LedgerTotal < 0 || d.LedgerRented < 0 || d.LedgerRented > d.LedgerTotal {
				// a broken ledger needs a manual adjustment, not a rewrite
				continue
			}
			item := byId[d.ItemId]
			before := *item
			if err := tx.Model(&InventoryItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
				"total_quantity":  d.LedgerTotal,
				"rented_quantity": d.LedgerRented,
			}).Error; err != nil {
				return err
			}
			item.TotalQuantity = d.LedgerTotal
			item.RentedQuantity = d.LedgerRented
			desc := fmt.Sprintf("Reconciled stock of %s: total %d->%d, rented %d->%d",
				item.Code, d.TotalQuantity, d.LedgerTotal, d.RentedQuantity, d.LedgerRented)
			if err := createHistory(tx, HistoryActionUpdate, item.ID, ReferenceTypeItem, before, *item, desc); err != nil {
				return err
			}
			d.Fixed = true
			fixed = append(fixed, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, item := range fixed {
		if err := item.RemoveInstanceRedis(); err != nil {
			config.LogError(config.GetLogger(), "InventoryItem", "ReconcileStock", "redis invalidate", item.ID, err)
		}
	}
	if len(fixed) > 0 {
		ids := make([]int, len(fixed))
		for i, item := range fixed {
			ids[i] = item.ID
		}
		config.GetLogger().WithField("items", ids).Warn("stock counters rewritten from ledger")
	}
	return drift, nil
}
