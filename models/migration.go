package models

import (
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
)

// AllModels lists every table the service owns.
func AllModels() []interface{} {
	return []interface{}{
		&Business{}, &User{}, &Role{}, &RoleModule{}, &ServiceToken{},
		&Client{},
		&InventoryItem{}, &StockMovement{},
		&Challan{}, &ChallanDetail{}, &ChallanReturn{}, &ChallanReturnLine{},
		&Payment{},
		&PettyCash{}, &PettyCashExpense{},
		&Document{}, &History{},
		&OutboxEvent{}, &ProcessedEvent{},
		&ImportJob{},
	}
}

func MigrateTable() error {
	db := config.GetDB()
	if db == nil {
		return utils.ErrorServiceNotReady
	}
	// tenant guard has no business in a bare context, so migration runs unscoped
	if err := db.AutoMigrate(AllModels()...); err != nil {
		config.LogError(config.GetLogger(), "Migration", "MigrateTable", "auto migrate", nil, err)
		return err
	}
	return nil
}
