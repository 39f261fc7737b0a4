package models

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index:idx_history_ref,priority:2" json:"reference_id"`
	ReferenceType string    `gorm:"size:50;index:idx_history_ref,priority:1" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// createHistory records an audit row in tx. Business and user come from tx's context.
func createHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) error {

	who, err := actorFromContext(tx.Statement.Context)
	if err != nil {
		return err
	}
	history := History{
		BusinessId:    who.BusinessId,
		ActionType:    actionType,
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: referenceType,
		UserId:        who.UserId,
		UserName:      who.UserName,
	}
	if before != nil {
		b, _ := json.Marshal(before)
		history.Before = string(b)
	}
	if after != nil {
		a, _ := json.Marshal(after)
		history.After = string(a)
	}
	return tx.Create(&history).Error
}

func ListHistories(ctx context.Context, referenceType string, referenceId int) ([]*History, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var results []*History
	err = db.Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Order("id DESC").Find(&results).Error
	return results, err
}
