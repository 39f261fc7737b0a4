package models

import (
	"context"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// actor is who performs a mutation.
type actor struct {
	BusinessId string
	UserId     int
	UserName   string
}

func actorFromContext(ctx context.Context) (actor, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return actor{}, ErrBusinessRequired
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return actor{}, ErrUserRequired
	}
	userName, _ := utils.GetUserNameFromContext(ctx)
	return actor{BusinessId: businessId, UserId: userId, UserName: userName}, nil
}

func businessIdFromContext(ctx context.Context) (string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", ErrBusinessRequired
	}
	return businessId, nil
}

// inTx runs fn in a transaction bound to ctx.
func inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := config.GetDB()
	if db == nil {
		return utils.ErrorServiceNotReady
	}
	return db.WithContext(ctx).Transaction(fn)
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func dbFor(ctx context.Context) (*gorm.DB, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	return db.WithContext(ctx), nil
}

// DateRange is an inclusive range of calendar dates. Zero ends are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) apply(q *gorm.DB, column string) *gorm.DB {
	if !r.From.IsZero() {
		q = q.Where(column+" >= ?", utils.DateOnly(r.From))
	}
	if !r.To.IsZero() {
		q = q.Where(column+" < ?", utils.DateOnly(r.To).AddDate(0, 0, 1))
	}
	return q
}

func (r DateRange) Contains(t time.Time) bool {
	d := utils.DateOnly(t)
	if !r.From.IsZero() && d.Before(utils.DateOnly(r.From)) {
		return false
	}
	if !r.To.IsZero() && d.After(utils.DateOnly(r.To)) {
		return false
	}
	return true
}

func boolPtr(b bool) *bool { return &b }
