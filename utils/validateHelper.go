package utils

import (
	"context"
	"reflect"

	"github.com/rentiq/rentiq_backend/config"
)

// ValidateResourceId returns ErrorRecordNotFound unless id exists in businessId.
func ValidateResourceId[T any](ctx context.Context, businessId string, id interface{}) error {
	n, err := ResourceCountWhere[T](ctx, businessId, "id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateUnique rejects value when another row of T already holds it in
// column. exceptId, when non-zero, is the row being updated.
func ValidateUnique[T any](ctx context.Context, businessId string, column string, value interface{}, exceptId interface{}) error {
	cond, args := column+" = ?", []interface{}{value}
	if exceptId != nil && !reflect.ValueOf(exceptId).IsZero() {
		cond += " AND id <> ?"
		args = append(args, exceptId)
	}
	n, err := ResourceCountWhere[T](ctx, businessId, cond, args...)
	if err != nil {
		return err
	}
	if n > 0 {
		return NewValidationError(column, "already exists")
	}
	return nil
}

// ResourceCountWhere counts rows of T matching condition, scoped to businessId
// unless it is empty.
func ResourceCountWhere[T any](ctx context.Context, businessId string, condition string, args ...interface{}) (int64, error) {
	db := config.GetDB()
	if db == nil {
		return 0, ErrorServiceNotReady
	}
	var model T
	q := db.WithContext(ctx).Model(&model).Where(condition, args...)
	if businessId != "" {
		q = q.Where("business_id = ?", businessId)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
