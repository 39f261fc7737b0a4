package config

import (
	"context"
	"reflect"
	"strings"

	"github.com/rentiq/rentiq_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// TenantGuardPlugin scopes queries, updates and deletes on tables with a
// business_id column to the business in the statement context, and stamps
// business_id on created rows that leave it empty.
//
// Raw SQL is not scoped; callers include business_id themselves.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", scopeToTenant); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", scopeToTenant); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", scopeToTenant); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", scopeToTenant); err != nil {
		return err
	}
	return db.Callback().Create().Before("gorm:create").Register("tenant_guard:create", stampTenant)
}

func scopeToTenant(db *gorm.DB) {
	businessId, field := tenantTarget(db)
	if field == nil {
		return
	}
	if whereHasBusinessID(db.Statement.Clauses["WHERE"]) {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: field.DBName},
				Value:  businessId,
			},
		},
	})
}

func stampTenant(db *gorm.DB) {
	businessId, field := tenantTarget(db)
	if field == nil {
		return
	}
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			stampOne(db.Statement.Context, field, rv.Index(i), businessId)
		}
	case reflect.Struct:
		stampOne(db.Statement.Context, field, rv, businessId)
	}
}

func stampOne(ctx context.Context, field *schema.Field, rv reflect.Value, businessId string) {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	if _, zero := field.ValueOf(ctx, rv); zero {
		_ = field.Set(ctx, rv, businessId)
	}
}

// tenantTarget returns the context business id and the business_id field of the
// statement's model, or a nil field when the statement is not tenant scoped.
func tenantTarget(db *gorm.DB) (string, *schema.Field) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return "", nil
	}
	ctx := db.Statement.Context
	if skip, _ := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); skip {
		return "", nil
	}
	businessId, _ := appctx.GetString(ctx, appctx.ContextKeyBusinessId)
	if businessId == "" {
		return "", nil
	}
	field := db.Statement.Schema.LookUpField("business_id")
	if field == nil {
		return "", nil
	}
	return businessId, field
}

func whereHasBusinessID(c clause.Clause) bool {
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasBusinessID(e) {
			return true
		}
	}
	return false
}

func exprHasBusinessID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsBusinessID(v.Column)
	case clause.Neq:
		return colIsBusinessID(v.Column)
	case clause.IN:
		return colIsBusinessID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessID(x) {
				return true
			}
		}
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessID(x) {
				return true
			}
		}
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "business_id")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "business_id")
	}
	return false
}

func colIsBusinessID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "business_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "business_id")
	}
	return false
}
