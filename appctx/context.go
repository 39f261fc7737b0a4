package appctx

import "context"

// ContextKey is the shared type for all context keys.
// It lives in its own package so config, utils and models can all import it.
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyToken         = ContextKey("Token")
	ContextKeyBusinessId    = ContextKey("BusinessId")
	ContextKeyUsername      = ContextKey("Username")
	ContextKeyUserId        = ContextKey("UserId")
	ContextKeyUserName      = ContextKey("UserName")
	ContextKeyRole          = ContextKey("Role")
	ContextKeyRoleId        = ContextKey("RoleId")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeySkipTenantScope disables business_id scoping for the request.
	// Only bootstrap and background workers set it.
	ContextKeySkipTenantScope = ContextKey("SkipTenantScope")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func GetInt(ctx context.Context, key ContextKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithTenant returns ctx scoped to businessId.
func WithTenant(ctx context.Context, businessId string) context.Context {
	return context.WithValue(ctx, ContextKeyBusinessId, businessId)
}

// WithoutTenantScope marks ctx so the tenant guard leaves queries unscoped.
func WithoutTenantScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextKeySkipTenantScope, true)
}
