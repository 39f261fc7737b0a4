package reports

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	dashboardCachePrefix      = "Dashboard:"
	clientBalancesCachePrefix = "ClientBalances:"
)

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	if v == "" {
		return true
	}
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 300s)
	ttl := 300
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	biz, _ := utils.GetBusinessIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"business_id":    biz,
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow report")
}

func DashboardCacheKey(businessId string) string {
	return dashboardCachePrefix + businessId
}

// ClientBalancesCacheKey is one snapshot per business and as-of date.
func ClientBalancesCacheKey(businessId string, asOf time.Time) string {
	return clientBalancesCachePrefix + businessId + ":" + asOf.Format("2006-01-02")
}

func clientBalancesPattern(businessId string) string {
	return clientBalancesCachePrefix + businessId + ":*"
}

func cacheGet[T any](key string, dest *T) (bool, error) {
	if !reportCacheEnabled() {
		return false, nil
	}
	return config.GetRedisObject(key, dest)
}

func cacheSet(key string, obj any, ttl time.Duration) error {
	if !reportCacheEnabled() {
		return nil
	}
	return config.SetRedisObject(key, obj, ttl)
}

// InvalidateReports drops cached report snapshots of a business.
func InvalidateReports(ctx context.Context, businessId string) error {
	if businessId == "" {
		return nil
	}
	if err := config.RemoveRedisKey(DashboardCacheKey(businessId)); err != nil {
		return err
	}
	return config.RemoveRedisPattern(ctx, clientBalancesPattern(businessId))
}
