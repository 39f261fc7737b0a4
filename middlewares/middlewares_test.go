package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/gate"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func withUser(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user != nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

func ok(c *gin.Context) { c.Status(http.StatusOK) }

func TestCorrelationMiddlewareEchoesOrGenerates(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/x", func(c *gin.Context) {
		seen, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	w := serve(r, req)
	assert.Equal(t, "abc-123", w.Header().Get(CorrelationHeader))
	assert.Equal(t, "abc-123", seen)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(CorrelationHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, seen)
}

func TestReadinessMiddleware(t *testing.T) {
	registry := gate.NewRegistry()
	db := registry.Register(gate.New("database", gate.Options{}))
	registry.Register(gate.New("redis", gate.Options{}))

	r := gin.New()
	r.Use(ReadinessMiddleware(registry, "database"))
	r.GET(ReadyzPath, ReadyzHandler(registry, "database"))
	r.GET("/api/clients", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, HealthzPath, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	w = serve(r, httptest.NewRequest(http.MethodGet, ReadyzPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, db.Run(context.Background(), func(context.Context) error { return nil }))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, ReadyzPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Ready bool            `json:"ready"`
		Gates []gate.Snapshot `json:"gates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	require.Len(t, body.Gates, 2)
}

func TestRequireUser(t *testing.T) {
	active := true
	disabled := false
	cases := []struct {
		name string
		user *models.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"admin", &models.User{Role: models.UserRoleAdmin, IsActive: &active}, http.StatusOK},
		{"approved", &models.User{Role: models.UserRoleCustom, ApprovalStatus: models.ApprovalStatusApproved}, http.StatusOK},
		{"rejected", &models.User{Role: models.UserRoleCustom, ApprovalStatus: models.ApprovalStatusRejected}, http.StatusForbidden},
		{"disabled", &models.User{Role: models.UserRoleOwner, IsActive: &disabled}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", withUser(tc.user), RequireUser(), ok)
			w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequirePermissionWithoutRoleIsForbidden(t *testing.T) {
	r := gin.New()
	r.GET("/owner", withUser(&models.User{Role: models.UserRoleOwner}), RequirePermission(models.ModuleChallan, models.ActionDelete), ok)
	r.GET("/norole", withUser(&models.User{Role: models.UserRoleCustom}), RequirePermission(models.ModuleChallan, models.ActionRead), ok)

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/owner", nil)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, httptest.NewRequest(http.MethodGet, "/norole", nil)).Code)
}

func TestRequireAdmin(t *testing.T) {
	r := gin.New()
	r.GET("/admin", withUser(&models.User{Role: models.UserRoleAdmin}), RequireAdmin(), ok)
	r.GET("/custom", withUser(&models.User{Role: models.UserRoleCustom}), RequireAdmin(), ok)

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/admin", nil)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, httptest.NewRequest(http.MethodGet, "/custom", nil)).Code)
}

func TestAuthMiddlewareRejectsMalformedHeader(t *testing.T) {
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/x", ok)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestSessionMiddlewareWithoutTokenIsAnonymous(t *testing.T) {
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/x", func(c *gin.Context) {
		assert.Nil(t, CurrentUser(c))
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestRateLimiterPassesWithoutRedis(t *testing.T) {
	rl := NewRateLimiter(func() *redis.Client { return nil }, 1, time.Minute)
	r := gin.New()
	r.Use(rl.Middleware)
	r.GET("/x", ok)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
}

func TestGenerateLoaderResultsKeepsIdOrder(t *testing.T) {
	found := map[int]*models.Client{
		1: {ID: 1, Name: "A"},
		3: {ID: 3, Name: "C"},
	}
	results := generateLoaderResults(found, []int{3, 2, 1})
	require.Len(t, results, 3)
	assert.Equal(t, "C", results[0].Data.Name)
	assert.True(t, errors.Is(results[1].Error, utils.ErrorRecordNotFound))
	assert.Equal(t, "A", results[2].Data.Name)
}

func TestLoaderBatchesLookups(t *testing.T) {
	var calls [][]int
	loader := newLoader[models.Client](func(_ context.Context, ids []int) (map[int]*models.Client, error) {
		calls = append(calls, append([]int(nil), ids...))
		out := map[int]*models.Client{}
		for _, id := range ids {
			out[id] = &models.Client{ID: id}
		}
		return out, nil
	})
	ctx := context.Background()
	first := loader.Load(ctx, 1)
	second := loader.Load(ctx, 2)
	a, err := first()
	require.NoError(t, err)
	b, err := second()
	require.NoError(t, err)

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []int{1, 2}, calls[0])
}
