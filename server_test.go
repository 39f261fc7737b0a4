package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitAndTrim(" https://a.example, ,https://b.example ,"))
	assert.Empty(t, splitAndTrim(""))
}

func TestEnvInt(t *testing.T) {
	t.Setenv("TEST_LIMIT", " 25 ")
	assert.Equal(t, 25, envInt("TEST_LIMIT", 5))
	t.Setenv("TEST_LIMIT", "-1")
	assert.Equal(t, 5, envInt("TEST_LIMIT", 5))
	t.Setenv("TEST_LIMIT", "lots")
	assert.Equal(t, 5, envInt("TEST_LIMIT", 5))
}

func TestCorsConfig(t *testing.T) {
	t.Setenv("GO_ENV", "development")
	c := corsConfig()
	assert.True(t, c.AllowAllOrigins)
	assert.False(t, c.AllowCredentials)

	t.Setenv("GO_ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.rentiq.example")
	c = corsConfig()
	assert.False(t, c.AllowAllOrigins)
	assert.Equal(t, []string{"https://app.rentiq.example"}, c.AllowOrigins)
	assert.True(t, c.AllowCredentials)
	assert.Contains(t, c.AllowHeaders, "token")

	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	c = corsConfig()
	if assert.NotNil(t, c.AllowOriginFunc) {
		assert.False(t, c.AllowOriginFunc("https://evil.example"))
	}
}

func TestRouterHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	r := newRouter(logger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	assert.NotEqual(t, http.StatusOK, w.Code)
}
