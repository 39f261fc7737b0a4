package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/handlers"
	"github.com/rentiq/rentiq_backend/middlewares"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/workflow"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultPort = "8080"

func main() {
	logger := config.GetLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("API_PORT")
	}
	if port == "" {
		port = defaultPort
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// registered up front so /readyz lists them while they connect
	config.EnsureGate(config.GateDatabase, 0, 10*time.Second)
	config.EnsureGate(config.GateRedis, 0, 5*time.Second)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Dependencies connect after the port is open so startup probes pass.
	workers, workerCtx := errgroup.WithContext(sigCtx)
	workers.Go(func() error {
		if err := config.ConnectRedisWithRetry(workerCtx); err != nil {
			config.LogError(logger, "server.go", "main", "connect redis", nil, err)
		}
		return nil
	})
	workers.Go(func() error {
		if err := config.ConnectDatabaseWithRetry(workerCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if config.SkipMigrations() {
			logger.WithFields(logrus.Fields{"module": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		} else if err := models.MigrateTable(); err != nil {
			return err
		}
		startWorkers(workerCtx, workers, logger)
		return nil
	})

	logger.WithFields(logrus.Fields{"module": "http", "port": port}).Info("server listening")

	select {
	case <-workerCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"module": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}
	stop()
	if err := workers.Wait(); err != nil {
		config.LogError(logger, "server.go", "main", "background worker", nil, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"module": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
	if db := config.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// startWorkers runs the outbox dispatcher and, with PUBSUB_SUBSCRIPTION set,
// a pull subscriber for the events it publishes.
func startWorkers(ctx context.Context, g *errgroup.Group, logger *logrus.Logger) {
	g.Go(func() error {
		workflow.NewOutboxDispatcher(config.GetDB, logger).Run(ctx)
		return nil
	})
	if !config.PubSubEnabled() || strings.TrimSpace(os.Getenv("PUBSUB_SUBSCRIPTION")) == "" {
		return
	}
	g.Go(func() error {
		if err := workflow.RunSubscriber(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
			config.LogError(logger, "server.go", "startWorkers", "pubsub subscriber", nil, err)
		}
		return nil
	})
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(customErrorLogger(logger))
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.ReadinessMiddleware(config.Gates(), config.GateDatabase, config.GateRedis))
	r.GET(middlewares.ReadyzPath, middlewares.ReadyzHandler(config.Gates(), config.GateDatabase, config.GateRedis))
	r.Use(cors.New(corsConfig()))

	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(envInt("RATE_LIMIT_MAX_REQUESTS", 600))
		window := time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		r.Use(middlewares.NewRateLimiter(config.GetRedisDB, limit, window).Middleware)
	}

	r.POST("/pubsub", handlers.PubSubPush)

	api := r.Group("/api")
	api.Use(middlewares.SessionMiddleware())
	api.Use(middlewares.AuthMiddleware())
	api.Use(middlewares.LoaderMiddleware())
	handlers.Register(api)

	r.NoRoute(customNotFoundHandler)
	return r
}

// corsConfig allows every origin outside production; production needs an
// explicit CORS_ALLOWED_ORIGINS list and denies all without one.
func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		c.AllowOrigins = splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
		if len(c.AllowOrigins) == 0 {
			c.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		c.AllowAllOrigins = true
	}
	c.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	c.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	c.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	c.AllowCredentials = !c.AllowAllOrigins
	return c
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
		return n
	}
	return def
}
