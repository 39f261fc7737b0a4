package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const SearchLimit = 10

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// SetDB replaces the global handle. Tests use it to point models at a scratch database.
func SetDB(d *gorm.DB) {
	dbMu.Lock()
	db = d
	dbMu.Unlock()
}

func init() {
	// Load env from .env
	godotenv.Load()
	// Do NOT block startup in init() waiting for DB; main connects after the
	// HTTP server is listening and the readiness middleware answers 503 meanwhile.
}

// DatabaseDSN builds the MySQL DSN from DB_* variables. A DB_HOST of
// "/cloudsql/<CONNECTION_NAME>" connects over the Cloud SQL unix socket.
func DatabaseDSN() string {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, dbPort)
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true&loc=UTC",
		dbUser,
		dbPassword,
		network,
		address,
		dbName,
	)
}

// ConnectDatabaseWithRetry connects through the database gate and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry(ctx context.Context) error {
	dsn := DatabaseDSN()
	g := getGate(GateDatabase, 0, 10*time.Second)
	return g.Run(ctx, func(ctx context.Context) error {
		conn, err := gorm.Open(mysql.Open(dsn), initConfig())
		if err != nil {
			return err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		tunePool(conn)

		if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
			LogError(logg, "config", "ConnectDatabaseWithRetry", "install otelgorm", nil, pluginErr)
		}
		if pluginErr := conn.Use(NewTenantGuardPlugin()); pluginErr != nil {
			// unscoped queries would leak across businesses
			_ = sqlDB.Close()
			return fmt.Errorf("install tenant guard: %w", pluginErr)
		}
		SetDB(conn)
		return nil
	})
}

// tunePool applies DB_MAX_OPEN_CONNS (50), DB_MAX_IDLE_CONNS (25),
// DB_CONN_MAX_LIFETIME_SECONDS (300) and DB_CONN_MAX_IDLE_TIME_SECONDS (60).
func tunePool(conn *gorm.DB) {
	sqlDB, err := conn.DB()
	if err != nil || sqlDB == nil {
		return
	}
	maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 50)
	maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 25)
	connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
	connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if connMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(connMaxLife)
	}
	if connMaxIdle > 0 {
		sqlDB.SetConnMaxIdleTime(connMaxIdle)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: &schema.NamingStrategy{SingularTable: false},
	}
}

// initLog keeps gorm on the standard logger at Error level; slow queries over 1s are reported.
func initLog() logger.Interface {
	level := logger.Error
	if envBool("GORM_DEBUG", false) {
		level = logger.Info
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      level,
			SlowThreshold: time.Second,
		},
	)
}
