package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL/MariaDB hosting
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
)

// DriverFor auto-detects the sql driver from a connection URL. Anything that
// is not a postgres URL is treated as a MySQL DSN.
func DriverFor(databaseURL string) (driver string, dsn string) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres, databaseURL
	case strings.HasPrefix(databaseURL, "mysql://"):
		return driverMySQL, strings.TrimPrefix(databaseURL, "mysql://")
	default:
		return driverMySQL, databaseURL
	}
}

// New creates a new database connection (supports both MySQL and PostgreSQL)
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver, dsn := DriverFor(databaseURL)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single document row is written; a small pool is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
