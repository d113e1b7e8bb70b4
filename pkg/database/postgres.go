package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/protocolwhisper/paymeskill/pkg/logging"
)

// Schema files are embedded so deployments can bootstrap a fresh Postgres
// without shipping files next to the binary.
//
//go:embed sql/schema/*.sql
var embedded embed.FS

// PostgresConn represents a PostgreSQL database connection
type PostgresConn = *sql.DB

// ErrNoRows is returned when a query returns no rows
var ErrNoRows = sql.ErrNoRows

// Config holds database configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns default database configuration
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Connect establishes a database connection with the given configuration
func Connect(cfg Config, logger logging.Logger) (PostgresConn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.WithFields(logging.Fields{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime,
	}).Info("Database connected")

	return db, nil
}

// MustConnect is like Connect but panics on error
func MustConnect(cfg Config, logger logging.Logger) PostgresConn {
	db, err := Connect(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	return db
}

// ApplySchema executes the embedded schema files in lexical order. All
// statements are idempotent, so running it on every boot is safe.
func ApplySchema(db PostgresConn, logger logging.Logger) error {
	entries, err := embedded.ReadDir("sql/schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := embedded.ReadFile("sql/schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.Exec(string(contents)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Info("Applied schema file")
	}

	return nil
}
