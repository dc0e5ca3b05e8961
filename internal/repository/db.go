package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver

	"github.com/casekit/evidence-extractor/internal/common"
)

// Open connects to the case store. The driver is picked from the DSN: a
// postgres:// URL goes through pgx, anything else is treated as a sqlite
// file DSN.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver := "sqlite"
	if isPostgres(cfg.DSN) {
		driver = "pgx"
	}
	logger.Info("connecting to database", "driver", driver)

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" {
		// modernc sqlite: one writer; serialize access through the pool.
		db.SetMaxOpenConns(1)
	}

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("successfully connected to database")
	return db, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Migrate creates the schema when missing. The DDL sticks to the portable
// subset both drivers accept.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evidence_case (
			id TEXT PRIMARY KEY,
			original_filename TEXT NOT NULL,
			file_path TEXT NOT NULL,
			status TEXT NOT NULL,
			page_count INTEGER NOT NULL DEFAULT 0,
			file_size BIGINT NOT NULL DEFAULT 0,
			ocr_text TEXT,
			vlm_text TEXT,
			extracted_info TEXT,
			processing_details TEXT,
			extraction_fields TEXT,
			custom_prompt TEXT,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP,
			processed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS extraction_template (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			extraction_fields TEXT NOT NULL,
			custom_prompt TEXT,
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_case_status ON evidence_case (status)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("database schema ready")
	return nil
}

// HealthCheck pings the store; used at startup to catch DSN issues early.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for the postgres driver. Queries in
// this package are written with ? and rebound once at call time.
func rebind(pg bool, query string) string {
	if !pg {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
