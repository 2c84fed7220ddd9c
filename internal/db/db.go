// Package db opens the SQL backends that hold reference layers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/plat-overlap/internal/layer"
)

// Config holds database configuration.
type Config struct {
	Backend string
	// DuckDB
	DataDir string
	DBName  string
	// Postgres
	DSN string
}

// DuckDBPath returns the database file of cfg. An empty DBName means an
// in-memory database.
func DuckDBPath(cfg Config) string {
	if cfg.DBName == "" {
		return ""
	}
	return filepath.Join(cfg.DataDir, "duckdb", cfg.DBName+".duckdb")
}

// Open connects to the configured backend and returns the handle with the
// matching SQL dialect. The spatial extension (DuckDB) or PostGIS
// (Postgres) must be available.
func Open(ctx context.Context, cfg Config) (*sql.DB, layer.Dialect, error) {
	switch cfg.Backend {
	case "duckdb":
		db, err := openDuckDB(ctx, cfg)
		return db, layer.DuckDB, err
	case "postgres":
		db, err := openPostgres(ctx, cfg)
		return db, layer.Postgres, err
	default:
		return nil, layer.Dialect{}, fmt.Errorf("unsupported sql backend %q", cfg.Backend)
	}
}

func openDuckDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	path := DuckDBPath(cfg)
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// INSTALL fails offline when the extension is already present; LOAD is
	// what matters.
	_, _ = db.ExecContext(ctx, "INSTALL spatial")
	if _, err := db.ExecContext(ctx, "LOAD spatial"); err != nil {
		db.Close()
		return nil, fmt.Errorf("load duckdb spatial extension: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres backend requires DATABASE_URL")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	var version string
	if err := db.QueryRowContext(ctx, "SELECT postgis_version()").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgis not available: %w", err)
	}
	return db, nil
}

// Tables lists the layer tables present in db.
func Tables(ctx context.Context, db *sql.DB, d layer.Dialect) ([]string, error) {
	q := "SELECT table_name FROM information_schema.tables WHERE table_name LIKE 'layer\\_%' ESCAPE '\\' ORDER BY table_name"
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s tables: %w", d.Name, err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list %s tables: %w", d.Name, err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
