// Package store persists the maintenance domain (work orders, inventory,
// suppliers, maintenance history, windows, schedules and parts orders) in
// SQLite. Managed agents reach it through the maintenance tools.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/factoryops/config"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.Path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS work_orders (
			id                  TEXT PRIMARY KEY,
			machine_id          TEXT NOT NULL,
			fault_type          TEXT NOT NULL,
			priority            TEXT NOT NULL,
			assigned_technician TEXT,
			required_parts      TEXT NOT NULL DEFAULT '[]',
			estimated_duration  INTEGER DEFAULT 0,
			status              TEXT NOT NULL DEFAULT 'Created',
			created_at          DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_machine ON work_orders(machine_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			id            TEXT PRIMARY KEY,
			part_number   TEXT NOT NULL UNIQUE,
			part_name     TEXT NOT NULL,
			current_stock INTEGER NOT NULL DEFAULT 0,
			min_stock     INTEGER NOT NULL DEFAULT 0,
			reorder_point INTEGER NOT NULL DEFAULT 0,
			location      TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS suppliers (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			parts          TEXT NOT NULL DEFAULT '[]',
			lead_time_days INTEGER NOT NULL DEFAULT 0,
			reliability    TEXT NOT NULL DEFAULT 'Medium',
			contact_email  TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS maintenance_history (
			id               TEXT PRIMARY KEY,
			machine_id       TEXT NOT NULL,
			fault_type       TEXT NOT NULL,
			occurrence_date  DATETIME NOT NULL,
			resolution_date  DATETIME,
			downtime_minutes INTEGER DEFAULT 0,
			cost             REAL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_machine ON maintenance_history(machine_id, occurrence_date)`,
		`CREATE TABLE IF NOT EXISTS maintenance_windows (
			id                TEXT PRIMARY KEY,
			start_time        DATETIME NOT NULL,
			end_time          DATETIME NOT NULL,
			production_impact TEXT NOT NULL DEFAULT 'Low',
			is_available      BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_windows_start ON maintenance_windows(is_available, start_time)`,
		`CREATE TABLE IF NOT EXISTS maintenance_schedules (
			id                            TEXT PRIMARY KEY,
			work_order_id                 TEXT NOT NULL,
			machine_id                    TEXT NOT NULL,
			scheduled_date                DATETIME NOT NULL,
			window_id                     TEXT NOT NULL,
			window_start                  DATETIME NOT NULL,
			window_end                    DATETIME NOT NULL,
			window_impact                 TEXT,
			risk_score                    REAL DEFAULT 0,
			predicted_failure_probability REAL DEFAULT 0,
			recommended_action            TEXT,
			reasoning                     TEXT,
			created_at                    DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS parts_orders (
			id                     TEXT PRIMARY KEY,
			work_order_id          TEXT NOT NULL,
			order_items            TEXT NOT NULL DEFAULT '[]',
			supplier_id            TEXT NOT NULL,
			supplier_name          TEXT NOT NULL,
			total_cost             REAL DEFAULT 0,
			expected_delivery_date DATETIME,
			order_status           TEXT NOT NULL DEFAULT 'Pending',
			created_at             DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
