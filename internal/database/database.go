// Package database persists the alert document and bot metrics.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"price-alert-bot/internal/types"
)

// Store loads and atomically replaces the whole alert document.
type Store interface {
	Load(ctx context.Context) (*types.Document, error)
	Save(ctx context.Context, doc *types.Document) error
}

// StoreError is a failed load or save. A failed save never leaves a partially
// written document behind.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DB is an open SQLite database holding alert documents and metrics.
type DB struct {
	db   *sql.DB
	path string
}

func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// Writes are serialized by the callers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	createAlertsTable := `
	CREATE TABLE IF NOT EXISTS alert_documents (
		chat_id INTEGER PRIMARY KEY,
		rules TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(createAlertsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create alert_documents table")
	}

	createMetricsTable := `
	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`
	if _, err := db.Exec(createMetricsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create metrics table")
	}

	log.Debugf("Database %s initialized successfully.", dbPath)
	return &DB{db: db, path: dbPath}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Sanitize drops records that cannot be evaluated: unknown market or
// operator, or a missing code. It returns the number of dropped records.
func Sanitize(doc *types.Document) int {
	dropped := 0
	for chatID, alerts := range doc.Alerts {
		kept := alerts[:0]
		for _, a := range alerts {
			if a == nil || !a.Market.Valid() || a.Code == "" {
				dropped++
				continue
			}
			if _, ok := types.ParseOperator(string(a.Operator)); !ok {
				dropped++
				continue
			}
			if a.Display == "" {
				a.Display = a.Code + " (" + a.Market.DisplayName() + ")"
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(doc.Alerts, chatID)
			continue
		}
		doc.Alerts[chatID] = kept
	}
	return dropped
}
