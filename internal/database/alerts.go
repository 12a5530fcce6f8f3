package database

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"price-alert-bot/internal/types"
)

// SQLiteStore keeps one row per chat holding its JSON encoded rule list. Save
// replaces every row in a single transaction.
type SQLiteStore struct {
	db *DB
}

func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context) (*types.Document, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT chat_id, rules FROM alert_documents;`)
	if err != nil {
		return nil, &StoreError{Op: "load", Path: s.db.path, Err: errors.Wrap(err, "failed to query alerts")}
	}
	defer rows.Close()

	doc := types.NewDocument()
	for rows.Next() {
		var chatID int64
		var rules string
		if err := rows.Scan(&chatID, &rules); err != nil {
			return nil, &StoreError{Op: "load", Path: s.db.path, Err: errors.Wrap(err, "failed to scan row")}
		}
		var alerts []*types.Alert
		if err := json.Unmarshal([]byte(rules), &alerts); err != nil {
			return nil, &StoreError{Op: "load", Path: s.db.path, Err: errors.Wrapf(err, "decode rules of chat %d", chatID)}
		}
		doc.Alerts[chatID] = alerts
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "load", Path: s.db.path, Err: err}
	}
	return doc, nil
}

func (s *SQLiteStore) Save(ctx context.Context, doc *types.Document) error {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "save", Path: s.db.path, Err: err}
	}
	fail := func(err error) error {
		tx.Rollback()
		return &StoreError{Op: "save", Path: s.db.path, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_documents;`); err != nil {
		return fail(errors.Wrap(err, "failed to clear alerts"))
	}
	for chatID, alerts := range doc.Alerts {
		if len(alerts) == 0 {
			continue
		}
		rules, err := json.Marshal(alerts)
		if err != nil {
			return fail(errors.Wrapf(err, "encode rules of chat %d", chatID))
		}
		query := `
		INSERT INTO alert_documents (chat_id, rules, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP);`
		if _, err := tx.ExecContext(ctx, query, chatID, string(rules)); err != nil {
			return fail(errors.Wrapf(err, "failed to insert alerts of chat %d", chatID))
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "save", Path: s.db.path, Err: err}
	}

	log.WithField("chats", len(doc.Alerts)).Debug("alert document saved")
	return nil
}
