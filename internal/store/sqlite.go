package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reminders (
	id          INTEGER PRIMARY KEY,
	phone       TEXT NOT NULL,
	trigger_at  TEXT NOT NULL,
	message     TEXT NOT NULL,
	recurring   INTEGER NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS sent_reminders (
	id          INTEGER PRIMARY KEY,
	phone       TEXT NOT NULL,
	trigger_at  TEXT NOT NULL,
	message     TEXT NOT NULL,
	recurring   INTEGER NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	sent_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS dead_reminders (
	id          INTEGER PRIMARY KEY,
	phone       TEXT NOT NULL,
	trigger_at  TEXT NOT NULL,
	message     TEXT NOT NULL,
	recurring   INTEGER NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	failed_at   TEXT NOT NULL,
	last_error  TEXT
);
`

// sqlitePersister mirrors the same full-rewrite snapshot semantics as the
// file driver: every Save replaces all rows inside one transaction.
type sqlitePersister struct {
	db *sql.DB
}

func openSQLitePersister(cfg Config) (persister, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlitePersister{db: db}, nil
}

func (p *sqlitePersister) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *sqlitePersister) Save(st state) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, tbl := range []string{"reminders", "sent_reminders", "dead_reminders"} {
		if _, err := tx.Exec("DELETE FROM " + tbl); err != nil {
			return err
		}
	}
	for _, r := range st.Pending {
		_, err := tx.Exec(
			`INSERT INTO reminders(id, phone, trigger_at, message, recurring, attempts) VALUES(?,?,?,?,?,?)`,
			r.ID, r.PhoneNumber, r.TriggerAt.Format(time.RFC3339Nano), r.Message, boolInt(r.Recurring), r.Attempts,
		)
		if err != nil {
			return err
		}
	}
	for _, r := range st.Sent {
		_, err := tx.Exec(
			`INSERT INTO sent_reminders(id, phone, trigger_at, message, recurring, attempts, sent_at) VALUES(?,?,?,?,?,?,?)`,
			r.ID, r.PhoneNumber, r.TriggerAt.Format(time.RFC3339Nano), r.Message, boolInt(r.Recurring), r.Attempts,
			r.SentAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
	}
	for _, r := range st.Dead {
		_, err := tx.Exec(
			`INSERT INTO dead_reminders(id, phone, trigger_at, message, recurring, attempts, failed_at, last_error) VALUES(?,?,?,?,?,?,?,?)`,
			r.ID, r.PhoneNumber, r.TriggerAt.Format(time.RFC3339Nano), r.Message, boolInt(r.Recurring), r.Attempts,
			r.FailedAt.Format(time.RFC3339Nano), nullStr(r.LastError),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *sqlitePersister) Load() (state, error) {
	var st state

	rows, err := p.db.Query(`SELECT id, phone, trigger_at, message, recurring, attempts FROM reminders`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var r Reminder
		var at string
		var rec int
		if err := rows.Scan(&r.ID, &r.PhoneNumber, &at, &r.Message, &rec, &r.Attempts); err != nil {
			rows.Close()
			return st, err
		}
		if r.TriggerAt, err = parseStoredTime(at); err != nil {
			rows.Close()
			return st, err
		}
		r.Recurring = rec != 0
		st.Pending = append(st.Pending, r)
	}
	if err := closeRows(rows); err != nil {
		return st, err
	}

	rows, err = p.db.Query(`SELECT id, phone, trigger_at, message, recurring, attempts, sent_at FROM sent_reminders`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var r SentRecord
		var at, sentAt string
		var rec int
		if err := rows.Scan(&r.ID, &r.PhoneNumber, &at, &r.Message, &rec, &r.Attempts, &sentAt); err != nil {
			rows.Close()
			return st, err
		}
		if r.TriggerAt, err = parseStoredTime(at); err != nil {
			rows.Close()
			return st, err
		}
		if r.SentAt, err = parseStoredTime(sentAt); err != nil {
			rows.Close()
			return st, err
		}
		r.Recurring = rec != 0
		st.Sent = append(st.Sent, r)
	}
	if err := closeRows(rows); err != nil {
		return st, err
	}

	rows, err = p.db.Query(`SELECT id, phone, trigger_at, message, recurring, attempts, failed_at, last_error FROM dead_reminders`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var r DeadRecord
		var at, failedAt string
		var lastErr sql.NullString
		var rec int
		if err := rows.Scan(&r.ID, &r.PhoneNumber, &at, &r.Message, &rec, &r.Attempts, &failedAt, &lastErr); err != nil {
			rows.Close()
			return st, err
		}
		if r.TriggerAt, err = parseStoredTime(at); err != nil {
			rows.Close()
			return st, err
		}
		if r.FailedAt, err = parseStoredTime(failedAt); err != nil {
			rows.Close()
			return st, err
		}
		r.Recurring = rec != 0
		r.LastError = lastErr.String
		st.Dead = append(st.Dead, r)
	}
	if err := closeRows(rows); err != nil {
		return st, err
	}

	return st, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func parseStoredTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
