// Package sqlite implements the repositories and the redemption ledger on an
// embedded SQLite database through modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	_ "modernc.org/sqlite"

	"github.com/xenking/kart-promotions/db"
)

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
}

// Store implements every repository of the service and ledger.Store on one
// SQLite database. All access goes through a single connection, which
// serializes ledger transactions.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			_ = sqlDB.Close()
			return nil, errors.Wrapf(err, "exec %q", p)
		}
	}
	if _, err := sqlDB.ExecContext(ctx, db.SQLiteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &Store{db: sqlDB}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// stringList stores a string slice as a JSON array.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *stringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		*l = nil
		return nil
	default:
		return errors.Errorf("scan list from %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return errors.Wrap(err, "decode list")
	}
	if len(out) == 0 {
		out = nil
	}
	*l = out
	return nil
}

// timestamp stores an optional instant as RFC 3339 UTC text.
type timestamp struct {
	t *time.Time
}

func (ts timestamp) Value() (driver.Value, error) {
	if ts.t == nil {
		return nil, nil
	}
	return ts.t.UTC().Format(time.RFC3339Nano), nil
}

func (ts *timestamp) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		ts.t = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		t := v.UTC()
		ts.t = &t
		return nil
	default:
		return errors.Errorf("scan timestamp from %T", src)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return errors.Wrap(err, "parse timestamp")
	}
	ts.t = &t
	return nil
}

func at(t time.Time) timestamp {
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()
	return timestamp{t: &t}
}

func (ts timestamp) time() time.Time {
	if ts.t == nil {
		return time.Time{}
	}
	return *ts.t
}
