package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect captures the differences between the SQL backends.
type Dialect struct {
	Name     string
	BlobType string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite", BlobType: "BLOB"}
	Postgres = Dialect{Name: "postgres", BlobType: "BYTEA", Numbered: true}
)

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	queryGet    = `SELECT value FROM records WHERE kind = ? AND id = ?`
	queryUpsert = `INSERT INTO records (kind, id, value) VALUES (?, ?, ?) ON CONFLICT (kind, id) DO UPDATE SET value = excluded.value`
	queryDelete = `DELETE FROM records WHERE kind = ? AND id = ?`
)

// SQL is a KV over database/sql.
type SQL struct {
	db *sql.DB
	d  Dialect
}

// NewSQL wraps an open database. Call Init to create the schema.
func NewSQL(db *sql.DB, d Dialect) *SQL {
	return &SQL{db: db, d: d}
}

// OpenSQLite opens (creating if needed) a SQLite database file. ":memory:"
// gives a private in-memory database.
func OpenSQLite(dsn string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite DSN is required")
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
	s := NewSQL(db, SQLite)
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL through lib/pq.
func OpenPostgres(dsn string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres store: %w", err)
	}
	s := NewSQL(db, Postgres)
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init applies the schema.
func (s *SQL) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS records (
			kind TEXT NOT NULL,
			id BIGINT NOT NULL,
			value %s NOT NULL,
			PRIMARY KEY (kind, id)
		)`, s.d.BlobType),
	}
	if s.d.Name == SQLite.Name {
		stmts = append([]string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`}, stmts...)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, key Key) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, s.d.Rebind(queryGet), string(key.Kind), int64(key.ID)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQL) Set(ctx context.Context, key Key, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.d.Rebind(queryUpsert), string(key.Kind), int64(key.ID), value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Remove(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, s.d.Rebind(queryDelete), string(key.Kind), int64(key.ID)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Apply(ctx context.Context, writes []Write) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, w := range writes {
		if w.Value == nil {
			_, err = tx.ExecContext(ctx, s.d.Rebind(queryDelete), string(w.Key.Kind), int64(w.Key.ID))
		} else {
			_, err = tx.ExecContext(ctx, s.d.Rebind(queryUpsert), string(w.Key.Kind), int64(w.Key.ID), w.Value)
		}
		if err != nil {
			return fmt.Errorf("apply %s: %w", w.Key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
