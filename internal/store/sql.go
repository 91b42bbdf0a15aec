package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stupiduntilnot/interviewcoach/internal/conversation"
)

// Dialect captures the differences between supported SQL engines.
type Dialect struct {
	Name     string
	BlobType string
	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite3", BlobType: "BLOB"}
	Postgres = Dialect{Name: "postgres", BlobType: "BYTEA", Numbered: true}
)

// rebind rewrites "?" placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
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

// SQL stores values in a kv table.
type SQL struct {
	DB      *sql.DB
	Dialect Dialect
	now     func() time.Time
}

// NewSQL creates the kv table if needed and returns the store.
func NewSQL(ctx context.Context, db *sql.DB, dialect Dialect) (*SQL, error) {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value %s NOT NULL,
			updated_at BIGINT NOT NULL
		)`, dialect.BlobType))
	if err != nil {
		return nil, fmt.Errorf("create kv table (%s): %w", dialect.Name, err)
	}
	return &SQL{DB: db, Dialect: dialect, now: time.Now}, nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.DB.QueryRowContext(ctx, s.Dialect.rebind(`SELECT value FROM kv WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQL) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.DB.ExecContext(ctx, s.Dialect.rebind(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, value, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	res, err := s.DB.ExecContext(ctx, s.Dialect.rebind(`DELETE FROM kv WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return conversation.ErrNotFound
	}
	return nil
}
