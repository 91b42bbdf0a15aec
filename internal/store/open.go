package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stupiduntilnot/interviewcoach/internal/conversation"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// StateDB is the already-open SQLite database used by the sqlite backend.
	StateDB        *sql.DB
	PostgresDSN    string
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
}

// Open returns the configured store and a function releasing its resources.
func Open(ctx context.Context, opts Options) (conversation.Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), noop, nil
	case BackendSQLite:
		if opts.StateDB == nil {
			return nil, nil, fmt.Errorf("sqlite store requires an open state database")
		}
		s, err := NewSQL(ctx, opts.StateDB, SQLite)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case BackendPostgres:
		db, err := sql.Open(Postgres.Name, opts.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		s, err := NewSQL(ctx, db, Postgres)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil
	case BackendDynamo:
		client, err := NewDynamoClient(ctx, opts.DynamoRegion, opts.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		d := NewDynamo(client, opts.DynamoTable)
		if err := d.EnsureTable(ctx); err != nil {
			return nil, nil, err
		}
		return d, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
