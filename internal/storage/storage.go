// Package storage defines the record store contract and picks a backend
// from the configured connection string.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opsdash/internal/domain"
	"opsdash/internal/storage/postgres"
	"opsdash/internal/storage/sqlite"
)

// Store is the create-only record store. Each call checks a connection out
// for its own duration; nothing is held between calls.
type Store interface {
	CreateManufacturing(ctx context.Context, in domain.ManufacturingInput) (domain.ManufacturingRecord, error)
	ListManufacturing(ctx context.Context, limit int) ([]domain.ManufacturingRecord, error)

	CreateTesting(ctx context.Context, in domain.TestingInput) (domain.TestingRecord, error)
	ListTesting(ctx context.Context, limit int) ([]domain.TestingRecord, error)

	CreateField(ctx context.Context, in domain.FieldInput) (domain.FieldRecord, error)
	ListField(ctx context.Context, limit int) ([]domain.FieldRecord, error)

	CreateSales(ctx context.Context, in domain.SalesInput) (domain.SalesRecord, error)
	ListSales(ctx context.Context, limit int) ([]domain.SalesRecord, error)

	// Now returns the store's clock; used as a reachability probe.
	Now(ctx context.Context) (time.Time, error)
	Close() error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// Open connects to the store named by dsn, applies the schema and pings it.
//
//	postgres://... or postgresql://...  -> Postgres via pgxpool
//	sqlite://path, file:path, *.db      -> SQLite
func Open(ctx context.Context, dsn string) (Store, error) {
	backend, target, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	switch backend {
	case "postgres":
		return postgres.Open(ctx, target)
	default:
		return sqlite.Open(ctx, target)
	}
}

// ParseDSN returns the backend name and the driver-level DSN.
func ParseDSN(dsn string) (string, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("database url is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite database url has no path")
		}
		return "sqlite", path, nil
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return "sqlite", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme in %q", redact(dsn))
	}
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}
