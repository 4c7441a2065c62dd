// Package postgres is the Postgres record store. Connections come from a
// pgx pool and are held only for the duration of one call.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opsdash/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS manufacturing_records (
		id               SERIAL PRIMARY KEY,
		production_count INTEGER NOT NULL CHECK (production_count >= 0),
		scrap_count      INTEGER NOT NULL CHECK (scrap_count >= 0),
		shift            TEXT NOT NULL,
		machine_id       TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_manufacturing_created_at ON manufacturing_records(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS testing_records (
		id          SERIAL PRIMARY KEY,
		batch_id    TEXT NOT NULL,
		passed      INTEGER NOT NULL CHECK (passed >= 0),
		failed      INTEGER NOT NULL CHECK (failed >= 0),
		defect_type TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_testing_created_at ON testing_records(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS field_records (
		id              SERIAL PRIMARY KEY,
		customer_issue  TEXT NOT NULL,
		solution_given  TEXT NOT NULL,
		technician_name TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_field_created_at ON field_records(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sales_records (
		id             SERIAL PRIMARY KEY,
		order_id       TEXT NOT NULL,
		customer_name  TEXT NOT NULL,
		quantity       INTEGER NOT NULL CHECK (quantity >= 0),
		dispatch_date  DATE NOT NULL,
		payment_status TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales_records(created_at DESC)`,
}

type Store struct {
	pool *pgxpool.Pool
}

// Open builds the pool, pings the server and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now)
	return now, err
}

// --- Manufacturing ---

const manufacturingColumns = `id, production_count, scrap_count, shift, machine_id, created_at`

func scanManufacturing(row pgx.Row) (domain.ManufacturingRecord, error) {
	var rec domain.ManufacturingRecord
	err := row.Scan(&rec.ID, &rec.ProductionCount, &rec.ScrapCount, &rec.Shift, &rec.MachineID, &rec.CreatedAt)
	return rec, err
}

func (s *Store) CreateManufacturing(ctx context.Context, in domain.ManufacturingInput) (domain.ManufacturingRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.ManufacturingRecord{}, err
	}
	return scanManufacturing(s.pool.QueryRow(ctx,
		`INSERT INTO manufacturing_records (production_count, scrap_count, shift, machine_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+manufacturingColumns,
		*in.ProductionCount, *in.ScrapCount, in.Shift, in.MachineID,
	))
}

func (s *Store) ListManufacturing(ctx context.Context, limit int) ([]domain.ManufacturingRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+manufacturingColumns+` FROM manufacturing_records ORDER BY created_at DESC, id DESC LIMIT $1`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanManufacturing)
}

// --- Testing ---

const testingColumns = `id, batch_id, passed, failed, defect_type, created_at`

func scanTesting(row pgx.Row) (domain.TestingRecord, error) {
	var rec domain.TestingRecord
	err := row.Scan(&rec.ID, &rec.BatchID, &rec.Passed, &rec.Failed, &rec.DefectType, &rec.CreatedAt)
	return rec, err
}

func (s *Store) CreateTesting(ctx context.Context, in domain.TestingInput) (domain.TestingRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.TestingRecord{}, err
	}
	return scanTesting(s.pool.QueryRow(ctx,
		`INSERT INTO testing_records (batch_id, passed, failed, defect_type)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+testingColumns,
		in.BatchID, *in.Passed, *in.Failed, in.DefectType,
	))
}

func (s *Store) ListTesting(ctx context.Context, limit int) ([]domain.TestingRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+testingColumns+` FROM testing_records ORDER BY created_at DESC, id DESC LIMIT $1`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTesting)
}

// --- Field ---

const fieldColumns = `id, customer_issue, solution_given, technician_name, created_at`

func scanField(row pgx.Row) (domain.FieldRecord, error) {
	var rec domain.FieldRecord
	err := row.Scan(&rec.ID, &rec.CustomerIssue, &rec.SolutionGiven, &rec.TechnicianName, &rec.CreatedAt)
	return rec, err
}

func (s *Store) CreateField(ctx context.Context, in domain.FieldInput) (domain.FieldRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.FieldRecord{}, err
	}
	return scanField(s.pool.QueryRow(ctx,
		`INSERT INTO field_records (customer_issue, solution_given, technician_name)
		 VALUES ($1, $2, $3)
		 RETURNING `+fieldColumns,
		in.CustomerIssue, in.SolutionGiven, in.TechnicianName,
	))
}

func (s *Store) ListField(ctx context.Context, limit int) ([]domain.FieldRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fieldColumns+` FROM field_records ORDER BY created_at DESC, id DESC LIMIT $1`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanField)
}

// --- Sales ---

const salesColumns = `id, order_id, customer_name, quantity, dispatch_date, payment_status, created_at`

func scanSales(row pgx.Row) (domain.SalesRecord, error) {
	var rec domain.SalesRecord
	err := row.Scan(&rec.ID, &rec.OrderID, &rec.CustomerName, &rec.Quantity, &rec.DispatchDate.Time, &rec.PaymentStatus, &rec.CreatedAt)
	return rec, err
}

func (s *Store) CreateSales(ctx context.Context, in domain.SalesInput) (domain.SalesRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.SalesRecord{}, err
	}
	return scanSales(s.pool.QueryRow(ctx,
		`INSERT INTO sales_records (order_id, customer_name, quantity, dispatch_date, payment_status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+salesColumns,
		in.OrderID, in.CustomerName, *in.Quantity, in.DispatchDate.Time, in.PaymentStatus,
	))
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.SalesRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+salesColumns+` FROM sales_records ORDER BY created_at DESC, id DESC LIMIT $1`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSales)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
