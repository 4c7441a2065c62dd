// Package sqlite is the SQLite record store, used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"opsdash/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS manufacturing_records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	production_count INTEGER NOT NULL CHECK (production_count >= 0),
	scrap_count      INTEGER NOT NULL CHECK (scrap_count >= 0),
	shift            TEXT NOT NULL,
	machine_id       TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_manufacturing_created_at ON manufacturing_records(created_at);

CREATE TABLE IF NOT EXISTS testing_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id    TEXT NOT NULL,
	passed      INTEGER NOT NULL CHECK (passed >= 0),
	failed      INTEGER NOT NULL CHECK (failed >= 0),
	defect_type TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_testing_created_at ON testing_records(created_at);

CREATE TABLE IF NOT EXISTS field_records (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_issue  TEXT NOT NULL,
	solution_given  TEXT NOT NULL,
	technician_name TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_field_created_at ON field_records(created_at);

CREATE TABLE IF NOT EXISTS sales_records (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id       TEXT NOT NULL,
	customer_name  TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity >= 0),
	dispatch_date  DATE NOT NULL,
	payment_status TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales_records(created_at);
`

const nowLayout = "2006-01-02 15:04:05.000"

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT strftime('%Y-%m-%d %H:%M:%f', 'now')`).Scan(&raw); err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(nowLayout, raw, time.UTC)
}

// insertAndLoad runs the insert and reads the stored row back inside one
// transaction so id and created_at come from the database.
func (s *Store) insertAndLoad(ctx context.Context, insert string, args []any, load func(*sql.Tx, int64) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insert, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := load(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Manufacturing ---

const manufacturingColumns = `id, production_count, scrap_count, shift, machine_id, created_at`

func (s *Store) CreateManufacturing(ctx context.Context, in domain.ManufacturingInput) (domain.ManufacturingRecord, error) {
	var rec domain.ManufacturingRecord
	if err := in.Validate(); err != nil {
		return rec, err
	}
	err := s.insertAndLoad(ctx,
		`INSERT INTO manufacturing_records (production_count, scrap_count, shift, machine_id) VALUES (?, ?, ?, ?)`,
		[]any{*in.ProductionCount, *in.ScrapCount, in.Shift, in.MachineID},
		func(tx *sql.Tx, id int64) error {
			return tx.QueryRowContext(ctx,
				`SELECT `+manufacturingColumns+` FROM manufacturing_records WHERE id = ?`, id,
			).Scan(&rec.ID, &rec.ProductionCount, &rec.ScrapCount, &rec.Shift, &rec.MachineID, &rec.CreatedAt)
		},
	)
	return rec, err
}

func (s *Store) ListManufacturing(ctx context.Context, limit int) ([]domain.ManufacturingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+manufacturingColumns+` FROM manufacturing_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ManufacturingRecord{}
	for rows.Next() {
		var rec domain.ManufacturingRecord
		if err := rows.Scan(&rec.ID, &rec.ProductionCount, &rec.ScrapCount, &rec.Shift, &rec.MachineID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Testing ---

const testingColumns = `id, batch_id, passed, failed, defect_type, created_at`

func (s *Store) CreateTesting(ctx context.Context, in domain.TestingInput) (domain.TestingRecord, error) {
	var rec domain.TestingRecord
	if err := in.Validate(); err != nil {
		return rec, err
	}
	err := s.insertAndLoad(ctx,
		`INSERT INTO testing_records (batch_id, passed, failed, defect_type) VALUES (?, ?, ?, ?)`,
		[]any{in.BatchID, *in.Passed, *in.Failed, in.DefectType},
		func(tx *sql.Tx, id int64) error {
			return tx.QueryRowContext(ctx,
				`SELECT `+testingColumns+` FROM testing_records WHERE id = ?`, id,
			).Scan(&rec.ID, &rec.BatchID, &rec.Passed, &rec.Failed, &rec.DefectType, &rec.CreatedAt)
		},
	)
	return rec, err
}

func (s *Store) ListTesting(ctx context.Context, limit int) ([]domain.TestingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+testingColumns+` FROM testing_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TestingRecord{}
	for rows.Next() {
		var rec domain.TestingRecord
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.Passed, &rec.Failed, &rec.DefectType, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Field ---

const fieldColumns = `id, customer_issue, solution_given, technician_name, created_at`

func (s *Store) CreateField(ctx context.Context, in domain.FieldInput) (domain.FieldRecord, error) {
	var rec domain.FieldRecord
	if err := in.Validate(); err != nil {
		return rec, err
	}
	err := s.insertAndLoad(ctx,
		`INSERT INTO field_records (customer_issue, solution_given, technician_name) VALUES (?, ?, ?)`,
		[]any{in.CustomerIssue, in.SolutionGiven, in.TechnicianName},
		func(tx *sql.Tx, id int64) error {
			return tx.QueryRowContext(ctx,
				`SELECT `+fieldColumns+` FROM field_records WHERE id = ?`, id,
			).Scan(&rec.ID, &rec.CustomerIssue, &rec.SolutionGiven, &rec.TechnicianName, &rec.CreatedAt)
		},
	)
	return rec, err
}

func (s *Store) ListField(ctx context.Context, limit int) ([]domain.FieldRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fieldColumns+` FROM field_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.FieldRecord{}
	for rows.Next() {
		var rec domain.FieldRecord
		if err := rows.Scan(&rec.ID, &rec.CustomerIssue, &rec.SolutionGiven, &rec.TechnicianName, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Sales ---

const salesColumns = `id, order_id, customer_name, quantity, dispatch_date, payment_status, created_at`

func (s *Store) CreateSales(ctx context.Context, in domain.SalesInput) (domain.SalesRecord, error) {
	var rec domain.SalesRecord
	if err := in.Validate(); err != nil {
		return rec, err
	}
	err := s.insertAndLoad(ctx,
		`INSERT INTO sales_records (order_id, customer_name, quantity, dispatch_date, payment_status) VALUES (?, ?, ?, ?, ?)`,
		[]any{in.OrderID, in.CustomerName, *in.Quantity, in.DispatchDate.Time, in.PaymentStatus},
		func(tx *sql.Tx, id int64) error {
			return tx.QueryRowContext(ctx,
				`SELECT `+salesColumns+` FROM sales_records WHERE id = ?`, id,
			).Scan(&rec.ID, &rec.OrderID, &rec.CustomerName, &rec.Quantity, &rec.DispatchDate.Time, &rec.PaymentStatus, &rec.CreatedAt)
		},
	)
	return rec, err
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.SalesRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+salesColumns+` FROM sales_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		domain.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SalesRecord{}
	for rows.Next() {
		var rec domain.SalesRecord
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.CustomerName, &rec.Quantity, &rec.DispatchDate.Time, &rec.PaymentStatus, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
