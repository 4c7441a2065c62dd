package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"opsdash/internal/domain"
)

// Integration tests run only when OPSDASH_TEST_POSTGRES_URL points at a
// disposable database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("OPSDASH_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("OPSDASH_TEST_POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, k := range domain.Kinds {
		if _, err := store.pool.Exec(ctx, `TRUNCATE `+k.Table()+` RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate %s failed: %v", k.Table(), err)
		}
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRejectsMalformedDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected malformed DSN to fail")
	}
}

func TestCreateAndListManufacturing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateManufacturing(ctx, domain.ManufacturingInput{
		ProductionCount: domain.Int64(100), ScrapCount: domain.Int64(10), Shift: "morning", MachineID: "M-1",
	})
	if err != nil {
		t.Fatalf("CreateManufacturing failed: %v", err)
	}
	second, err := store.CreateManufacturing(ctx, domain.ManufacturingInput{
		ProductionCount: domain.Int64(50), ScrapCount: domain.Int64(50), Shift: "night", MachineID: "M-2",
	})
	if err != nil {
		t.Fatalf("CreateManufacturing failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected unique ids, got %d twice", first.ID)
	}
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatalf("created_at went backwards: %s < %s", second.CreatedAt, first.CreatedAt)
	}

	rows, err := store.ListManufacturing(ctx, 100)
	if err != nil {
		t.Fatalf("ListManufacturing failed: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != second.ID || rows[1].ID != first.ID {
		t.Fatalf("expected newest-first rows, got %+v", rows)
	}
}

func TestListEmptyAndSalesDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows, err := store.ListSales(ctx, 100)
	if err != nil {
		t.Fatalf("ListSales failed: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty slice, got %#v", rows)
	}

	rec, err := store.CreateSales(ctx, domain.SalesInput{
		OrderID: "SO-1", CustomerName: "Acme", Quantity: domain.Int64(4),
		DispatchDate: domain.NewDate(2025, time.June, 1), PaymentStatus: "paid",
	})
	if err != nil {
		t.Fatalf("CreateSales failed: %v", err)
	}
	if rec.DispatchDate.String() != "2025-06-01" {
		t.Fatalf("unexpected dispatch date %s", rec.DispatchDate)
	}
}
