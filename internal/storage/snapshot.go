package storage

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"opsdash/internal/domain"
)

// Snapshot is the most recent window of every table, newest first.
type Snapshot struct {
	Manufacturing []domain.ManufacturingRecord `json:"manufacturing_records"`
	Testing       []domain.TestingRecord       `json:"testing_records"`
	Field         []domain.FieldRecord         `json:"field_records"`
	Sales         []domain.SalesRecord         `json:"sales_records"`
}

// Len is the total number of rows across all tables.
func (s Snapshot) Len() int {
	return len(s.Manufacturing) + len(s.Testing) + len(s.Field) + len(s.Sales)
}

// FetchSnapshot lists the latest limit rows of each table concurrently.
// Any single failure fails the whole fetch.
func FetchSnapshot(ctx context.Context, store Store, limit int) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := store.ListManufacturing(gctx, limit)
		if err != nil {
			return fmt.Errorf("list manufacturing: %w", err)
		}
		snap.Manufacturing = rows
		return nil
	})
	g.Go(func() error {
		rows, err := store.ListTesting(gctx, limit)
		if err != nil {
			return fmt.Errorf("list testing: %w", err)
		}
		snap.Testing = rows
		return nil
	})
	g.Go(func() error {
		rows, err := store.ListField(gctx, limit)
		if err != nil {
			return fmt.Errorf("list field: %w", err)
		}
		snap.Field = rows
		return nil
	})
	g.Go(func() error {
		rows, err := store.ListSales(gctx, limit)
		if err != nil {
			return fmt.Errorf("list sales: %w", err)
		}
		snap.Sales = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Ping reports whether the store answers, returning its clock.
func Ping(ctx context.Context, store Store, timeout time.Duration) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return store.Now(ctx)
}
