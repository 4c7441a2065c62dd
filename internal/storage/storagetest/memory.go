// Package storagetest provides an in-memory record store for tests of
// packages that sit on top of storage.Store.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"opsdash/internal/domain"
	"opsdash/internal/storage"
)

var _ storage.Store = (*Memory)(nil)

// ErrNegative mirrors the CHECK constraint of the SQL backends.
var ErrNegative = errors.New("storagetest: count must be >= 0")

// Memory is a goroutine-safe store. Records get increasing ids and a
// created_at taken from Clock, which defaults to time.Now.
type Memory struct {
	// Err, when set, is returned by every call.
	Err   error
	Clock func() time.Time

	calls atomic.Int64

	mu            sync.Mutex
	nextID        int64
	manufacturing []domain.ManufacturingRecord
	testing       []domain.TestingRecord
	field         []domain.FieldRecord
	sales         []domain.SalesRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

// Calls counts every store method invocation, including failed ones.
func (m *Memory) Calls() int64 {
	return m.calls.Load()
}

func (m *Memory) begin() (time.Time, int64, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return time.Time{}, 0, m.Err
	}
	now := time.Now()
	if m.Clock != nil {
		now = m.Clock()
	}
	m.nextID++
	return now.UTC(), m.nextID, nil
}

func (m *Memory) list() error {
	m.calls.Add(1)
	return m.Err
}

func negative(values ...int64) bool {
	for _, v := range values {
		if v < 0 {
			return true
		}
	}
	return false
}

func (m *Memory) CreateManufacturing(_ context.Context, in domain.ManufacturingInput) (domain.ManufacturingRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.ManufacturingRecord{}, err
	}
	if negative(*in.ProductionCount, *in.ScrapCount) {
		return domain.ManufacturingRecord{}, ErrNegative
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now, id, err := m.begin()
	if err != nil {
		return domain.ManufacturingRecord{}, err
	}
	rec := domain.ManufacturingRecord{
		ID: id, ProductionCount: *in.ProductionCount, ScrapCount: *in.ScrapCount,
		Shift: in.Shift, MachineID: in.MachineID, CreatedAt: now,
	}
	m.manufacturing = append(m.manufacturing, rec)
	return rec, nil
}

func (m *Memory) CreateTesting(_ context.Context, in domain.TestingInput) (domain.TestingRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.TestingRecord{}, err
	}
	if negative(*in.Passed, *in.Failed) {
		return domain.TestingRecord{}, ErrNegative
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now, id, err := m.begin()
	if err != nil {
		return domain.TestingRecord{}, err
	}
	rec := domain.TestingRecord{
		ID: id, BatchID: in.BatchID, Passed: *in.Passed, Failed: *in.Failed,
		DefectType: in.DefectType, CreatedAt: now,
	}
	m.testing = append(m.testing, rec)
	return rec, nil
}

func (m *Memory) CreateField(_ context.Context, in domain.FieldInput) (domain.FieldRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.FieldRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now, id, err := m.begin()
	if err != nil {
		return domain.FieldRecord{}, err
	}
	rec := domain.FieldRecord{
		ID: id, CustomerIssue: in.CustomerIssue, SolutionGiven: in.SolutionGiven,
		TechnicianName: in.TechnicianName, CreatedAt: now,
	}
	m.field = append(m.field, rec)
	return rec, nil
}

func (m *Memory) CreateSales(_ context.Context, in domain.SalesInput) (domain.SalesRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.SalesRecord{}, err
	}
	if negative(*in.Quantity) {
		return domain.SalesRecord{}, ErrNegative
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now, id, err := m.begin()
	if err != nil {
		return domain.SalesRecord{}, err
	}
	rec := domain.SalesRecord{
		ID: id, OrderID: in.OrderID, CustomerName: in.CustomerName, Quantity: *in.Quantity,
		DispatchDate: in.DispatchDate, PaymentStatus: in.PaymentStatus, CreatedAt: now,
	}
	m.sales = append(m.sales, rec)
	return rec, nil
}

// newest returns up to limit records, newest first.
func newest[R any](records []R, limit int) []R {
	limit = domain.ClampLimit(limit)
	out := make([]R, 0, min(limit, len(records)))
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	return out
}

func (m *Memory) ListManufacturing(_ context.Context, limit int) ([]domain.ManufacturingRecord, error) {
	if err := m.list(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return newest(m.manufacturing, limit), nil
}

func (m *Memory) ListTesting(_ context.Context, limit int) ([]domain.TestingRecord, error) {
	if err := m.list(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return newest(m.testing, limit), nil
}

func (m *Memory) ListField(_ context.Context, limit int) ([]domain.FieldRecord, error) {
	if err := m.list(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return newest(m.field, limit), nil
}

func (m *Memory) ListSales(_ context.Context, limit int) ([]domain.SalesRecord, error) {
	if err := m.list(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return newest(m.sales, limit), nil
}

func (m *Memory) Now(context.Context) (time.Time, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return time.Time{}, fmt.Errorf("ping: %w", m.Err)
	}
	if m.Clock != nil {
		return m.Clock(), nil
	}
	return time.Now(), nil
}

func (m *Memory) Close() error { return nil }
