package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names one of the four record tables.
type Kind string

const (
	KindManufacturing Kind = "manufacturing"
	KindTesting       Kind = "testing"
	KindField         Kind = "field"
	KindSales         Kind = "sales"
)

// Kinds lists every record kind in display order.
var Kinds = []Kind{KindManufacturing, KindTesting, KindField, KindSales}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Table returns the SQL table backing the kind.
func (k Kind) Table() string {
	return string(k) + "_records"
}

type ManufacturingRecord struct {
	ID              int64     `json:"id"`
	ProductionCount int64     `json:"production_count"`
	ScrapCount      int64     `json:"scrap_count"`
	Shift           string    `json:"shift"`
	MachineID       string    `json:"machine_id"`
	CreatedAt       time.Time `json:"created_at"`
}

type TestingRecord struct {
	ID         int64     `json:"id"`
	BatchID    string    `json:"batch_id"`
	Passed     int64     `json:"passed"`
	Failed     int64     `json:"failed"`
	DefectType string    `json:"defect_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type FieldRecord struct {
	ID             int64     `json:"id"`
	CustomerIssue  string    `json:"customer_issue"`
	SolutionGiven  string    `json:"solution_given"`
	TechnicianName string    `json:"technician_name"`
	CreatedAt      time.Time `json:"created_at"`
}

type SalesRecord struct {
	ID            int64     `json:"id"`
	OrderID       string    `json:"order_id"`
	CustomerName  string    `json:"customer_name"`
	Quantity      int64     `json:"quantity"`
	DispatchDate  Date      `json:"dispatch_date"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	// Accept full timestamps too; browsers sometimes send ISO datetimes.
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid date %s: want a YYYY-MM-DD string", data)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MaxListLimit caps every list query.
const MaxListLimit = 100

// ClampLimit maps a requested list size onto 1..MaxListLimit; non-positive
// requests get the cap.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
