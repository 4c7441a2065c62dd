package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports create-input fields that are missing or malformed.
// It is returned before any store access.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid required fields: %s", strings.Join(e.Fields, ", "))
}

// Numeric inputs are pointers so an absent field can be told apart from 0.

type ManufacturingInput struct {
	ProductionCount *int64 `json:"production_count"`
	ScrapCount      *int64 `json:"scrap_count"`
	Shift           string `json:"shift"`
	MachineID       string `json:"machine_id"`
}

type TestingInput struct {
	BatchID    string `json:"batch_id"`
	Passed     *int64 `json:"passed"`
	Failed     *int64 `json:"failed"`
	DefectType string `json:"defect_type"`
}

type FieldInput struct {
	CustomerIssue  string `json:"customer_issue"`
	SolutionGiven  string `json:"solution_given"`
	TechnicianName string `json:"technician_name"`
}

type SalesInput struct {
	OrderID       string `json:"order_id"`
	CustomerName  string `json:"customer_name"`
	Quantity      *int64 `json:"quantity"`
	DispatchDate  Date   `json:"dispatch_date"`
	PaymentStatus string `json:"payment_status"`
}

type fieldCheck struct {
	missing []string
}

func (c *fieldCheck) text(name, value string) {
	if strings.TrimSpace(value) == "" {
		c.missing = append(c.missing, name)
	}
}

func (c *fieldCheck) count(name string, value *int64) {
	if value == nil {
		c.missing = append(c.missing, name)
	}
}

func (c *fieldCheck) err() error {
	if len(c.missing) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.missing}
}

func (in ManufacturingInput) Validate() error {
	var c fieldCheck
	c.count("production_count", in.ProductionCount)
	c.count("scrap_count", in.ScrapCount)
	c.text("shift", in.Shift)
	c.text("machine_id", in.MachineID)
	return c.err()
}

func (in TestingInput) Validate() error {
	var c fieldCheck
	c.text("batch_id", in.BatchID)
	c.count("passed", in.Passed)
	c.count("failed", in.Failed)
	c.text("defect_type", in.DefectType)
	return c.err()
}

func (in FieldInput) Validate() error {
	var c fieldCheck
	c.text("customer_issue", in.CustomerIssue)
	c.text("solution_given", in.SolutionGiven)
	c.text("technician_name", in.TechnicianName)
	return c.err()
}

func (in SalesInput) Validate() error {
	var c fieldCheck
	c.text("order_id", in.OrderID)
	c.text("customer_name", in.CustomerName)
	c.count("quantity", in.Quantity)
	if in.DispatchDate.IsZero() {
		c.missing = append(c.missing, "dispatch_date")
	}
	c.text("payment_status", in.PaymentStatus)
	return c.err()
}

// Int64 is a convenience for building inputs in code and tests.
func Int64(v int64) *int64 {
	return &v
}
