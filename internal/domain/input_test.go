package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestManufacturingInputValidate(t *testing.T) {
	valid := ManufacturingInput{
		ProductionCount: Int64(0),
		ScrapCount:      Int64(0),
		Shift:           "morning",
		MachineID:       "M-1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected zero counts to be valid, got %v", err)
	}

	missing := ManufacturingInput{Shift: "  ", MachineID: "M-1"}
	err := missing.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T %v", err, err)
	}
	want := []string{"production_count", "scrap_count", "shift"}
	if len(verr.Fields) != len(want) {
		t.Fatalf("fields = %v, want %v", verr.Fields, want)
	}
	for i := range want {
		if verr.Fields[i] != want[i] {
			t.Fatalf("fields = %v, want %v", verr.Fields, want)
		}
	}
}

func TestSalesInputDecodeAndValidate(t *testing.T) {
	var in SalesInput
	body := `{"order_id":"SO-1","customer_name":"Acme","quantity":3,"dispatch_date":"2025-03-04","payment_status":"paid"}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
	if in.DispatchDate.Year() != 2025 || in.DispatchDate.Month() != time.March || in.DispatchDate.Day() != 4 {
		t.Fatalf("unexpected dispatch date %v", in.DispatchDate)
	}

	var noDate SalesInput
	if err := json.Unmarshal([]byte(`{"order_id":"SO-1","customer_name":"Acme","quantity":3,"payment_status":"paid"}`), &noDate); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := noDate.Validate(); err == nil {
		t.Fatal("expected missing dispatch_date to fail validation")
	}

	if err := json.Unmarshal([]byte(`{"dispatch_date":"04/03/2025"}`), &in); err == nil {
		t.Fatal("expected malformed date to fail decoding")
	}
}

func TestDateJSONRoundTripAndISOInput(t *testing.T) {
	d, err := ParseDate("2025-12-31T18:30:00Z")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `"2025-12-31"` {
		t.Fatalf("unexpected date JSON %s", out)
	}
	zero, _ := json.Marshal(Date{})
	if string(zero) != "null" {
		t.Fatalf("zero date should marshal to null, got %s", zero)
	}
}

func TestDateUnmarshalJSON(t *testing.T) {
	cases := []struct {
		in   string
		want Date
	}{
		{`"2025-01-02"`, NewDate(2025, time.January, 2)},
		{`"2025\u002d01\u002d02"`, NewDate(2025, time.January, 2)},
		{`null`, Date{}},
		{`""`, Date{}},
	}
	for _, tc := range cases {
		var d Date
		if err := json.Unmarshal([]byte(tc.in), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if !d.Equal(tc.want.Time) {
			t.Fatalf("unmarshal %s = %v, want %v", tc.in, d, tc.want)
		}
	}
	for _, bad := range []string{`20250102`, `"2025-13-40"`, `true`} {
		var d Date
		if err := json.Unmarshal([]byte(bad), &d); err == nil {
			t.Fatalf("expected %s to be rejected", bad)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, ok := ParseKind(string(k))
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %q, %v", k, got, ok)
		}
	}
	if _, ok := ParseKind("inventory"); ok {
		t.Fatal("unexpected kind accepted")
	}
	if KindSales.Table() != "sales_records" {
		t.Fatalf("unexpected table name %q", KindSales.Table())
	}
}
