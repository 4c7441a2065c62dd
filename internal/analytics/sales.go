package analytics

import (
	"time"

	"opsdash/internal/domain"
)

const (
	DefaultSalesDays = 365
	// DefaultUnitPrice is a placeholder price for revenue estimates, not a
	// pricing model.
	DefaultUnitPrice = 100.0
)

type SalesKPIs struct {
	TotalOrders   int     `json:"total_orders"`
	TotalQuantity int64   `json:"total_quantity"`
	TotalRevenue  float64 `json:"total_revenue"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// CustomerRank is a customer aggregate with its estimated revenue.
type CustomerRank struct {
	Aggregate
	Revenue float64 `json:"revenue"`
}

// SalesDay is a daily bucket with its estimated revenue.
type SalesDay struct {
	Bucket
	Revenue float64 `json:"revenue"`
}

type SalesView struct {
	Days            int            `json:"days"`
	Records         int            `json:"records"`
	UnitPrice       float64        `json:"unit_price"`
	KPIs            SalesKPIs      `json:"kpis"`
	ByPaymentStatus []Aggregate    `json:"by_payment_status"`
	PaymentShare    []Slice        `json:"payment_share"`
	TopCustomers    []CustomerRank `json:"top_customers"`
	Daily           []SalesDay     `json:"daily"`
	DispatchMonths  []Bucket       `json:"dispatch_months"`
}

var salesFields = map[string]func(domain.SalesRecord) string{
	"payment_status": func(r domain.SalesRecord) string { return r.PaymentStatus },
	"customer_name":  func(r domain.SalesRecord) string { return r.CustomerName },
}

var salesMeasures = []Measure[domain.SalesRecord]{
	{Name: "quantity", Value: func(r domain.SalesRecord) int64 { return r.Quantity }},
}

func salesCreatedAt(r domain.SalesRecord) time.Time { return r.CreatedAt }

func salesDispatch(r domain.SalesRecord) time.Time { return r.DispatchDate.Time }

// Sales derives the sales dashboard. Revenue is quantity times unitPrice;
// a non-positive unitPrice falls back to DefaultUnitPrice.
func Sales(records []domain.SalesRecord, f Filter, unitPrice float64) SalesView {
	if unitPrice <= 0 {
		unitPrice = DefaultUnitPrice
	}
	matched := apply(records, f, DefaultSalesDays, salesCreatedAt, salesFields)

	quantity := sum(matched, salesMeasures[0].Value)
	revenue := float64(quantity) * unitPrice

	byStatus := groupBy(matched, salesFields["payment_status"], capitalize, salesMeasures...)
	byCustomer := rankBy(groupBy(matched, salesFields["customer_name"], asIs, salesMeasures...), "quantity", TopN)

	customers := make([]CustomerRank, 0, len(byCustomer))
	for _, c := range byCustomer {
		customers = append(customers, CustomerRank{Aggregate: c, Revenue: float64(c.Metric("quantity")) * unitPrice})
	}

	days := bucketBy(matched, dayOf(salesCreatedAt, f.location()), dayKeyLayout, dayLabelLayout, salesMeasures...)
	daily := make([]SalesDay, 0, len(days))
	for _, d := range days {
		daily = append(daily, SalesDay{Bucket: d, Revenue: float64(d.Metrics["quantity"]) * unitPrice})
	}

	return SalesView{
		Days:      f.days(DefaultSalesDays),
		Records:   len(matched),
		UnitPrice: unitPrice,
		KPIs: SalesKPIs{
			TotalOrders:   len(matched),
			TotalQuantity: quantity,
			TotalRevenue:  revenue,
			AvgOrderValue: ratio(revenue, float64(len(matched))),
		},
		ByPaymentStatus: byStatus,
		PaymentShare:    shares(byStatus, "count"),
		TopCustomers:    customers,
		Daily:           daily,
		// Dispatch dates are calendar dates already; no zone conversion.
		DispatchMonths: bucketBy(matched, salesDispatch, monthKeyLayout, monthLabelLayout, salesMeasures...),
	}
}

func SalesOptions(records []domain.SalesRecord) map[string][]string {
	return options(records, salesFields)
}

func SalesFilterFields() []string { return []string{"payment_status", "customer_name"} }
