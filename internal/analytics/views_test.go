package analytics

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdash/internal/domain"
)

func TestManufacturingEfficiencyScenario(t *testing.T) {
	records := []domain.ManufacturingRecord{
		mfg(100, 10, "morning", "M-1", at(0, 9)),
		mfg(50, 50, "night", "M-2", at(0, 10)),
	}
	view := Manufacturing(records, Filter{Now: refNow})

	assert.Equal(t, 30, view.Days)
	assert.Equal(t, 2, view.Records)
	assert.Equal(t, int64(150), view.KPIs.TotalProduction)
	assert.Equal(t, int64(60), view.KPIs.TotalScrap)
	assert.InDelta(t, 60.0, view.KPIs.Efficiency, 1e-9)
	assert.InDelta(t, 75.0, view.KPIs.AvgProduction, 1e-9)

	require.Len(t, view.ByShift, 2)
	assert.Equal(t, "Morning", view.ByShift[0].Name)
	assert.Equal(t, int64(100), view.ByShift[0].Metrics["production"])
	assert.Equal(t, "Night", view.ByShift[1].Name)
	assert.Equal(t, int64(50), view.ByShift[1].Metrics["production"])

	assert.Equal(t, []Slice{{Name: "Morning", Value: 100}, {Name: "Night", Value: 50}}, view.ShiftShare)
	require.Len(t, view.TopMachines, 2)
	assert.Equal(t, "M-1", view.TopMachines[0].Name)
	require.Len(t, view.Daily, 1)
	assert.Equal(t, int64(150), view.Daily[0].Metrics["production"])
}

func TestManufacturingEmptyIsZeroNotNaN(t *testing.T) {
	view := Manufacturing(nil, Filter{Now: refNow})
	assert.Equal(t, 0.0, view.KPIs.Efficiency)
	assert.Equal(t, 0.0, view.KPIs.AvgProduction)
	assert.NotNil(t, view.ByShift)
	assert.Empty(t, view.Daily)
}

func TestManufacturingTopMachinesCapped(t *testing.T) {
	var records []domain.ManufacturingRecord
	for i := 0; i < 25; i++ {
		records = append(records, mfg(int64(i*10), 0, "morning", fmt.Sprintf("M-%02d", i), at(i%5, 8)))
	}
	view := Manufacturing(records, Filter{Now: refNow})
	require.Len(t, view.TopMachines, TopN)
	assert.Equal(t, "M-24", view.TopMachines[0].Name)
	for i := 1; i < len(view.TopMachines); i++ {
		assert.GreaterOrEqual(t, view.TopMachines[i-1].Metrics["production"], view.TopMachines[i].Metrics["production"])
	}
	// Full breakdowns are never truncated.
	assert.Len(t, view.ByShift, 1)
}

func TestGroupSumsConserveTotals(t *testing.T) {
	var records []domain.ManufacturingRecord
	shifts := []string{"morning", "afternoon", "night"}
	for i := 0; i < 60; i++ {
		records = append(records, mfg(int64(i*7%50), int64(i%4), shifts[i%3], fmt.Sprintf("M-%d", i%6), at(i%20, i%24)))
	}
	view := Manufacturing(records, Filter{Now: refNow, Days: 30})

	var prod, scrap, count int64
	for _, g := range view.ByShift {
		prod += g.Metrics["production"]
		scrap += g.Metrics["scrap"]
		count += g.Count
	}
	assert.Equal(t, view.KPIs.TotalProduction, prod)
	assert.Equal(t, view.KPIs.TotalScrap, scrap)
	assert.Equal(t, int64(view.Records), count)

	var daily int64
	for i, b := range view.Daily {
		daily += b.Metrics["production"]
		if i > 0 {
			assert.Less(t, view.Daily[i-1].Date, b.Date, "buckets must be strictly ascending")
		}
	}
	assert.Equal(t, view.KPIs.TotalProduction, daily)
}

func TestTestingZeroPassRate(t *testing.T) {
	records := []domain.TestingRecord{
		{BatchID: "B-1", Passed: 0, Failed: 0, DefectType: "none", CreatedAt: at(1, 9)},
	}
	view := Testing(records, Filter{Now: refNow})
	assert.Equal(t, 0.0, view.KPIs.PassRate)
	assert.Equal(t, 0.0, view.KPIs.DefectRate)
	assert.False(t, math.IsNaN(view.KPIs.PassRate))
}

func TestTestingView(t *testing.T) {
	records := []domain.TestingRecord{
		{BatchID: "B-1", Passed: 90, Failed: 10, DefectType: "scratch", CreatedAt: at(1, 9)},
		{BatchID: "B-2", Passed: 40, Failed: 20, DefectType: "dent", CreatedAt: at(2, 9)},
		{BatchID: "B-1", Passed: 70, Failed: 30, DefectType: "scratch", CreatedAt: at(2, 15)},
		{BatchID: "B-3", Passed: 10, Failed: 0, DefectType: "none", CreatedAt: at(60, 9)},
	}
	view := Testing(records, Filter{Now: refNow})

	assert.Equal(t, 3, view.Records)
	assert.Equal(t, int64(200), view.KPIs.TotalPassed)
	assert.Equal(t, int64(60), view.KPIs.TotalFailed)
	assert.InDelta(t, 200.0/260.0*100, view.KPIs.PassRate, 1e-9)
	assert.Equal(t, 2, view.KPIs.Batches)

	require.Len(t, view.ByDefect, 2)
	assert.Equal(t, "scratch", view.ByDefect[0].Key)
	assert.Equal(t, int64(40), view.ByDefect[0].Metrics["failed"])

	require.Len(t, view.TopBatches, 2)
	assert.Equal(t, "B-1", view.TopBatches[0].Key)

	require.Len(t, view.Daily, 2)
	assert.Equal(t, "Mar 13", view.Daily[0].Label)

	filtered := Testing(records, Filter{Now: refNow, Selections: map[string]string{"defect_type": "dent"}})
	assert.Equal(t, 1, filtered.Records)
	assert.InDelta(t, 40.0/60.0*100, filtered.KPIs.PassRate, 1e-9)
}

func TestFieldView(t *testing.T) {
	records := []domain.FieldRecord{
		{CustomerIssue: "Printer broken and slow", SolutionGiven: "Replaced fuser", TechnicianName: "Ana", CreatedAt: at(1, 9)},
		{CustomerIssue: "Login ERROR", SolutionGiven: "Reset password", TechnicianName: "Ben", CreatedAt: at(1, 11)},
		{CustomerIssue: "Network down", SolutionGiven: "Rebooted switch", TechnicianName: "Ana", CreatedAt: at(3, 9)},
		{CustomerIssue: "Screen broken", SolutionGiven: "Swapped panel", TechnicianName: "Cy", CreatedAt: at(3, 10)},
	}
	view := Field(records, Filter{Now: refNow, Days: 10})

	assert.Equal(t, 4, view.KPIs.TotalIssues)
	assert.Equal(t, 3, view.KPIs.UniqueTechnicians)
	assert.InDelta(t, 0.4, view.KPIs.AvgIssuesPerDay, 1e-9)
	assert.Equal(t, 4, view.KPIs.TotalSolutions)

	require.Len(t, view.TopTechnicians, 3)
	assert.Equal(t, "Ana", view.TopTechnicians[0].Name)
	assert.Equal(t, int64(2), view.TopTechnicians[0].Count)
	// Ben and Cy tie at 1; first occurrence wins.
	assert.Equal(t, "Ben", view.TopTechnicians[1].Name)
	assert.Equal(t, "Cy", view.TopTechnicians[2].Name)

	require.NotEmpty(t, view.Keywords)
	assert.Equal(t, Slice{Name: "Broken", Value: 2}, view.Keywords[0])
	assert.LessOrEqual(t, len(view.Keywords), KeywordTopN)
	assert.Contains(t, view.Keywords, Slice{Name: "Error", Value: 1})

	require.Len(t, view.Daily, 2)
	assert.Equal(t, int64(2), view.Daily[0].Count)
}

func TestSalesView(t *testing.T) {
	records := []domain.SalesRecord{
		{OrderID: "1", CustomerName: "Acme", Quantity: 5, DispatchDate: domain.NewDate(2025, time.April, 2), PaymentStatus: "paid", CreatedAt: at(1, 9)},
		{OrderID: "2", CustomerName: "Globex", Quantity: 8, DispatchDate: domain.NewDate(2025, time.March, 20), PaymentStatus: "pending", CreatedAt: at(2, 9)},
		{OrderID: "3", CustomerName: "Acme", Quantity: 4, DispatchDate: domain.NewDate(2025, time.March, 28), PaymentStatus: "paid", CreatedAt: at(2, 10)},
		{OrderID: "4", CustomerName: "Initech", Quantity: 1, PaymentStatus: "partial", CreatedAt: at(200, 9)},
	}
	view := Sales(records, Filter{Now: refNow}, 0)

	assert.Equal(t, 365, view.Days)
	assert.Equal(t, DefaultUnitPrice, view.UnitPrice)
	assert.Equal(t, 4, view.KPIs.TotalOrders)
	assert.Equal(t, int64(18), view.KPIs.TotalQuantity)
	assert.InDelta(t, 1800.0, view.KPIs.TotalRevenue, 1e-9)
	assert.InDelta(t, 450.0, view.KPIs.AvgOrderValue, 1e-9)

	require.Len(t, view.ByPaymentStatus, 3)
	assert.Equal(t, "Paid", view.ByPaymentStatus[0].Name)
	assert.Equal(t, int64(2), view.ByPaymentStatus[0].Count)
	assert.Equal(t, []Slice{{Name: "Paid", Value: 2}, {Name: "Pending", Value: 1}, {Name: "Partial", Value: 1}}, view.PaymentShare)

	require.Len(t, view.TopCustomers, 3)
	assert.Equal(t, "Acme", view.TopCustomers[0].Name)
	assert.InDelta(t, 900.0, view.TopCustomers[0].Revenue, 1e-9)

	require.Len(t, view.DispatchMonths, 2, "a zero dispatch date is skipped")
	assert.Equal(t, "Mar 2025", view.DispatchMonths[0].Label)
	assert.Equal(t, int64(2), view.DispatchMonths[0].Count)
	assert.Equal(t, "Apr 2025", view.DispatchMonths[1].Label)

	require.Len(t, view.Daily, 3)
	last := view.Daily[len(view.Daily)-1]
	assert.InDelta(t, float64(last.Metrics["quantity"])*DefaultUnitPrice, last.Revenue, 1e-9)

	priced := Sales(records, Filter{Now: refNow, Selections: map[string]string{"customer_name": "Acme"}}, 12.5)
	assert.Equal(t, 2, priced.KPIs.TotalOrders)
	assert.InDelta(t, 112.5, priced.KPIs.TotalRevenue, 1e-9)
}

func TestViewsAreDeterministic(t *testing.T) {
	records := []domain.SalesRecord{
		{CustomerName: "B", Quantity: 3, PaymentStatus: "paid", CreatedAt: at(1, 1)},
		{CustomerName: "A", Quantity: 3, PaymentStatus: "pending", CreatedAt: at(2, 1)},
	}
	f := Filter{Now: refNow, Days: 30}
	assert.Equal(t, Sales(records, f, 10), Sales(records, f, 10))
}
