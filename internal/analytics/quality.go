package analytics

import (
	"time"

	"opsdash/internal/domain"
)

const DefaultTestingDays = 30

type TestingKPIs struct {
	TotalPassed int64   `json:"total_passed"`
	TotalFailed int64   `json:"total_failed"`
	TotalTested int64   `json:"total_tested"`
	PassRate    float64 `json:"pass_rate"`
	DefectRate  float64 `json:"defect_rate"`
	Batches     int     `json:"batches"`
}

type TestingView struct {
	Days        int         `json:"days"`
	Records     int         `json:"records"`
	KPIs        TestingKPIs `json:"kpis"`
	ByDefect    []Aggregate `json:"by_defect"`
	DefectShare []Slice     `json:"defect_share"`
	TopBatches  []Aggregate `json:"top_batches"`
	Daily       []Bucket    `json:"daily"`
}

var testingFields = map[string]func(domain.TestingRecord) string{
	"defect_type": func(r domain.TestingRecord) string { return r.DefectType },
	"batch_id":    func(r domain.TestingRecord) string { return r.BatchID },
}

var testingMeasures = []Measure[domain.TestingRecord]{
	{Name: "passed", Value: func(r domain.TestingRecord) int64 { return r.Passed }},
	{Name: "failed", Value: func(r domain.TestingRecord) int64 { return r.Failed }},
}

func testingCreatedAt(r domain.TestingRecord) time.Time { return r.CreatedAt }

// Testing derives the quality dashboard. Pass rate is
// passed / (passed + failed) * 100, and 0 when nothing was tested. Batches
// are ranked by failures so the worst batches lead.
func Testing(records []domain.TestingRecord, f Filter) TestingView {
	matched := apply(records, f, DefaultTestingDays, testingCreatedAt, testingFields)

	passed := sum(matched, testingMeasures[0].Value)
	failed := sum(matched, testingMeasures[1].Value)
	tested := passed + failed

	byDefect := groupBy(matched, testingFields["defect_type"], asIs, testingMeasures...)
	byBatch := groupBy(matched, testingFields["batch_id"], asIs, testingMeasures...)

	return TestingView{
		Days:    f.days(DefaultTestingDays),
		Records: len(matched),
		KPIs: TestingKPIs{
			TotalPassed: passed,
			TotalFailed: failed,
			TotalTested: tested,
			PassRate:    percent(float64(passed), float64(tested)),
			DefectRate:  percent(float64(failed), float64(tested)),
			Batches:     distinct(matched, testingFields["batch_id"]),
		},
		ByDefect:    byDefect,
		DefectShare: shares(byDefect, "failed"),
		TopBatches:  rankBy(byBatch, "failed", TopN),
		Daily: bucketBy(matched, dayOf(testingCreatedAt, f.location()),
			dayKeyLayout, dayLabelLayout, testingMeasures...),
	}
}

func TestingOptions(records []domain.TestingRecord) map[string][]string {
	return options(records, testingFields)
}

func TestingFilterFields() []string { return []string{"defect_type", "batch_id"} }
