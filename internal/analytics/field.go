package analytics

import (
	"strings"
	"time"

	"opsdash/internal/domain"
)

const (
	DefaultFieldDays = 30
	// KeywordTopN bounds the issue keyword ranking.
	KeywordTopN = 8
)

// IssueKeywords are matched case-insensitively as substrings of
// customer_issue.
var IssueKeywords = []string{"error", "broken", "not working", "slow", "down", "issue", "problem", "fault"}

type FieldKPIs struct {
	TotalIssues       int     `json:"total_issues"`
	UniqueTechnicians int     `json:"unique_technicians"`
	AvgIssuesPerDay   float64 `json:"avg_issues_per_day"`
	TotalSolutions    int     `json:"total_solutions"`
}

type FieldView struct {
	Days            int         `json:"days"`
	Records         int         `json:"records"`
	KPIs            FieldKPIs   `json:"kpis"`
	TopTechnicians  []Aggregate `json:"top_technicians"`
	TechnicianShare []Slice     `json:"technician_share"`
	Daily           []Bucket    `json:"daily"`
	Keywords        []Slice     `json:"keywords"`
}

var fieldFields = map[string]func(domain.FieldRecord) string{
	"technician_name": func(r domain.FieldRecord) string { return r.TechnicianName },
}

func fieldCreatedAt(r domain.FieldRecord) time.Time { return r.CreatedAt }

// Field derives the field-service dashboard. Issues per day divides by the
// window length, not by the number of active days.
func Field(records []domain.FieldRecord, f Filter) FieldView {
	matched := apply(records, f, DefaultFieldDays, fieldCreatedAt, fieldFields)
	days := f.days(DefaultFieldDays)

	byTech := groupBy(matched, fieldFields["technician_name"], asIs)
	top := rankBy(byTech, "count", TopN)

	solutions := 0
	for _, r := range matched {
		if strings.TrimSpace(r.SolutionGiven) != "" {
			solutions++
		}
	}

	return FieldView{
		Days:    days,
		Records: len(matched),
		KPIs: FieldKPIs{
			TotalIssues:       len(matched),
			UniqueTechnicians: len(byTech),
			AvgIssuesPerDay:   ratio(float64(len(matched)), float64(days)),
			TotalSolutions:    solutions,
		},
		TopTechnicians:  top,
		TechnicianShare: shares(top, "count"),
		Daily:           bucketBy(matched, dayOf(fieldCreatedAt, f.location()), dayKeyLayout, dayLabelLayout),
		Keywords:        issueKeywords(matched),
	}
}

// issueKeywords counts records mentioning each keyword, ranked descending
// with keyword-list order breaking ties.
func issueKeywords(records []domain.FieldRecord) []Slice {
	counts := make([]Aggregate, 0, len(IssueKeywords))
	for _, kw := range IssueKeywords {
		var n int64
		for _, r := range records {
			if strings.Contains(strings.ToLower(r.CustomerIssue), kw) {
				n++
			}
		}
		if n > 0 {
			counts = append(counts, Aggregate{Key: kw, Name: capitalize(kw), Count: n})
		}
	}
	return shares(rankBy(counts, "count", KeywordTopN), "count")
}

func FieldOptions(records []domain.FieldRecord) map[string][]string {
	return options(records, fieldFields)
}

func FieldFilterFields() []string { return []string{"technician_name"} }
