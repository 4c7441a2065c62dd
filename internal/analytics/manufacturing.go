package analytics

import (
	"time"

	"opsdash/internal/domain"
)

const DefaultManufacturingDays = 30

type ManufacturingKPIs struct {
	TotalProduction int64   `json:"total_production"`
	TotalScrap      int64   `json:"total_scrap"`
	Efficiency      float64 `json:"efficiency"`
	AvgProduction   float64 `json:"avg_production"`
}

type ManufacturingView struct {
	Days        int               `json:"days"`
	Records     int               `json:"records"`
	KPIs        ManufacturingKPIs `json:"kpis"`
	ByShift     []Aggregate       `json:"by_shift"`
	ShiftShare  []Slice           `json:"shift_share"`
	TopMachines []Aggregate       `json:"top_machines"`
	Daily       []Bucket          `json:"daily"`
}

var manufacturingFields = map[string]func(domain.ManufacturingRecord) string{
	"shift":      func(r domain.ManufacturingRecord) string { return r.Shift },
	"machine_id": func(r domain.ManufacturingRecord) string { return r.MachineID },
}

var manufacturingMeasures = []Measure[domain.ManufacturingRecord]{
	{Name: "production", Value: func(r domain.ManufacturingRecord) int64 { return r.ProductionCount }},
	{Name: "scrap", Value: func(r domain.ManufacturingRecord) int64 { return r.ScrapCount }},
}

func manufacturingCreatedAt(r domain.ManufacturingRecord) time.Time { return r.CreatedAt }

// Manufacturing derives the production dashboard. Efficiency is
// (production - scrap) / production * 100, and 0 with no production.
func Manufacturing(records []domain.ManufacturingRecord, f Filter) ManufacturingView {
	matched := apply(records, f, DefaultManufacturingDays, manufacturingCreatedAt, manufacturingFields)

	production := sum(matched, manufacturingMeasures[0].Value)
	scrap := sum(matched, manufacturingMeasures[1].Value)

	byShift := groupBy(matched, manufacturingFields["shift"], capitalize, manufacturingMeasures...)
	byMachine := groupBy(matched, manufacturingFields["machine_id"], asIs, manufacturingMeasures...)

	return ManufacturingView{
		Days:    f.days(DefaultManufacturingDays),
		Records: len(matched),
		KPIs: ManufacturingKPIs{
			TotalProduction: production,
			TotalScrap:      scrap,
			Efficiency:      percent(float64(production-scrap), float64(production)),
			AvgProduction:   ratio(float64(production), float64(len(matched))),
		},
		ByShift:     byShift,
		ShiftShare:  shares(byShift, "production"),
		TopMachines: rankBy(byMachine, "production", TopN),
		Daily: bucketBy(matched, dayOf(manufacturingCreatedAt, f.location()),
			dayKeyLayout, dayLabelLayout, manufacturingMeasures...),
	}
}

// ManufacturingOptions lists the selectable shift and machine values.
func ManufacturingOptions(records []domain.ManufacturingRecord) map[string][]string {
	return options(records, manufacturingFields)
}

// ManufacturingFilterFields names the categorical fields a filter may select.
func ManufacturingFilterFields() []string { return []string{"shift", "machine_id"} }
