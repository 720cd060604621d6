package service

import (
	"formulary/internal/model"
	"formulary/internal/utils"
)

// AggregateRows collapses all formulary rows of a single drug into one
// aggregated view. Returns nil when rows is empty.
//
// Scalar fields (HCPCS, manufacturer, PA requirement, notes) are taken from
// the first row; rows that disagree are not reconciled.
func AggregateRows(rows []model.DrugRow) *model.AggregatedDrug {
	if len(rows) == 0 {
		return nil
	}

	first := rows[0]
	agg := &model.AggregatedDrug{
		DrugName:           first.DrugName,
		Categories:         []string{},
		StatusesByCategory: make(map[string]model.DrugStatus),
		HCPCS:              first.HCPCS,
		Manufacturer:       first.Manufacturer,
		PAMndRequired:      first.PAMndRequired,
		Notes:              first.Notes,
	}

	for _, row := range rows {
		// PA-only rows carry no category
		if row.Category == "" {
			continue
		}
		if _, seen := agg.StatusesByCategory[row.Category]; seen {
			continue
		}
		agg.Categories = append(agg.Categories, row.Category)
		agg.StatusesByCategory[row.Category] = row.DrugStatus
	}

	agg.DrugStatus = OverallStatus(agg.StatusesByCategory)
	return agg
}

// OverallStatus collapses per-category statuses into one: preferred in any
// category wins, then non-preferred, otherwise not listed.
func OverallStatus(statuses map[string]model.DrugStatus) model.DrugStatus {
	overall := model.StatusNotListed
	for _, status := range statuses {
		if status == model.StatusPreferred {
			return model.StatusPreferred
		}
		if status == model.StatusNonPreferred {
			overall = model.StatusNonPreferred
		}
	}
	return overall
}

// AggregateAll groups mixed rows by drug and aggregates each group. Output
// keeps the order drugs first appear in rows.
func AggregateAll(rows []model.DrugRow) []model.AggregatedDrug {
	grouped := make(map[string][]model.DrugRow)
	order := make([]string, 0)
	for _, row := range rows {
		key := utils.NormalizeText(row.DrugName)
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], row)
	}

	results := make([]model.AggregatedDrug, 0, len(order))
	for _, key := range order {
		if agg := AggregateRows(grouped[key]); agg != nil {
			results = append(results, *agg)
		}
	}
	return results
}
