package service

import (
	"fmt"
	"strings"

	"formulary/internal/model"
)

// Deterministic markdown answers, used when the model is disabled or fails.
// Same shape the model is instructed to produce, minus the prose.

// FormatDrugStatusAnswer renders a single drug's coverage details
func FormatDrugStatusAnswer(drug *model.AggregatedDrug, match *model.MatchInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", drug.DrugName)
	if match != nil && !match.Exact {
		fmt.Fprintf(&b, "_Showing results for \"%s\" (matched from \"%s\", %d%% confidence)._\n\n",
			match.Matched, match.Input, match.Confidence)
	}
	fmt.Fprintf(&b, "- **Overall status:** %s\n", drug.DrugStatus)
	if len(drug.Categories) > 0 {
		parts := make([]string, 0, len(drug.Categories))
		for _, cat := range drug.Categories {
			parts = append(parts, fmt.Sprintf("%s (%s)", cat, drug.StatusesByCategory[cat]))
		}
		fmt.Fprintf(&b, "- **Categories:** %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "- **PA/MND required:** %s\n", drug.PAMndRequired)
	if drug.HCPCS != nil {
		fmt.Fprintf(&b, "- **HCPCS:** %s\n", *drug.HCPCS)
	}
	if drug.Manufacturer != nil {
		fmt.Fprintf(&b, "- **Manufacturer:** %s\n", *drug.Manufacturer)
	}
	if drug.Notes != nil {
		fmt.Fprintf(&b, "- **Notes:** %s\n", *drug.Notes)
	}
	return strings.TrimSpace(b.String())
}

// FormatAlternativesAnswer renders alternatives grouped by the source
// drug's categories; a drug appearing in several categories is listed under
// each with its status there
func FormatAlternativesAnswer(drugName string, categories []string, alternatives []model.AggregatedDrug) string {
	if len(alternatives) == 0 {
		return fmt.Sprintf("No alternatives found for **%s** in the formulary.", drugName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Alternatives to %s\n", drugName)
	for _, cat := range categories {
		var lines []string
		for _, alt := range alternatives {
			if status, ok := alt.StatusesByCategory[cat]; ok {
				lines = append(lines, fmt.Sprintf("- %s (%s)", alt.DrugName, status))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### Category: %s\n", cat)
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// FormatListAnswer renders a filtered list: count first, full listing when
// the page holds the whole small result set, examples otherwise. total is
// the number of matching drugs; results is the fetched page.
func FormatListAnswer(filters model.Filters, results []model.AggregatedDrug, total int) string {
	criteria := criteriaText(filters)

	if total == 0 {
		if criteria != "" {
			return fmt.Sprintf("No drugs found matching %s.", criteria)
		}
		return "No drugs found matching your criteria."
	}

	var b strings.Builder
	if criteria != "" {
		fmt.Fprintf(&b, "Found **%d** drug(s) matching %s.\n", total, criteria)
	} else {
		fmt.Fprintf(&b, "Found **%d** drug(s).\n", total)
	}
	if len(results) == 0 {
		return strings.TrimSpace(b.String())
	}
	b.WriteString("\n")

	listed := results
	if total >= 15 || len(results) < total {
		b.WriteString("Examples:\n")
		if len(listed) > 10 {
			listed = listed[:10]
		}
	}
	for _, drug := range listed {
		fmt.Fprintf(&b, "- %s (%s)\n", drug.DrugName, drug.DrugStatus)
	}
	return strings.TrimSpace(b.String())
}

// FormatNotFoundAnswer renders the no-match case, with did-you-mean
// suggestions when the matcher produced any
func FormatNotFoundAnswer(input string, suggestions []model.Suggestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "No drug matching \"%s\" was found in the formulary.", input)
	if len(suggestions) > 0 {
		b.WriteString(" Did you mean:\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "- %s\n", s.Name)
		}
	} else {
		b.WriteString(" Please check the spelling of the drug name.")
	}
	return strings.TrimSpace(b.String())
}

// FormatUnknownAnswer renders guidance for queries no rule or model could
// classify
func FormatUnknownAnswer() string {
	return "I couldn't understand the question. Try asking about a drug's status " +
		"(\"Is Avastin preferred?\"), alternatives (\"What are alternatives to Humira?\"), " +
		"or a filtered list (\"List all preferred oncology drugs\")."
}

func criteriaText(filters model.Filters) string {
	var parts []string
	if filters.DrugStatus != nil {
		parts = append(parts, fmt.Sprintf("status %s", *filters.DrugStatus))
	}
	if filters.PAMndRequired != nil {
		parts = append(parts, fmt.Sprintf("PA/MND %s", *filters.PAMndRequired))
	}
	if filters.Category != nil {
		parts = append(parts, fmt.Sprintf("category %s", *filters.Category))
	}
	if filters.Manufacturer != nil {
		parts = append(parts, fmt.Sprintf("manufacturer %s", *filters.Manufacturer))
	}
	if filters.HCPCS != nil {
		parts = append(parts, fmt.Sprintf("HCPCS %s", *filters.HCPCS))
	}
	return strings.Join(parts, ", ")
}
