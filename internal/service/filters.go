package service

import (
	"log"
	"strings"

	"formulary/internal/model"
)

// ResolveFilters validates raw filter values against their domains before
// they reach storage. Enum fields outside their domain are dropped and
// logged; free-text fields are trimmed and dropped when blank. Resolution
// never fails: a query with a bad filter still runs with the rest.
func ResolveFilters(f model.Filters) model.Filters {
	resolved := model.Filters{}

	if f.DrugStatus != nil {
		if status, ok := model.ParseDrugStatus(string(*f.DrugStatus)); ok {
			resolved.DrugStatus = &status
		} else {
			log.Printf("Warning: dropping invalid drug_status filter: %q", *f.DrugStatus)
		}
	}

	if f.PAMndRequired != nil {
		if pa, ok := model.ParsePARequirement(string(*f.PAMndRequired)); ok {
			resolved.PAMndRequired = &pa
		} else {
			log.Printf("Warning: dropping invalid pa_mnd_required filter: %q", *f.PAMndRequired)
		}
	}

	if f.Category != nil {
		if cat := strings.TrimSpace(*f.Category); cat != "" {
			resolved.Category = &cat
		}
	}

	if f.Manufacturer != nil {
		if mfr := strings.TrimSpace(*f.Manufacturer); mfr != "" {
			resolved.Manufacturer = &mfr
		}
	}

	if f.HCPCS != nil {
		if code := strings.TrimSpace(*f.HCPCS); code != "" {
			resolved.HCPCS = &code
		}
	}

	return resolved
}
