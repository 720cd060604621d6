package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"formulary/internal/model"
	"formulary/internal/utils"
)

// paOnlyNote marks rows for drugs that appear on the PA/MND list but not on
// the preferred drugs list
const paOnlyNote = "Only found in PA/MND list"

// ParsePreferred reads the preferred medical drugs list. Expected columns:
// Category, Drug Status, Drug Name, HCPCS, Manufacturer. Unrecognized status
// text maps to not_listed.
func ParsePreferred(r io.Reader) ([]model.DrugRow, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := headerIndex(header)

	var rows []model.DrugRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		name := strings.TrimSpace(field(record, col, "Drug Name"))
		if name == "" {
			continue
		}

		status, _ := model.ParseDrugStatus(field(record, col, "Drug Status"))
		row := model.DrugRow{
			DrugName:      name,
			Category:      strings.TrimSpace(field(record, col, "Category")),
			DrugStatus:    status,
			PAMndRequired: model.PANotRequired,
		}
		if v := strings.TrimSpace(field(record, col, "HCPCS")); v != "" {
			row.HCPCS = &v
		}
		if v := strings.TrimSpace(field(record, col, "Manufacturer")); v != "" {
			row.Manufacturer = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParsePANames reads the PA/MND medicine list, a single-column CSV of drug
// names that require prior authorization
func ParsePANames(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := headerIndex(header)

	var names []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if name := strings.TrimSpace(field(record, col, "Drug Name")); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// LoadPreferredCSV reads the preferred drugs list from a file
func LoadPreferredCSV(path string) ([]model.DrugRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferred drugs list: %w", err)
	}
	defer f.Close()
	return ParsePreferred(f)
}

// LoadPANamesCSV reads the PA/MND list from a file
func LoadPANamesCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PA/MND list: %w", err)
	}
	defer f.Close()
	return ParsePANames(f)
}

// Merge applies the PA/MND list to the preferred drugs rows. A drug on the
// PA/MND list gets pa_mnd_required=yes on every one of its category rows;
// names found only on the PA/MND list become bare rows with an empty
// category, noted as PA/MND-only.
func Merge(preferred []model.DrugRow, paNames []string) []model.DrugRow {
	merged := make([]model.DrugRow, len(preferred))
	copy(merged, preferred)

	byName := make(map[string][]int)
	for i := range merged {
		merged[i].PAMndRequired = model.PANotRequired
		key := utils.NormalizeText(merged[i].DrugName)
		byName[key] = append(byName[key], i)
	}

	for _, name := range paNames {
		key := utils.NormalizeText(name)
		if key == "" {
			continue
		}
		if idxs, ok := byName[key]; ok {
			for _, i := range idxs {
				merged[i].PAMndRequired = model.PARequired
			}
			continue
		}

		notes := paOnlyNote
		merged = append(merged, model.DrugRow{
			DrugName:      name,
			Category:      "",
			DrugStatus:    model.StatusNotListed,
			PAMndRequired: model.PARequired,
			Notes:         &notes,
		})
		byName[key] = nil // dedupe repeated PA/MND entries
	}
	return merged
}

// headerIndex maps trimmed column names to their positions
func headerIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	return col
}

// field reads a named column from a record, empty when the column is absent
func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
