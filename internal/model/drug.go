package model

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// DrugStatus is the formulary status of a drug within one category
type DrugStatus string

const (
	StatusPreferred    DrugStatus = "preferred"
	StatusNonPreferred DrugStatus = "non_preferred"
	StatusNotListed    DrugStatus = "not_listed"
)

// ParseDrugStatus normalizes raw status text ("Non-Preferred", "non preferred")
// into a canonical DrugStatus. Unrecognized values map to not_listed, ok=false.
func ParseDrugStatus(s string) (DrugStatus, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	v = strings.ReplaceAll(v, " ", "_")
	switch DrugStatus(v) {
	case StatusPreferred:
		return StatusPreferred, true
	case StatusNonPreferred:
		return StatusNonPreferred, true
	case StatusNotListed:
		return StatusNotListed, true
	}
	return StatusNotListed, false
}

// PARequirement indicates whether prior authorization / medical necessity
// documentation is required for a drug
type PARequirement string

const (
	PARequired    PARequirement = "yes"
	PANotRequired PARequirement = "no"
	PAUnknown     PARequirement = "unknown"
)

// ParsePARequirement normalizes raw PA/MND text into a canonical value
func ParsePARequirement(s string) (PARequirement, bool) {
	switch PARequirement(strings.ToLower(strings.TrimSpace(s))) {
	case PARequired:
		return PARequired, true
	case PANotRequired:
		return PANotRequired, true
	case PAUnknown:
		return PAUnknown, true
	}
	return PAUnknown, false
}

// DrugRow is a single formulary row: one drug within one therapeutic category
type DrugRow struct {
	DrugName      string        `json:"drug_name" db:"drug_name"`
	Category      string        `json:"category" db:"category"`
	DrugStatus    DrugStatus    `json:"drug_status" db:"drug_status"`
	HCPCS         *string       `json:"hcpcs,omitempty" db:"hcpcs"`
	Manufacturer  *string       `json:"manufacturer,omitempty" db:"manufacturer"`
	PAMndRequired PARequirement `json:"pa_mnd_required" db:"pa_mnd_required"`
	Notes         *string       `json:"notes,omitempty" db:"notes"`
}

// AggregatedDrug collapses every category row of one drug into a single record.
// Categories keeps first-seen row order; DrugStatus is the collapsed status
// (preferred if any row is preferred, else non_preferred if any row is, else
// not_listed). Scalar fields carry over from the first row.
type AggregatedDrug struct {
	DrugName           string                `json:"drug_name"`
	Categories         []string              `json:"categories"`
	StatusesByCategory map[string]DrugStatus `json:"statuses_by_category"`
	DrugStatus         DrugStatus            `json:"drug_status"`
	HCPCS              *string               `json:"hcpcs,omitempty"`
	Manufacturer       *string               `json:"manufacturer,omitempty"`
	PAMndRequired      PARequirement         `json:"pa_mnd_required"`
	Notes              *string               `json:"notes,omitempty"`
}

// MatchInfo records how a queried name was resolved against the formulary
type MatchInfo struct {
	Input      string `json:"input"`
	Matched    string `json:"matched"`
	Confidence int    `json:"confidence"`
	Exact      bool   `json:"exact"`
}

// JSONArray represents a JSON array field
type JSONArray []string

// Value implements driver.Valuer interface
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), j)
	}
	return json.Unmarshal(bytes, j)
}

// JSONMap represents a JSON object field
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), j)
	}
	return json.Unmarshal(bytes, j)
}
