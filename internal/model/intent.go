package model

// QueryType classifies what a formulary question is asking for
type QueryType string

const (
	QueryTypeDrugStatus   QueryType = "drug_status"
	QueryTypeAlternatives QueryType = "alternatives"
	QueryTypeListFilter   QueryType = "list_filter"
	QueryTypeUnknown      QueryType = "unknown"
)

// IntentSource records which interpreter produced an intent
type IntentSource string

const (
	SourceRule IntentSource = "rule"
	SourceLLM  IntentSource = "llm"
)

// Filters represents structured constraints extracted from a query
type Filters struct {
	DrugStatus    *DrugStatus    `json:"drug_status,omitempty"`
	PAMndRequired *PARequirement `json:"pa_mnd_required,omitempty"`
	Category      *string        `json:"category,omitempty"`
	Manufacturer  *string        `json:"manufacturer,omitempty"`
	HCPCS         *string        `json:"hcpcs,omitempty"`
}

// IsEmpty reports whether no filter field is set
func (f Filters) IsEmpty() bool {
	return f.DrugStatus == nil && f.PAMndRequired == nil &&
		f.Category == nil && f.Manufacturer == nil && f.HCPCS == nil
}

// Intent is the structured interpretation of a natural language query.
// Confidence is 0-100; query_type != unknown implies confidence > 0.
type Intent struct {
	QueryType  QueryType    `json:"query_type"`
	DrugName   *string      `json:"drug_name,omitempty"`
	Filters    Filters      `json:"filters"`
	Confidence int          `json:"confidence"`
	Source     IntentSource `json:"source"`
}

// NeedsDrugName reports whether this query type cannot be answered
// without a resolved drug name
func (i *Intent) NeedsDrugName() bool {
	return i.QueryType == QueryTypeDrugStatus || i.QueryType == QueryTypeAlternatives
}
