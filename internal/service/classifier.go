package service

import (
	"regexp"
	"strings"
	"unicode"

	"formulary/internal/model"
	"formulary/internal/utils"
)

// Rule confidence levels per query type. Rule hits score above the
// fallback threshold so the gate never second-guesses a pattern match.
const (
	confidenceAlternatives = 90
	confidenceDrugStatus   = 95
	confidenceListFilter   = 85
)

var alternativesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(alternative|alternatives|substitute|substitutes|instead|other options?|replace|replacement)\b`),
	regexp.MustCompile(`\b(what else|other .+ like)\b`),
	regexp.MustCompile(`\bpreferred .+ in .+ category\b`),
}

var drugStatusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bis .+ preferred\b`),
	regexp.MustCompile(`\bis .+ non.?preferred\b`),
	regexp.MustCompile(`\bdoes .+ require\b`),
	regexp.MustCompile(`\b(pa|prior auth(orization)?) for\b`),
	regexp.MustCompile(`\b(mnd|medical necessity) for\b`),
	regexp.MustCompile(`\bstatus of\b`),
	regexp.MustCompile(`\bwhat.?s the status\b`),
}

var listFilterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(list|show all|give all|display all|filter)\b`),
	regexp.MustCompile(`\ball .+ (drugs?|medications?)\b`),
	regexp.MustCompile(`\bwhat are .+ drugs?\b`),
	regexp.MustCompile(`\bnon.?preferred .+ (with|that have|having) .+ preferred\b`),
}

// Name capture patterns run case-insensitively over the raw query so the
// candidate keeps its original casing for later fuzzy resolution.
var nameCapturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:alternatives?|substitutes?|replacements?|options?) (?:to|for|of) (.+)$`),
	regexp.MustCompile(`(?i)\binstead of (.+)$`),
	regexp.MustCompile(`(?i)\bis (.+?) (?:an? )?(?:preferred|non.?preferred|covered|listed)\b`),
	regexp.MustCompile(`(?i)\bdoes (.+?) (?:require|need)\b`),
	regexp.MustCompile(`(?i)\bstatus of (.+)$`),
	regexp.MustCompile(`(?i)\b(?:pa|prior auth(?:orization)?|mnd|medical necessity) for (.+)$`),
}

// Status filter ladder. Branch order matters: the most specific phrasing
// wins, and a bare "preferred" never fires when "non-preferred" is present
// since the latter contains the former at a word boundary.
var (
	reNonPrefWithPref = regexp.MustCompile(`\b(non.?preferred|not preferred)\b.*\b(with|that have|having)\b.*\bpreferred\b`)
	reBothStatuses    = regexp.MustCompile(`\b(both|all)\b.*\bpreferred\b`)
	reOnlyPreferred   = regexp.MustCompile(`\b(only|just|exclusively)\s+preferred\b`)
	rePreferred       = regexp.MustCompile(`\bpreferred\b`)
	reNonPreferred    = regexp.MustCompile(`\b(non.?preferred|not preferred)\b`)
	reAltContext      = regexp.MustCompile(`\b(alternative|alternatives|instead|other options?|replace|replacement)\b.*\bto\b`)
	rePreferredNoun   = regexp.MustCompile(`\bpreferred\s+(alternative|drug|medication|option)`)
)

// PA/MND filter patterns. The negative forms are checked first so that
// "doesn't require PA" is not swallowed by the bare "require" match.
var (
	rePAContext  = regexp.MustCompile(`\b(pa|prior auth|preauth|pre.?auth|prior authorization|mnd|medical necessity)\b`)
	rePANegative = regexp.MustCompile(`\b(no pa|without pa|doesn.?t require|no mnd|without mnd)\b`)
	rePAPositive = regexp.MustCompile(`\b(requires?|requiring|need|needed)\b`)
)

var reGenericManufacturer = regexp.MustCompile(`\bgeneric\b`)

// Known therapeutic category keywords, checked in order; first hit wins
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"oncology", []string{"oncology", "cancer", "chemotherapy", "chemo"}},
	{"immunology", []string{"immunology", "immune", "autoimmune"}},
	{"rheumatology", []string{"rheumatology", "rheumatoid", "arthritis"}},
	{"dermatology", []string{"dermatology", "skin", "dermatological"}},
	{"gastroenterology", []string{"gastroenterology", "gi", "digestive", "crohn", "colitis"}},
	{"neurology", []string{"neurology", "neurological", "nerve"}},
	{"hematology", []string{"hematology", "blood"}},
	{"cardiology", []string{"cardiology", "heart", "cardiac"}},
}

type categoryPattern struct {
	category string
	re       *regexp.Regexp
}

var categoryPatterns []categoryPattern

func init() {
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			categoryPatterns = append(categoryPatterns, categoryPattern{
				category: entry.category,
				re:       regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`),
			})
		}
	}
}

// Classify runs the rule patterns over a query and produces a rule-sourced
// intent. Query type families are evaluated in fixed priority order
// (alternatives, drug status, list/filter); filter extraction runs
// independently of type detection. Queries matching no family come back
// as unknown with confidence 0.
func Classify(query string) *model.Intent {
	text := utils.NormalizeText(query)

	intent := &model.Intent{
		QueryType:  model.QueryTypeUnknown,
		Source:     model.SourceRule,
		Confidence: 0,
	}
	if text == "" {
		return intent
	}

	intent.Filters = extractFilters(text)

	switch {
	case matchesAny(alternativesPatterns, text):
		intent.QueryType = model.QueryTypeAlternatives
		intent.Confidence = confidenceAlternatives
	case matchesAny(drugStatusPatterns, text):
		intent.QueryType = model.QueryTypeDrugStatus
		intent.Confidence = confidenceDrugStatus
	case matchesAny(listFilterPatterns, text):
		intent.QueryType = model.QueryTypeListFilter
		intent.Confidence = confidenceListFilter
	}

	if intent.NeedsDrugName() {
		intent.DrugName = extractNameCandidate(query)
	}

	return intent
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// extractNameCandidate pulls the raw, unresolved drug name phrase out of
// the original query text. Returns nil when no pattern captures one.
func extractNameCandidate(query string) *string {
	for _, re := range nameCapturePatterns {
		matches := re.FindStringSubmatch(query)
		if len(matches) < 2 {
			continue
		}
		candidate := strings.TrimFunc(matches[1], func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r)
		})
		if candidate != "" {
			return &candidate
		}
	}
	return nil
}

// extractFilters populates structured filters from a normalized query.
// Each filter key is detected independently; for a given key the last
// matching branch wins.
func extractFilters(text string) model.Filters {
	var filters model.Filters

	filters.DrugStatus = extractStatusFilter(text)
	filters.PAMndRequired = extractPAFilter(text)

	for _, cp := range categoryPatterns {
		if cp.re.MatchString(text) {
			category := cp.category
			filters.Category = &category
			break
		}
	}

	if reGenericManufacturer.MatchString(text) {
		generic := "generic"
		filters.Manufacturer = &generic
	}

	return filters
}

func extractStatusFilter(text string) *model.DrugStatus {
	switch {
	case reNonPrefWithPref.MatchString(text):
		// Non-preferred drugs that have preferred alternatives
		return statusPtr(model.StatusNonPreferred)
	case reBothStatuses.MatchString(text) && reNonPreferred.MatchString(text):
		// "both preferred and non-preferred" means no status filter
		return nil
	case reOnlyPreferred.MatchString(text) && !reNonPreferred.MatchString(text):
		return statusPtr(model.StatusPreferred)
	case rePreferred.MatchString(text) && !reNonPreferred.MatchString(text):
		// A bare "preferred" inside an alternatives question is not a
		// status filter unless used as a noun qualifier
		if !reAltContext.MatchString(text) || rePreferredNoun.MatchString(text) {
			return statusPtr(model.StatusPreferred)
		}
		return nil
	case reNonPreferred.MatchString(text):
		return statusPtr(model.StatusNonPreferred)
	}
	return nil
}

func extractPAFilter(text string) *model.PARequirement {
	if !rePAContext.MatchString(text) {
		return nil
	}
	if rePANegative.MatchString(text) {
		return paPtr(model.PANotRequired)
	}
	if rePAPositive.MatchString(text) {
		return paPtr(model.PARequired)
	}
	return nil
}

func statusPtr(s model.DrugStatus) *model.DrugStatus { return &s }

func paPtr(p model.PARequirement) *model.PARequirement { return &p }
