package utils

import (
	"sort"
	"strings"
)

// Candidate is a fuzzy match candidate with its similarity confidence.
// Distance is the plain edit distance, kept to break confidence ties.
type Candidate struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Distance   int    `json:"-"`
}

// Similarity scores how close two names are on a 0-100 scale. The score
// is a normalized indel similarity taken over three views of the inputs:
// as normalized, with spaces removed, and with tokens sorted. The best
// view wins, which tolerates spacing and word-order differences in
// multi-word brand names.
func Similarity(a, b string) int {
	return similarityNormalized(NormalizeText(a), NormalizeText(b))
}

func similarityNormalized(na, nb string) int {
	if na == nb {
		return 100
	}
	best := indelSimilarity(na, nb)
	if s := indelSimilarity(stripSpaces(na), stripSpaces(nb)); s > best {
		best = s
	}
	if s := indelSimilarity(sortTokens(na), sortTokens(nb)); s > best {
		best = s
	}
	return best
}

// EditDistance is the Levenshtein distance between the normalized inputs
func EditDistance(a, b string) int {
	return levenshtein([]rune(NormalizeText(a)), []rune(NormalizeText(b)))
}

// Match scores candidate against every name in universe and returns the
// top matches ordered by confidence descending, edit distance ascending,
// then name. No confidence floor is applied here; acceptance tiers are
// the caller's policy. An empty universe yields an empty result.
func Match(candidate string, universe []string, topK int) []Candidate {
	if topK <= 0 || len(universe) == 0 {
		return nil
	}
	nq := NormalizeText(candidate)
	rq := []rune(nq)

	scored := make([]Candidate, 0, len(universe))
	for _, name := range universe {
		nn := NormalizeText(name)
		scored = append(scored, Candidate{
			Name:       name,
			Confidence: similarityNormalized(nq, nn),
			Distance:   levenshtein(rq, []rune(nn)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].Name < scored[j].Name
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// BestMatch returns the best match at or above threshold. An exact match
// after normalization short-circuits with confidence 100.
func BestMatch(query string, universe []string, threshold int) (string, int, bool) {
	if query == "" || len(universe) == 0 {
		return "", 0, false
	}
	nq := NormalizeText(query)
	for _, name := range universe {
		if NormalizeText(name) == nq {
			return name, 100, true
		}
	}
	matches := Match(query, universe, 1)
	if len(matches) > 0 && matches[0].Confidence >= threshold {
		return matches[0].Name, matches[0].Confidence, true
	}
	return "", 0, false
}

// ExtractDrugName locates the known drug name a free-form query most
// likely refers to. Every run of one to three consecutive words is scored
// against the universe; the whole query is tried as a last resort with a
// looser threshold. Earlier candidates win ties.
func ExtractDrugName(query string, universe []string) (string, int, bool) {
	if NormalizeText(query) == "" || len(universe) == 0 {
		return "", 0, false
	}

	words := strings.Fields(query)
	var candidates []string
	for i := range words {
		candidates = append(candidates, words[i])
		if i+1 < len(words) {
			candidates = append(candidates, words[i]+" "+words[i+1])
		}
		if i+2 < len(words) {
			candidates = append(candidates, words[i]+" "+words[i+1]+" "+words[i+2])
		}
	}

	var bestName string
	bestConf := 0
	for _, cand := range candidates {
		if name, conf, ok := BestMatch(cand, universe, 60); ok && conf > bestConf {
			bestName, bestConf = name, conf
		}
	}
	if bestName != "" {
		return bestName, bestConf, true
	}
	return BestMatch(query, universe, 50)
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func sortTokens(s string) string {
	fields := strings.Fields(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// indelSimilarity is round(200*lcs/(len(a)+len(b))) over runes
func indelSimilarity(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return (200*lcsLength(ra, rb) + total/2) / total
}

// lcsLength computes the longest common subsequence length with a
// single-row DP table
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			if a[i-1] == b[j-1] {
				row[j] = prev + 1
			} else if row[j-1] > row[j] {
				row[j] = row[j-1]
			}
			prev = cur
		}
	}
	return row[len(b)]
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			m := prev[j-1] + cost
			if v := prev[j] + 1; v < m {
				m = v
			}
			if v := cur[j-1] + 1; v < m {
				m = v
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
