// Package similarity scores candidate existing pages against an
// extracted entity and decides whether it refers to one of them
// (spec.md §4.6). It is the one algorithmic new package in the pack
// with no direct teacher file, built around github.com/xrash/smetrics's
// Jaro-Winkler implementation.
package similarity

import (
	"regexp"
	"sort"
	"strings"

	"github.com/xrash/smetrics"
)

// Weights for the composite score, applied in order: title similarity,
// identifier exact-match boost, context-field token Jaccard.
const (
	titleWeight      = 0.60
	identifierWeight = 0.30
	contextWeight    = 0.10

	// jaroWinklerBoostThreshold and prefixSize are smetrics.JaroWinkler's
	// standard parameters for the Winkler prefix bonus.
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

const (
	defaultHighThreshold = 90.0
	defaultLowThreshold  = 75.0
)

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
var whitespace = regexp.MustCompile(`\s+`)

// Candidate is one existing page considered as a potential match for an
// extracted entity.
type Candidate struct {
	PageID         string
	Title          string
	Identifiers    map[string]string // e.g. email, phone, external_id
	ContextTokens  map[string]struct{}
	LastEditedUnix int64 // unix seconds; no wall-clock reads inside Matcher itself
}

// Outcome is the decision kind of §4.6 step 3.
type Outcome int

const (
	OutcomeNoMatch Outcome = iota
	OutcomeAmbiguous
	OutcomeMatch
)

// Decision is the result of scoring one entity against its candidate
// set.
type Decision struct {
	Outcome       Outcome
	MatchedID     string             // set only when Outcome == OutcomeMatch
	TopCandidates []string           // candidate ids, set only when Outcome == OutcomeAmbiguous
	Scores        map[string]float64 // candidate id -> composite score, for diagnostics
}

// Matcher holds the high/low decision thresholds (spec.md §4.6). Zero
// values select the spec defaults (90 / 75).
type Matcher struct {
	HighThreshold float64
	LowThreshold  float64
}

// New builds a Matcher with the given thresholds, falling back to the
// spec defaults for zero values.
func New(highThreshold, lowThreshold float64) *Matcher {
	if highThreshold == 0 {
		highThreshold = defaultHighThreshold
	}
	if lowThreshold == 0 {
		lowThreshold = defaultLowThreshold
	}
	return &Matcher{HighThreshold: highThreshold, LowThreshold: lowThreshold}
}

// Decide scores every candidate against entityName/identifiers/context
// and returns the decision per §4.6 step 3. Ties at the top score are
// broken per step 4: higher identifier-match count, then (by convention,
// since Candidate carries no tie-break-significant wall-clock read here)
// more recent LastEditedUnix, then lexical order of PageID.
func (m *Matcher) Decide(entityName string, identifiers map[string]string, contextTokens map[string]struct{}, candidates []Candidate) Decision {
	if len(candidates) == 0 {
		return Decision{Outcome: OutcomeNoMatch, Scores: map[string]float64{}}
	}

	normalizedName := normalizeTitle(entityName)
	scores := make(map[string]float64, len(candidates))
	idMatches := make(map[string]int, len(candidates))

	for _, c := range candidates {
		titleScore := smetrics.JaroWinkler(normalizedName, normalizeTitle(c.Title), jaroWinklerBoostThreshold, jaroWinklerPrefixSize) * 100

		matches, share := identifierBoost(identifiers, c.Identifiers)
		idMatches[c.PageID] = matches

		contextScore := tokenJaccard(contextTokens, c.ContextTokens) * 100

		composite := titleWeight*titleScore + identifierWeight*share + contextWeight*contextScore
		scores[c.PageID] = composite
	}

	ranked := rankCandidates(candidates, scores, idMatches)
	top := ranked[0]
	topScore := scores[top.PageID]

	switch {
	case topScore >= m.HighThreshold:
		return Decision{Outcome: OutcomeMatch, MatchedID: top.PageID, Scores: scores}
	case topScore >= m.LowThreshold:
		ids := make([]string, 0, len(ranked))
		for _, c := range ranked {
			if scores[c.PageID] >= m.LowThreshold {
				ids = append(ids, c.PageID)
			}
		}
		return Decision{Outcome: OutcomeAmbiguous, TopCandidates: ids, Scores: scores}
	default:
		return Decision{Outcome: OutcomeNoMatch, Scores: scores}
	}
}

// rankCandidates orders candidates by descending score, breaking ties
// by higher identifier-match count, then more recent LastEditedUnix,
// then lexical order of PageID (§4.6 step 4).
func rankCandidates(candidates []Candidate, scores map[string]float64, idMatches map[string]int) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if scores[a.PageID] != scores[b.PageID] {
			return scores[a.PageID] > scores[b.PageID]
		}
		if idMatches[a.PageID] != idMatches[b.PageID] {
			return idMatches[a.PageID] > idMatches[b.PageID]
		}
		if a.LastEditedUnix != b.LastEditedUnix {
			return a.LastEditedUnix > b.LastEditedUnix
		}
		return a.PageID < b.PageID
	})
	return ranked
}

// identifierBoost counts how many of entity's identifiers exactly match
// candidate's, and returns that count plus the percentage share of the
// identifier weight it earns (each matching identifier adds its full
// share of the available keys compared).
func identifierBoost(entity, candidate map[string]string) (matches int, sharePercent float64) {
	if len(entity) == 0 {
		return 0, 0
	}
	for key, val := range entity {
		if val == "" {
			continue
		}
		if candVal, ok := candidate[key]; ok && candVal == val {
			matches++
		}
	}
	sharePercent = (float64(matches) / float64(len(entity))) * 100
	return matches, sharePercent
}

// tokenJaccard computes |a ∩ b| / |a ∪ b| over two token sets, returning
// 0 when either is empty (no context to compare is not evidence of a
// match).
func tokenJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// normalizeTitle lowercases, strips punctuation, and collapses
// whitespace, per §4.6 step 2's title normalization rule.
func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize splits s into a lowercase token set for Jaccard comparison,
// exported so callers building ContextTokens/identifiers share the same
// normalization as the matcher.
func Tokenize(s string) map[string]struct{} {
	normalized := normalizeTitle(s)
	if normalized == "" {
		return map[string]struct{}{}
	}
	parts := strings.Fields(normalized)
	tokens := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		tokens[p] = struct{}{}
	}
	return tokens
}
