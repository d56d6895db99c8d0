package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideReturnsMatchForNearIdenticalTitleAndIdentifier(t *testing.T) {
	m := New(0, 0)
	candidates := []Candidate{
		{
			PageID:      "page-1",
			Title:       "Jane Doe",
			Identifiers: map[string]string{"email": "jane@example.com"},
		},
	}
	d := m.Decide("Jane Doe", map[string]string{"email": "jane@example.com"}, nil, candidates)
	assert.Equal(t, OutcomeMatch, d.Outcome)
	assert.Equal(t, "page-1", d.MatchedID)
}

func TestDecideReturnsNoMatchForUnrelatedTitle(t *testing.T) {
	m := New(0, 0)
	candidates := []Candidate{
		{PageID: "page-1", Title: "Completely Different Entity"},
	}
	d := m.Decide("Jane Doe", nil, nil, candidates)
	assert.Equal(t, OutcomeNoMatch, d.Outcome)
}

func TestDecideReturnsAmbiguousInMiddleBand(t *testing.T) {
	m := New(90, 75)
	candidates := []Candidate{
		{PageID: "page-1", Title: "Jane Doan", Identifiers: map[string]string{"email": "jane@example.com"}},
	}
	// Title Jaro-Winkler ~0.93 (≈55.8 of 60) plus the full identifier
	// share (30) puts the composite at ≈85.8, inside [75, 90).
	d := m.Decide("Jane Doe", map[string]string{"email": "jane@example.com"}, nil, candidates)
	require.Equal(t, OutcomeAmbiguous, d.Outcome)
	assert.Contains(t, d.TopCandidates, "page-1")
}

func TestDecideNoCandidatesIsNoMatch(t *testing.T) {
	m := New(0, 0)
	d := m.Decide("Jane Doe", nil, nil, nil)
	assert.Equal(t, OutcomeNoMatch, d.Outcome)
}

func TestDecideIsDeterministic(t *testing.T) {
	m := New(0, 0)
	candidates := []Candidate{
		{PageID: "page-1", Title: "Jane Doe", LastEditedUnix: 100},
		{PageID: "page-2", Title: "Jane Doe", LastEditedUnix: 200},
	}
	d1 := m.Decide("Jane Doe", nil, nil, candidates)
	d2 := m.Decide("Jane Doe", nil, nil, candidates)
	assert.Equal(t, d1, d2)
}

func TestDecideTieBreaksByMoreRecentLastEdited(t *testing.T) {
	m := New(50, 10)
	candidates := []Candidate{
		{PageID: "page-older", Title: "Jane Doe", LastEditedUnix: 100},
		{PageID: "page-newer", Title: "Jane Doe", LastEditedUnix: 200},
	}
	d := m.Decide("Jane Doe", nil, nil, candidates)
	require.Equal(t, OutcomeMatch, d.Outcome)
	assert.Equal(t, "page-newer", d.MatchedID)
}

func TestIdentifierBoostWeightsExactMatches(t *testing.T) {
	matches, share := identifierBoost(
		map[string]string{"email": "a@example.com", "phone": "555"},
		map[string]string{"email": "a@example.com", "phone": "999"},
	)
	assert.Equal(t, 1, matches)
	assert.Equal(t, 50.0, share)
}

func TestTokenJaccardEmptySetsScoreZero(t *testing.T) {
	assert.Equal(t, 0.0, tokenJaccard(nil, nil))
}

func TestTokenJaccardFullOverlap(t *testing.T) {
	a := Tokenize("acme corp")
	b := Tokenize("acme corp")
	assert.Equal(t, 1.0, tokenJaccard(a, b))
}

func TestNormalizeTitleStripsPunctuationAndCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "jane doe", normalizeTitle("  Jane,   Doe!  "))
}
