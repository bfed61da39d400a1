package matcher

import (
	"sort"

	"bankfeed-reconciliation-service/internal/models"
)

// Classification is the ranker's verdict for one bank feed line.
type Classification int

const (
	// ClassAutoMatch means the top candidate cleared the auto-match threshold
	ClassAutoMatch Classification = iota

	// ClassSuggestOnly means candidates scored but none cleared the threshold
	ClassSuggestOnly

	// ClassNoCandidate means no record scored above zero
	ClassNoCandidate
)

// String returns the string representation of Classification
func (c Classification) String() string {
	switch c {
	case ClassAutoMatch:
		return "auto_match"
	case ClassSuggestOnly:
		return "suggest_only"
	case ClassNoCandidate:
		return "no_candidate"
	default:
		return "unknown"
	}
}

// SuggestedMatch is an ephemeral, derived pairing of a bank feed line with a
// candidate system record. It is never persisted on its own; it is safe to
// discard and recompute from the same inputs.
type SuggestedMatch struct {
	LineID  string               `json:"line_id"`
	Record  *models.SystemRecord `json:"record"`
	Score   int                  `json:"score"`
	Signals []Signal             `json:"signals"`
	Rule    *AppliedRule         `json:"rule,omitempty"`

	exactAmount bool
}

// ExactAmount reports whether the exact-amount signal fired for this pair,
// which participates in tie-breaking.
func (s *SuggestedMatch) ExactAmount() bool {
	return s.exactAmount
}

// Method returns how a match created from this suggestion should be labelled:
// rule when a configured rule decided it, suggested otherwise.
func (s *SuggestedMatch) Method() models.MatchMethod {
	if s.Rule != nil {
		return models.MethodRule
	}
	return models.MethodSuggested
}

// RankResult holds the ordered suggestions for one line and its classification.
type RankResult struct {
	LineID         string            `json:"line_id"`
	Suggestions    []*SuggestedMatch `json:"suggestions"`
	Classification Classification    `json:"classification"`
}

// Rank scores every candidate record against the line, applies rule deltas,
// and returns the ordered suggestion list with a classification.
//
// Records whose key appears in the exclusion set, or whose currency differs
// from the line's, are excluded from candidacy entirely. Ties are broken
// deterministically: higher score first, then exact-amount pairs, then the
// earlier record date, then record identity as the final stable key.
func (m *Matcher) Rank(
	line *models.BankFeedLine,
	candidates []*models.SystemRecord,
	excluded map[string]bool,
	rules []*models.MatchingRule,
) *RankResult {
	var suggestions []*SuggestedMatch

	for _, record := range candidates {
		if excluded[record.Key()] {
			continue
		}

		scored := m.Score(line, record)
		if scored.Disqualified {
			continue
		}

		suggestion := &SuggestedMatch{
			LineID:  line.ID,
			Record:  record,
			Score:   scored.Score,
			Signals: scored.Signals,
		}

		for _, signal := range scored.Signals {
			if signal.Name == SignalExactAmount {
				suggestion.exactAmount = true
				break
			}
		}

		if applied := EvaluateRules(line, record, rules); applied != nil {
			suggestion.Rule = applied
			suggestion.Score += applied.Delta
		}

		if suggestion.Score > 100 {
			suggestion.Score = 100
		}
		if suggestion.Score <= 0 {
			continue
		}

		suggestions = append(suggestions, suggestion)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.exactAmount != b.exactAmount {
			return a.exactAmount
		}
		if !a.Record.Date.Equal(b.Record.Date) {
			return a.Record.Date.Before(b.Record.Date)
		}
		return a.Record.Key() < b.Record.Key()
	})

	result := &RankResult{LineID: line.ID}

	switch {
	case len(suggestions) == 0:
		result.Classification = ClassNoCandidate
	case suggestions[0].Score >= m.Policy.AutoMatchThreshold:
		result.Classification = ClassAutoMatch
	default:
		result.Classification = ClassSuggestOnly
	}

	if len(suggestions) > m.Policy.MaxSuggestions {
		suggestions = suggestions[:m.Policy.MaxSuggestions]
	}
	result.Suggestions = suggestions

	return result
}
