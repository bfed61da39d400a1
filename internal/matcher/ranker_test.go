package matcher

import (
	"testing"

	"bankfeed-reconciliation-service/internal/models"
)

func TestRankClassifications(t *testing.T) {
	m := NewMatcher(nil)

	tests := []struct {
		name    string
		line    *models.BankFeedLine
		records []*models.SystemRecord
		want    Classification
	}{
		{
			name: "auto match at threshold",
			line: makeLine("-1500.00", "THB", "INV-2048 Client Payment", "", baseDate),
			records: []*models.SystemRecord{
				makeRecord("R-1", "1500.00", "THB", "INV-2048", "", baseDate),
			},
			want: ClassAutoMatch,
		},
		{
			name: "amount only stays a suggestion",
			line: makeLine("-1500.00", "THB", "Incoming funds", "", baseDate),
			records: []*models.SystemRecord{
				makeRecord("R-1", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 9)),
			},
			want: ClassSuggestOnly,
		},
		{
			name: "currency mismatch leaves no candidates",
			line: makeLine("-1500.00", "EUR", "INV-2048 Client Payment", "", baseDate),
			records: []*models.SystemRecord{
				makeRecord("R-1", "1500.00", "THB", "INV-2048", "", baseDate),
			},
			want: ClassNoCandidate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.Rank(tt.line, tt.records, nil, nil)
			if result.Classification != tt.want {
				t.Errorf("classification = %s, want %s", result.Classification, tt.want)
			}
		})
	}
}

func TestRankExcludesConsumedRecords(t *testing.T) {
	m := NewMatcher(nil)

	line := makeLine("-1500.00", "THB", "INV-2048 Client Payment", "", baseDate)
	record := makeRecord("R-1", "1500.00", "THB", "INV-2048", "", baseDate)

	excluded := map[string]bool{record.Key(): true}

	result := m.Rank(line, []*models.SystemRecord{record}, excluded, nil)
	if result.Classification != ClassNoCandidate {
		t.Errorf("excluded record still ranked: %s", result.Classification)
	}
}

func TestRankTieBreaks(t *testing.T) {
	m := NewMatcher(nil)

	line := makeLine("-1500.00", "THB", "settlement", "", baseDate)

	// Two exact-amount records inside the close-date window score the same,
	// so the earlier record date decides.
	early := makeRecord("R-early", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 1))
	late := makeRecord("R-late", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 2))

	result := m.Rank(line, []*models.SystemRecord{late, early}, nil, nil)
	if len(result.Suggestions) != 2 {
		t.Fatalf("got %d suggestions", len(result.Suggestions))
	}
	if result.Suggestions[0].Record.ID != "R-early" {
		t.Errorf("earlier record date should win the tie, got %s first", result.Suggestions[0].Record.ID)
	}
}

func TestRankExactAmountBreaksScoreTie(t *testing.T) {
	m := NewMatcher(nil)

	// exact amount only: 40. close amount + same date: 20 + 20 = 40.
	line := makeLine("-1500.00", "THB", "settlement", "", baseDate)
	exactFar := makeRecord("R-exact", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 30))
	closeSameDay := makeRecord("R-close", "1490.00", "THB", "", "", baseDate)

	result := m.Rank(line, []*models.SystemRecord{closeSameDay, exactFar}, nil, nil)
	if len(result.Suggestions) != 2 {
		t.Fatalf("got %d suggestions", len(result.Suggestions))
	}
	if result.Suggestions[0].Score != result.Suggestions[1].Score {
		t.Fatalf("setup broken: scores %d vs %d should tie",
			result.Suggestions[0].Score, result.Suggestions[1].Score)
	}
	if result.Suggestions[0].Record.ID != "R-exact" {
		t.Errorf("exact-amount pair should rank first on a tie, got %s", result.Suggestions[0].Record.ID)
	}
}

func TestRankDeterministicFinalKey(t *testing.T) {
	m := NewMatcher(nil)

	line := makeLine("-1500.00", "THB", "settlement", "", baseDate)
	a := makeRecord("R-a", "1500.00", "THB", "", "", baseDate)
	b := makeRecord("R-b", "1500.00", "THB", "", "", baseDate)

	first := m.Rank(line, []*models.SystemRecord{b, a}, nil, nil)
	second := m.Rank(line, []*models.SystemRecord{a, b}, nil, nil)

	if first.Suggestions[0].Record.ID != "R-a" || second.Suggestions[0].Record.ID != "R-a" {
		t.Error("identical pairs must order by record key regardless of input order")
	}
}

func TestRankRuleDelta(t *testing.T) {
	m := NewMatcher(nil)

	line := makeLine("-1500.00", "THB", "Incoming funds payroll", "", baseDate)
	record := makeRecord("R-1", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 9))

	boost := boostRule("boost", 1, 50, models.RuleCondition{
		Field: models.FieldLineDescription, Comparator: models.ComparatorContains, Value: "payroll",
	})

	result := m.Rank(line, []*models.SystemRecord{record}, nil, []*models.MatchingRule{boost})
	if result.Classification != ClassAutoMatch {
		t.Errorf("rule boost should push 40 to 90: %s", result.Classification)
	}

	top := result.Suggestions[0]
	if top.Score != 90 {
		t.Errorf("score = %d, want 90", top.Score)
	}
	if top.Rule == nil || top.Rule.RuleID != "boost" {
		t.Errorf("applied rule not recorded: %+v", top.Rule)
	}
	if top.Method() != models.MethodRule {
		t.Errorf("method = %s, want rule", top.Method())
	}
}

func TestRankRuleClampAndDrop(t *testing.T) {
	m := NewMatcher(nil)

	line := makeLine("-1500.00", "THB", "INV-2048 Client Payment", "", baseDate)
	record := makeRecord("R-1", "1500.00", "THB", "INV-2048", "", baseDate)

	overshoot := boostRule("overshoot", 1, 50, models.RuleCondition{
		Field: models.FieldRecordReference, Comparator: models.ComparatorContains, Value: "INV",
	})
	result := m.Rank(line, []*models.SystemRecord{record}, nil, []*models.MatchingRule{overshoot})
	if result.Suggestions[0].Score != 100 {
		t.Errorf("score = %d, want clamp at 100", result.Suggestions[0].Score)
	}

	bury := boostRule("bury", 1, -95, models.RuleCondition{
		Field: models.FieldRecordReference, Comparator: models.ComparatorContains, Value: "INV",
	})
	result = m.Rank(line, []*models.SystemRecord{record}, nil, []*models.MatchingRule{bury})
	if len(result.Suggestions) != 0 {
		t.Errorf("a candidate at or below zero must be dropped, got %d suggestions", len(result.Suggestions))
	}
	if result.Classification != ClassNoCandidate {
		t.Errorf("classification = %s, want no_candidate", result.Classification)
	}
}

func TestRankMaxSuggestions(t *testing.T) {
	policy := DefaultMatchingPolicy()
	policy.MaxSuggestions = 2
	m := NewMatcher(policy)

	line := makeLine("-1500.00", "THB", "settlement", "", baseDate)
	records := []*models.SystemRecord{
		makeRecord("R-1", "1500.00", "THB", "", "", baseDate),
		makeRecord("R-2", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 1)),
		makeRecord("R-3", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 2)),
		makeRecord("R-4", "1500.00", "THB", "", "", baseDate.AddDate(0, 0, 3)),
	}

	result := m.Rank(line, records, nil, nil)
	if len(result.Suggestions) != 2 {
		t.Errorf("got %d suggestions, want 2", len(result.Suggestions))
	}
	if result.Suggestions[0].Record.ID != "R-1" {
		t.Errorf("best candidate = %s, want R-1", result.Suggestions[0].Record.ID)
	}
}
