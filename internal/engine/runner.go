// Package engine runs the matching process over whole batches of bank feed
// lines and persists the outcome through the data store.
//
// The batch runner itself is pure: it performs no I/O and, given the same
// lines, records and rules, always produces the same result. Persistence is
// layered on top by MatchingService.
package engine

import (
	"bankfeed-reconciliation-service/internal/matcher"
	"bankfeed-reconciliation-service/internal/models"
)

// BatchSummary aggregates counts over one batch run
type BatchSummary struct {
	TotalLines    int `json:"total_lines"`
	SkippedLines  int `json:"skipped_lines"`
	AutoMatched   int `json:"auto_matched"`
	SuggestOnly   int `json:"suggest_only"`
	NoCandidate   int `json:"no_candidate"`
	RecordsInPool int `json:"records_in_pool"`
}

// BatchResult is the outcome of one batch run before any persistence
type BatchResult struct {
	// AutoMatches holds the winning candidate for every line whose top
	// score cleared the auto-match threshold, in line order.
	AutoMatches []*matcher.SuggestedMatch

	// Suggestions maps line id to its ranked candidates for every line that
	// was not auto-matched. Lines without any viable candidate carry an
	// empty list.
	Suggestions map[string][]*matcher.SuggestedMatch

	Summary BatchSummary
}

// RunBatch matches every eligible line in lines against the record pool.
//
// Lines are processed in the order given. When a line auto-matches, its
// record is consumed and no longer offered to later lines in the same batch,
// so one record can back at most one auto-match per run. Lines that are not
// matchable (already matched, ignored or deleted) are skipped.
func RunBatch(m *matcher.Matcher, lines []*models.BankFeedLine, records []*models.SystemRecord, rules []*models.MatchingRule) *BatchResult {
	result := &BatchResult{
		Suggestions: make(map[string][]*matcher.SuggestedMatch),
		Summary: BatchSummary{
			TotalLines:    len(lines),
			RecordsInPool: len(records),
		},
	}

	consumed := make(map[string]bool)

	for _, line := range lines {
		if !line.Matchable() {
			result.Summary.SkippedLines++
			continue
		}

		ranked := m.Rank(line, records, consumed, rules)

		switch ranked.Classification {
		case matcher.ClassAutoMatch:
			winner := ranked.Suggestions[0]
			result.AutoMatches = append(result.AutoMatches, winner)
			consumed[winner.Record.Key()] = true
			result.Summary.AutoMatched++

		case matcher.ClassSuggestOnly:
			result.Suggestions[line.ID] = ranked.Suggestions
			result.Summary.SuggestOnly++

		default:
			result.Suggestions[line.ID] = nil
			result.Summary.NoCandidate++
		}
	}

	return result
}
