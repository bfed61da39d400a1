package engine

import (
	"context"
	"fmt"
	"testing"

	"bankfeed-reconciliation-service/internal/matcher"
	"bankfeed-reconciliation-service/internal/models"
	"bankfeed-reconciliation-service/internal/store"
	apperrors "bankfeed-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

func seedStore(t *testing.T, lines []*models.BankFeedLine, records []*models.SystemRecord) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()

	memStore := store.NewMemoryStore()
	for _, line := range lines {
		if err := memStore.SaveLine(ctx, line); err != nil {
			t.Fatalf("seed line: %v", err)
		}
	}
	for _, record := range records {
		if err := memStore.SaveRecord(ctx, record); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}
	return memStore
}

func TestRunAutoMatchPersists(t *testing.T) {
	ctx := context.Background()

	memStore := seedStore(t,
		[]*models.BankFeedLine{
			batchLine("L-1", "-1500.00", "INV-2048 Client Payment", "", batchDate),
		},
		[]*models.SystemRecord{
			batchRecord("R-1", "1500.00", "INV-2048", batchDate),
		},
	)

	service := NewMatchingService(memStore, matcher.NewMatcher(nil), nil)

	report, err := service.RunAutoMatch(ctx)
	if err != nil {
		t.Fatalf("RunAutoMatch: %v", err)
	}

	if report.Persisted != 1 {
		t.Fatalf("persisted = %d, want 1", report.Persisted)
	}

	line, err := memStore.GetLine(ctx, "L-1")
	if err != nil {
		t.Fatalf("GetLine: %v", err)
	}
	if line.Status != models.StatusMatched {
		t.Errorf("line status = %s, want matched", line.Status)
	}
	if want := decimal.RequireFromString("1500.00"); !line.MatchedAmount.Equal(want) {
		t.Errorf("matched amount = %s, want %s", line.MatchedAmount, want)
	}

	match := line.ActiveMatch()
	if match == nil {
		t.Fatal("expected an active match on the line")
	}
	if match.Method != models.MethodSuggested {
		t.Errorf("method = %s, want suggested", match.Method)
	}
	if match.Score < 85 {
		t.Errorf("score = %d, should clear the threshold", match.Score)
	}
}

func TestRunAutoMatchIdempotent(t *testing.T) {
	ctx := context.Background()

	memStore := seedStore(t,
		[]*models.BankFeedLine{
			batchLine("L-1", "-1500.00", "INV-2048 Client Payment", "", batchDate),
		},
		[]*models.SystemRecord{
			batchRecord("R-1", "1500.00", "INV-2048", batchDate),
		},
	)

	service := NewMatchingService(memStore, matcher.NewMatcher(nil), nil)

	if _, err := service.RunAutoMatch(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The matched line and consumed record are gone from the pools, so a
	// second run does nothing.
	report, err := service.RunAutoMatch(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Persisted != 0 || report.Batch.Summary.AutoMatched != 0 {
		t.Errorf("second run should be a no-op: %+v", report.Batch.Summary)
	}

	line, _ := memStore.GetLine(ctx, "L-1")
	if len(line.Matches) != 1 {
		t.Errorf("line has %d matches after two runs, want 1", len(line.Matches))
	}
}

func TestRunAutoMatchNeedsReview(t *testing.T) {
	ctx := context.Background()

	// Reference, dates and wording align but the amounts differ by 1.50,
	// wide enough to require an accounting adjustment: close amount 20 +
	// reference 30 + same date 20 + shared keyword 15 = 85.
	record := batchRecord("R-1", "1500.00", "INV-2048", batchDate)
	record.Description = "Client retainer"

	memStore := seedStore(t,
		[]*models.BankFeedLine{
			batchLine("L-1", "-1498.50", "INV-2048 Client Payment", "INV-2048", batchDate),
		},
		[]*models.SystemRecord{record},
	)

	service := NewMatchingService(memStore, matcher.NewMatcher(nil), nil)

	report, err := service.RunAutoMatch(ctx)
	if err != nil {
		t.Fatalf("RunAutoMatch: %v", err)
	}
	if report.Persisted != 1 {
		t.Fatalf("persisted = %d, want 1 (close amount + reference + same date clears threshold)", report.Persisted)
	}

	line, _ := memStore.GetLine(ctx, "L-1")
	if line.Status != models.StatusNeedsReview {
		t.Errorf("line status = %s, want needs_review", line.Status)
	}

	match := line.ActiveMatch()
	if !match.AdjustmentRequired {
		t.Error("adjustment must be flagged")
	}
	if want := decimal.RequireFromString("1.50"); !match.Discrepancy.Equal(want) {
		t.Errorf("discrepancy = %s, want %s", match.Discrepancy, want)
	}
}

// failingMatchStore fails CreateMatch for one line id to exercise per-line
// error isolation.
type failingMatchStore struct {
	*store.MemoryStore
	failLineID string
}

func (s *failingMatchStore) CreateMatch(ctx context.Context, match *models.BankMatch) error {
	if match.LineID == s.failLineID {
		return apperrors.StoreError("create match", fmt.Errorf("disk full"))
	}
	return s.MemoryStore.CreateMatch(ctx, match)
}

func TestRunAutoMatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()

	memStore := seedStore(t,
		[]*models.BankFeedLine{
			batchLine("L-1", "-1500.00", "INV-2048 Client Payment", "", batchDate),
			batchLine("L-2", "-300.00", "INV-2049 Retainer", "", batchDate),
		},
		[]*models.SystemRecord{
			batchRecord("R-1", "1500.00", "INV-2048", batchDate),
			batchRecord("R-2", "300.00", "INV-2049", batchDate),
		},
	)

	service := NewMatchingService(&failingMatchStore{MemoryStore: memStore, failLineID: "L-1"},
		matcher.NewMatcher(nil), nil)

	report, err := service.RunAutoMatch(ctx)
	if err != nil {
		t.Fatalf("a per-line failure must not abort the run: %v", err)
	}

	if report.Persisted != 1 {
		t.Errorf("persisted = %d, want 1", report.Persisted)
	}
	if len(report.Failures) != 1 || report.Failures[0].LineID != "L-1" {
		t.Errorf("failures = %+v, want L-1", report.Failures)
	}

	line, _ := memStore.GetLine(ctx, "L-2")
	if line.Status != models.StatusMatched {
		t.Errorf("healthy line not matched: %s", line.Status)
	}
}

func TestQuickMatch(t *testing.T) {
	ctx := context.Background()

	memStore := seedStore(t,
		[]*models.BankFeedLine{
			batchLine("L-1", "-1500.00", "INV-2048 Client Payment", "", batchDate),
			batchLine("L-2", "-300.00", "no good candidate", "", batchDate),
		},
		[]*models.SystemRecord{
			batchRecord("R-1", "1500.00", "INV-2048", batchDate),
			batchRecord("R-2", "300.00", "", batchDate.AddDate(0, 0, 9)),
		},
	)

	service := NewMatchingService(memStore, matcher.NewMatcher(nil), nil)

	match, _, err := service.QuickMatch(ctx, "L-1")
	if err != nil {
		t.Fatalf("QuickMatch(L-1): %v", err)
	}
	if match.RecordID != "R-1" {
		t.Errorf("matched record = %s, want R-1", match.RecordID)
	}

	// Below threshold: error plus the ranked suggestions for review.
	_, ranked, err := service.QuickMatch(ctx, "L-2")
	if !apperrors.IsCode(err, apperrors.CodeNoSuggestion) {
		t.Fatalf("expected no_suggestion error, got %v", err)
	}
	if ranked == nil || len(ranked.Suggestions) == 0 {
		t.Error("suggestions should accompany the no_suggestion error")
	}

	// Already matched lines are rejected.
	_, _, err = service.QuickMatch(ctx, "L-1")
	if !apperrors.IsCode(err, apperrors.CodeLineNotMatchable) {
		t.Errorf("expected line_not_matchable, got %v", err)
	}
}

func TestAcceptSuggestionAndUnmatch(t *testing.T) {
	ctx := context.Background()

	memStore := seedStore(t,
		[]*models.BankFeedLine{
			batchLine("L-1", "-300.00", "no strong signals", "", batchDate),
		},
		[]*models.SystemRecord{
			batchRecord("R-1", "300.00", "", batchDate.AddDate(0, 0, 9)),
		},
	)

	service := NewMatchingService(memStore, matcher.NewMatcher(nil), nil)

	match, err := service.AcceptSuggestion(ctx, "L-1", models.RecordTypeReceipt, "R-1", 40)
	if err != nil {
		t.Fatalf("AcceptSuggestion: %v", err)
	}
	if match.Method != models.MethodManual {
		t.Errorf("method = %s, want manual", match.Method)
	}

	line, _ := memStore.GetLine(ctx, "L-1")
	if line.Status != models.StatusMatched {
		t.Fatalf("line status = %s", line.Status)
	}

	// Accepting again conflicts on the same (line, record) pair via the
	// matchable check.
	if _, err := service.AcceptSuggestion(ctx, "L-1", models.RecordTypeReceipt, "R-1", 40); err == nil {
		t.Error("expected error re-matching a matched line")
	}

	if err := service.Unmatch(ctx, "L-1"); err != nil {
		t.Fatalf("Unmatch: %v", err)
	}

	line, _ = memStore.GetLine(ctx, "L-1")
	if line.Status != models.StatusUnmatched {
		t.Errorf("status after unmatch = %s", line.Status)
	}
	if line.ActiveMatch() != nil {
		t.Error("match should be gone after unmatch")
	}

	// The released record is available again.
	records, _ := memStore.ListUnmatchedRecords(ctx)
	if len(records) != 1 {
		t.Errorf("record pool = %d, want 1", len(records))
	}
}

func TestLineLifecycle(t *testing.T) {
	ctx := context.Background()

	memStore := seedStore(t,
		[]*models.BankFeedLine{batchLine("L-1", "-300.00", "misc", "", batchDate)},
		nil,
	)

	service := NewMatchingService(memStore, matcher.NewMatcher(nil), nil)

	if err := service.IgnoreLine(ctx, "L-1"); err != nil {
		t.Fatalf("IgnoreLine: %v", err)
	}
	line, _ := memStore.GetLine(ctx, "L-1")
	if line.Status != models.StatusIgnored {
		t.Fatalf("status = %s, want ignored", line.Status)
	}

	if err := service.RestoreLine(ctx, "L-1"); err != nil {
		t.Fatalf("RestoreLine: %v", err)
	}
	line, _ = memStore.GetLine(ctx, "L-1")
	if line.Status != models.StatusUnmatched {
		t.Fatalf("status = %s, want unmatched", line.Status)
	}

	if err := service.MarkMissingRecord(ctx, "L-1"); err != nil {
		t.Fatalf("MarkMissingRecord: %v", err)
	}
	line, _ = memStore.GetLine(ctx, "L-1")
	if !line.Matchable() {
		t.Error("missing_record lines stay matchable")
	}

	if err := service.DeleteLine(ctx, "L-1"); err != nil {
		t.Fatalf("DeleteLine: %v", err)
	}
	line, _ = memStore.GetLine(ctx, "L-1")
	if line.Status != models.StatusDeleted {
		t.Fatalf("status = %s, want deleted", line.Status)
	}

	// Soft delete: the row is still there and restorable.
	if err := service.RestoreLine(ctx, "L-1"); err != nil {
		t.Fatalf("RestoreLine after delete: %v", err)
	}

	// Restoring an unmatched line is a conflict.
	if err := service.RestoreLine(ctx, "L-1"); err == nil {
		t.Error("expected conflict restoring an unmatched line")
	}
}
