package engine

import (
	"context"

	"bankfeed-reconciliation-service/internal/matcher"
	"bankfeed-reconciliation-service/internal/models"
	"bankfeed-reconciliation-service/internal/store"
	apperrors "bankfeed-reconciliation-service/pkg/errors"
	"bankfeed-reconciliation-service/pkg/logger"
)

// LineFailure records a persistence failure for a single line in a batch
type LineFailure struct {
	LineID string `json:"line_id"`
	Error  string `json:"error"`
}

// AutoMatchReport is the persisted outcome of one auto-match run
type AutoMatchReport struct {
	Batch     *BatchResult  `json:"batch"`
	Persisted int           `json:"persisted"`
	Failures  []LineFailure `json:"failures,omitempty"`
}

// MatchingService ties the batch runner to the data store. One instance is
// safe for concurrent use as long as the underlying store is.
type MatchingService struct {
	store   store.DataStore
	matcher *matcher.Matcher
	logger  logger.Logger
}

// NewMatchingService creates a service over the given store and matcher.
// A nil matcher gets the default policy.
func NewMatchingService(dataStore store.DataStore, m *matcher.Matcher, log logger.Logger) *MatchingService {
	if m == nil {
		m = matcher.NewMatcher(nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &MatchingService{
		store:   dataStore,
		matcher: m,
		logger:  log.WithComponent("engine"),
	}
}

// RunAutoMatch loads every matchable line, the unmatched record pool and the
// configured rules, runs the batch and persists the auto-matches.
//
// Persistence failures are isolated per line: a failing line is reported in
// the returned failures and the run continues with the next line. A
// duplicate-match conflict from the store means the pairing already exists
// and is treated as already persisted.
func (s *MatchingService) RunAutoMatch(ctx context.Context) (*AutoMatchReport, error) {
	lines, err := s.store.ListMatchableLines(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListUnmatchedRecords(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"lines":   len(lines),
		"records": len(records),
		"rules":   len(rules),
	}).Info("starting auto-match run")

	lineByID := make(map[string]*models.BankFeedLine, len(lines))
	for _, line := range lines {
		lineByID[line.ID] = line
	}

	batch := RunBatch(s.matcher, lines, records, rules)
	report := &AutoMatchReport{Batch: batch}

	for _, winner := range batch.AutoMatches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		line := lineByID[winner.LineID]
		if _, err := s.persistMatch(ctx, line, winner.Record, winner.Method(), winner.Score); err != nil {
			s.logger.WithError(err).WithField("line_id", winner.LineID).
				Warn("failed to persist auto-match, continuing")
			report.Failures = append(report.Failures, LineFailure{
				LineID: winner.LineID,
				Error:  err.Error(),
			})
			continue
		}

		report.Persisted++
	}

	s.logger.WithFields(logger.Fields{
		"auto_matched": batch.Summary.AutoMatched,
		"persisted":    report.Persisted,
		"suggest_only": batch.Summary.SuggestOnly,
		"no_candidate": batch.Summary.NoCandidate,
		"failures":     len(report.Failures),
	}).Info("auto-match run finished")

	return report, nil
}

// Suggestions ranks the unmatched record pool against a single line without
// persisting anything.
func (s *MatchingService) Suggestions(ctx context.Context, lineID string) (*matcher.RankResult, error) {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}

	if !line.Matchable() {
		return nil, apperrors.MatchingError(apperrors.CodeLineNotMatchable, lineID,
			"line is not eligible for matching in status "+string(line.Status))
	}

	records, err := s.store.ListUnmatchedRecords(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	return s.matcher.Rank(line, records, nil, rules), nil
}

// QuickMatch matches one line on demand. The match is persisted only when the
// top candidate clears the auto-match threshold; otherwise the ranked
// suggestions come back with a no-suggestion error so the caller can present
// them for manual review.
func (s *MatchingService) QuickMatch(ctx context.Context, lineID string) (*models.BankMatch, *matcher.RankResult, error) {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, nil, err
	}

	if !line.Matchable() {
		return nil, nil, apperrors.MatchingError(apperrors.CodeLineNotMatchable, lineID,
			"line is not eligible for matching in status "+string(line.Status))
	}

	records, err := s.store.ListUnmatchedRecords(ctx)
	if err != nil {
		return nil, nil, err
	}

	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, nil, err
	}

	ranked := s.matcher.Rank(line, records, nil, rules)
	if ranked.Classification != matcher.ClassAutoMatch {
		return nil, ranked, apperrors.MatchingError(apperrors.CodeNoSuggestion, lineID,
			"no candidate cleared the auto-match threshold")
	}

	winner := ranked.Suggestions[0]
	match, err := s.persistMatch(ctx, line, winner.Record, winner.Method(), winner.Score)
	if err != nil {
		return nil, ranked, err
	}

	return match, ranked, nil
}

// AcceptSuggestion creates a manual match between a line and a chosen record.
// The score carried over from the suggestion is stored for audit purposes.
func (s *MatchingService) AcceptSuggestion(ctx context.Context, lineID string, recordType models.RecordType, recordID string, score int) (*models.BankMatch, error) {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}

	if !line.Matchable() {
		return nil, apperrors.MatchingError(apperrors.CodeLineNotMatchable, lineID,
			"line is not eligible for matching in status "+string(line.Status))
	}

	record, err := s.store.GetRecord(ctx, recordType, recordID)
	if err != nil {
		return nil, err
	}

	return s.persistMatch(ctx, line, record, models.MethodManual, score)
}

// Unmatch removes the active match on a line and returns it to the unmatched
// pool. The released record becomes available to later runs again.
func (s *MatchingService) Unmatch(ctx context.Context, lineID string) error {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return err
	}

	match, err := s.store.GetMatchByLine(ctx, lineID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMatch(ctx, match.ID); err != nil {
		return err
	}

	if err := s.store.UpdateLineStatus(ctx, lineID, models.StatusUnmatched, line.MatchedAmount.Sub(match.MatchedAmount)); err != nil {
		return err
	}

	s.logger.WithFields(logger.Fields{
		"line_id":  lineID,
		"match_id": match.ID,
	}).Info("line unmatched")

	return nil
}

// IgnoreLine excludes a line from reconciliation. Only lines without an
// active match can be ignored.
func (s *MatchingService) IgnoreLine(ctx context.Context, lineID string) error {
	return s.transitionUnmatchedLine(ctx, lineID, models.StatusIgnored)
}

// MarkMissingRecord flags a line whose counterpart has not been entered in
// the books yet. The line stays eligible for future runs.
func (s *MatchingService) MarkMissingRecord(ctx context.Context, lineID string) error {
	return s.transitionUnmatchedLine(ctx, lineID, models.StatusMissingRecord)
}

// DeleteLine soft-deletes a line. Deleted lines are retained in the store but
// never surface in listings or matching runs.
func (s *MatchingService) DeleteLine(ctx context.Context, lineID string) error {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return err
	}

	if line.ActiveMatch() != nil {
		return apperrors.New(apperrors.CategoryMatching, apperrors.CodeConflict,
			"cannot delete line "+lineID+" while it has an active match").
			WithSuggestion("unmatch the line first")
	}

	return s.store.UpdateLineStatus(ctx, lineID, models.StatusDeleted, line.MatchedAmount)
}

// RestoreLine brings an ignored or soft-deleted line back to the unmatched
// pool.
func (s *MatchingService) RestoreLine(ctx context.Context, lineID string) error {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return err
	}

	if line.Status != models.StatusIgnored && line.Status != models.StatusDeleted {
		return apperrors.New(apperrors.CategoryMatching, apperrors.CodeConflict,
			"line "+lineID+" is not ignored or deleted")
	}

	return s.store.UpdateLineStatus(ctx, lineID, models.StatusUnmatched, line.MatchedAmount)
}

// persistMatch writes the match and moves the line into its post-match
// status: matched normally, needs_review when the amounts disagree beyond
// tolerance. A duplicate-match conflict means the pairing is already on
// file; the status update still runs so state converges.
func (s *MatchingService) persistMatch(ctx context.Context, line *models.BankFeedLine, record *models.SystemRecord, method models.MatchMethod, score int) (*models.BankMatch, error) {
	match := models.NewBankMatch(line, record, method, score)

	if err := s.store.CreateMatch(ctx, match); err != nil {
		if !apperrors.IsDuplicateMatch(err) {
			return nil, err
		}
		s.logger.WithFields(logger.Fields{
			"line_id": line.ID,
			"record":  record.Key(),
		}).Debug("match already exists, skipping insert")
	}

	status := models.StatusMatched
	if match.AdjustmentRequired {
		status = models.StatusNeedsReview
	}

	if err := s.store.UpdateLineStatus(ctx, line.ID, status, line.MatchedAmount.Add(match.MatchedAmount)); err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"line_id": line.ID,
		"record":  record.Key(),
		"method":  string(method),
		"score":   score,
		"status":  string(status),
	}).Info("match persisted")

	return match, nil
}

// transitionUnmatchedLine moves a line without an active match into the given
// status.
func (s *MatchingService) transitionUnmatchedLine(ctx context.Context, lineID string, status models.LineStatus) error {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return err
	}

	if line.ActiveMatch() != nil {
		return apperrors.New(apperrors.CategoryMatching, apperrors.CodeConflict,
			"line "+lineID+" has an active match").
			WithSuggestion("unmatch the line first")
	}

	return s.store.UpdateLineStatus(ctx, lineID, status, line.MatchedAmount)
}
