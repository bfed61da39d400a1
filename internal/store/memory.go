package store

import (
	"context"
	"sort"
	"sync"

	"bankfeed-reconciliation-service/internal/models"
	apperrors "bankfeed-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process memory. Used for tests and for
// dry-run batches loaded from CSV files.
type MemoryStore struct {
	mu      sync.RWMutex
	lines   map[string]*models.BankFeedLine
	records map[string]*models.SystemRecord
	rules   map[string]*models.MatchingRule
	matches map[string]*models.BankMatch
}

var _ DataStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lines:   make(map[string]*models.BankFeedLine),
		records: make(map[string]*models.SystemRecord),
		rules:   make(map[string]*models.MatchingRule),
		matches: make(map[string]*models.BankMatch),
	}
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveLine(_ context.Context, line *models.BankFeedLine) error {
	if err := line.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "line", line.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *line
	s.lines[line.ID] = &copied
	return nil
}

func (s *MemoryStore) GetLine(_ context.Context, id string) (*models.BankFeedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines[id]
	if !ok {
		return nil, apperrors.NotFound("bank feed line", id)
	}

	copied := *line
	copied.Matches = s.matchesForLineLocked(id)
	return &copied, nil
}

func (s *MemoryStore) ListMatchableLines(_ context.Context) ([]*models.BankFeedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lines []*models.BankFeedLine
	for _, line := range s.lines {
		if line.Status != models.StatusUnmatched && line.Status != models.StatusMissingRecord {
			continue
		}
		if len(s.matchesForLineLocked(line.ID)) > 0 {
			continue
		}
		copied := *line
		lines = append(lines, &copied)
	}

	sortLines(lines)
	return lines, nil
}

func (s *MemoryStore) ListLines(_ context.Context) ([]*models.BankFeedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lines []*models.BankFeedLine
	for _, line := range s.lines {
		if line.Status == models.StatusDeleted {
			continue
		}
		copied := *line
		copied.Matches = s.matchesForLineLocked(line.ID)
		lines = append(lines, &copied)
	}

	sortLines(lines)
	return lines, nil
}

func (s *MemoryStore) UpdateLineStatus(_ context.Context, lineID string, status models.LineStatus, matchedAmount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return apperrors.NotFound("bank feed line", lineID)
	}

	line.Status = status
	line.MatchedAmount = matchedAmount
	return nil
}

func (s *MemoryStore) SaveRecord(_ context.Context, record *models.SystemRecord) error {
	if err := record.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "record", record.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.records[record.Key()] = &copied
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, recordType models.RecordType, id string) (*models.SystemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[string(recordType)+":"+id]
	if !ok {
		return nil, apperrors.NotFound("system record", string(recordType)+":"+id)
	}

	copied := *record
	return &copied, nil
}

func (s *MemoryStore) ListUnmatchedRecords(_ context.Context) ([]*models.SystemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	consumed := make(map[string]bool, len(s.matches))
	for _, match := range s.matches {
		consumed[string(match.RecordType)+":"+match.RecordID] = true
	}

	var records []*models.SystemRecord
	for key, record := range s.records {
		if consumed[key] {
			continue
		}
		copied := *record
		records = append(records, &copied)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].Key() < records[j].Key()
	})

	return records, nil
}

func (s *MemoryStore) SaveRule(_ context.Context, rule *models.MatchingRule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "rule", rule.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rule
	s.rules[rule.ID] = &copied
	return nil
}

func (s *MemoryStore) ListRules(_ context.Context) ([]*models.MatchingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*models.MatchingRule
	for _, rule := range s.rules {
		copied := *rule
		rules = append(rules, &copied)
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	return rules, nil
}

func (s *MemoryStore) CreateMatch(_ context.Context, match *models.BankMatch) error {
	if err := match.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "match", match.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.matches {
		if existing.LineID == match.LineID &&
			existing.RecordType == match.RecordType &&
			existing.RecordID == match.RecordID {
			return apperrors.DuplicateMatch(match.LineID, string(match.RecordType)+":"+match.RecordID)
		}
	}

	copied := *match
	s.matches[match.ID] = &copied
	return nil
}

func (s *MemoryStore) DeleteMatch(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[matchID]; !ok {
		return apperrors.NotFound("bank match", matchID)
	}

	delete(s.matches, matchID)
	return nil
}

func (s *MemoryStore) GetMatchByLine(_ context.Context, lineID string) (*models.BankMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.matchesForLineLocked(lineID)
	if len(matches) == 0 {
		return nil, apperrors.NotFound("bank match for line", lineID)
	}

	return matches[0], nil
}

func (s *MemoryStore) matchesForLineLocked(lineID string) []*models.BankMatch {
	var matches []*models.BankMatch
	for _, match := range s.matches {
		if match.LineID == lineID {
			copied := *match
			matches = append(matches, &copied)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	return matches
}

func sortLines(lines []*models.BankFeedLine) {
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].TransactionDate.Equal(lines[j].TransactionDate) {
			return lines[i].TransactionDate.Before(lines[j].TransactionDate)
		}
		return lines[i].ID < lines[j].ID
	})
}
