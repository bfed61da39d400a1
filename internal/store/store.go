// Package store defines the persistence boundary of the matching engine and
// its concrete implementations. The engine itself never performs I/O; every
// write goes through the DataStore interface so the matcher stays a pure
// function of its inputs.
package store

import (
	"context"

	"bankfeed-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// DataStore is the CRUD boundary the matching service writes through.
// Implementations must enforce a unique (line, record type, record id)
// constraint on matches so that re-creating the same match surfaces a
// duplicate-match conflict instead of a second row.
type DataStore interface {
	LineStore
	RecordStore
	RuleStore
	MatchStore
	Close() error
}

// LineStore handles bank feed line operations
type LineStore interface {
	// SaveLine inserts or replaces a bank feed line
	SaveLine(ctx context.Context, line *models.BankFeedLine) error

	// GetLine retrieves one line with its matches
	GetLine(ctx context.Context, id string) (*models.BankFeedLine, error)

	// ListMatchableLines returns all lines eligible for the batch runner:
	// status unmatched or missing_record, zero active matches
	ListMatchableLines(ctx context.Context) ([]*models.BankFeedLine, error)

	// ListLines returns all non-deleted lines
	ListLines(ctx context.Context) ([]*models.BankFeedLine, error)

	// UpdateLineStatus sets the lifecycle status and cumulative matched amount
	UpdateLineStatus(ctx context.Context, lineID string, status models.LineStatus, matchedAmount decimal.Decimal) error
}

// RecordStore handles normalized system record operations
type RecordStore interface {
	// SaveRecord inserts or replaces a system record
	SaveRecord(ctx context.Context, record *models.SystemRecord) error

	// GetRecord retrieves one record by its (type, id) identity
	GetRecord(ctx context.Context, recordType models.RecordType, id string) (*models.SystemRecord, error)

	// ListUnmatchedRecords returns records not consumed by any active match
	ListUnmatchedRecords(ctx context.Context) ([]*models.SystemRecord, error)
}

// RuleStore handles matching rule operations
type RuleStore interface {
	// SaveRule inserts or replaces a matching rule
	SaveRule(ctx context.Context, rule *models.MatchingRule) error

	// ListRules returns all rules ordered by priority
	ListRules(ctx context.Context) ([]*models.MatchingRule, error)
}

// MatchStore handles bank match operations
type MatchStore interface {
	// CreateMatch persists a match. Returns a duplicate-match error when the
	// (line, record) pair already has an active match.
	CreateMatch(ctx context.Context, match *models.BankMatch) error

	// DeleteMatch removes a match by id
	DeleteMatch(ctx context.Context, matchID string) error

	// GetMatchByLine returns the active match for a line, or a not-found error
	GetMatchByLine(ctx context.Context, lineID string) (*models.BankMatch, error)
}
