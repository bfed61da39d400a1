package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bankfeed-reconciliation-service/internal/models"
	apperrors "bankfeed-reconciliation-service/pkg/errors"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteStore provides SQLite-backed persistence for the matching service.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements DataStore
var _ DataStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS bank_feed_lines (
	id               TEXT PRIMARY KEY,
	bank_account_id  TEXT NOT NULL DEFAULT '',
	currency         TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	value_date       TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	reference        TEXT NOT NULL DEFAULT '',
	amount           TEXT NOT NULL,
	running_balance  TEXT NOT NULL DEFAULT '0',
	status           TEXT NOT NULL,
	matched_amount   TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS system_records (
	record_type  TEXT NOT NULL,
	id           TEXT NOT NULL,
	amount       TEXT NOT NULL,
	currency     TEXT NOT NULL,
	record_date  TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	reference    TEXT NOT NULL DEFAULT '',
	counterparty TEXT NOT NULL DEFAULT '',
	project_id   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (record_type, id)
);

CREATE TABLE IF NOT EXISTS matching_rules (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	priority        INTEGER NOT NULL DEFAULT 0,
	enabled         INTEGER NOT NULL DEFAULT 1,
	weight          INTEGER NOT NULL,
	conditions_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bank_matches (
	id                  TEXT PRIMARY KEY,
	line_id             TEXT NOT NULL REFERENCES bank_feed_lines(id),
	record_type         TEXT NOT NULL,
	record_id           TEXT NOT NULL,
	matched_amount      TEXT NOT NULL,
	discrepancy         TEXT NOT NULL,
	method              TEXT NOT NULL,
	score               INTEGER NOT NULL,
	adjustment_required INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL,
	UNIQUE (line_id, record_type, record_id)
);

CREATE INDEX IF NOT EXISTS idx_lines_status ON bank_feed_lines(status);
CREATE INDEX IF NOT EXISTS idx_matches_line ON bank_matches(line_id);
CREATE INDEX IF NOT EXISTS idx_matches_record ON bank_matches(record_type, record_id);
`

// NewSQLiteStore opens (or creates) the SQLite database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.StoreError("open", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, apperrors.StoreError("enable foreign keys", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, apperrors.StoreError("apply schema", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveLine inserts or replaces a bank feed line
func (s *SQLiteStore) SaveLine(ctx context.Context, line *models.BankFeedLine) error {
	if err := line.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "line", line.ID, err)
	}

	valueDate := ""
	if !line.ValueDate.IsZero() {
		valueDate = line.ValueDate.Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bank_feed_lines
		(id, bank_account_id, currency, transaction_date, value_date,
		 description, reference, amount, running_balance, status, matched_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID, line.BankAccountID, line.Currency,
		line.TransactionDate.Format(time.RFC3339), valueDate,
		line.Description, line.Reference, line.Amount.String(),
		line.RunningBalance.String(), string(line.Status), line.MatchedAmount.String(),
	)
	if err != nil {
		return apperrors.StoreError("save line", err)
	}
	return nil
}

// GetLine retrieves one line with its matches
func (s *SQLiteStore) GetLine(ctx context.Context, id string) (*models.BankFeedLine, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bank_account_id, currency, transaction_date, value_date,
		       description, reference, amount, running_balance, status, matched_amount
		FROM bank_feed_lines WHERE id = ?`, id)

	line, err := scanLine(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("bank feed line", id)
	}
	if err != nil {
		return nil, apperrors.StoreError("get line", err)
	}

	matches, err := s.matchesForLine(ctx, id)
	if err != nil {
		return nil, err
	}
	line.Matches = matches

	return line, nil
}

// ListMatchableLines returns lines eligible for the batch runner
func (s *SQLiteStore) ListMatchableLines(ctx context.Context) ([]*models.BankFeedLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.bank_account_id, l.currency, l.transaction_date, l.value_date,
		       l.description, l.reference, l.amount, l.running_balance, l.status, l.matched_amount
		FROM bank_feed_lines l
		WHERE l.status IN (?, ?)
		  AND NOT EXISTS (SELECT 1 FROM bank_matches m WHERE m.line_id = l.id)
		ORDER BY l.transaction_date, l.id`,
		string(models.StatusUnmatched), string(models.StatusMissingRecord))
	if err != nil {
		return nil, apperrors.StoreError("list matchable lines", err)
	}
	defer rows.Close()

	return collectLines(rows)
}

// ListLines returns all non-deleted lines
func (s *SQLiteStore) ListLines(ctx context.Context) ([]*models.BankFeedLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bank_account_id, currency, transaction_date, value_date,
		       description, reference, amount, running_balance, status, matched_amount
		FROM bank_feed_lines
		WHERE status != ?
		ORDER BY transaction_date, id`, string(models.StatusDeleted))
	if err != nil {
		return nil, apperrors.StoreError("list lines", err)
	}
	defer rows.Close()

	return collectLines(rows)
}

// UpdateLineStatus sets the lifecycle status and cumulative matched amount
func (s *SQLiteStore) UpdateLineStatus(ctx context.Context, lineID string, status models.LineStatus, matchedAmount decimal.Decimal) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE bank_feed_lines SET status = ?, matched_amount = ? WHERE id = ?`,
		string(status), matchedAmount.String(), lineID)
	if err != nil {
		return apperrors.StoreError("update line status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.StoreError("update line status", err)
	}
	if affected == 0 {
		return apperrors.NotFound("bank feed line", lineID)
	}

	return nil
}

// SaveRecord inserts or replaces a system record
func (s *SQLiteStore) SaveRecord(ctx context.Context, record *models.SystemRecord) error {
	if err := record.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "record", record.ID, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO system_records
		(record_type, id, amount, currency, record_date, description, reference, counterparty, project_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(record.Type), record.ID, record.Amount.String(), record.Currency,
		record.Date.Format(time.RFC3339), record.Description, record.Reference,
		record.Counterparty, record.ProjectID,
	)
	if err != nil {
		return apperrors.StoreError("save record", err)
	}
	return nil
}

// GetRecord retrieves one record by its (type, id) identity
func (s *SQLiteStore) GetRecord(ctx context.Context, recordType models.RecordType, id string) (*models.SystemRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_type, id, amount, currency, record_date, description, reference, counterparty, project_id
		FROM system_records WHERE record_type = ? AND id = ?`, string(recordType), id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("system record", string(recordType)+":"+id)
	}
	if err != nil {
		return nil, apperrors.StoreError("get record", err)
	}

	return record, nil
}

// ListUnmatchedRecords returns records not consumed by any active match
func (s *SQLiteStore) ListUnmatchedRecords(ctx context.Context) ([]*models.SystemRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.record_type, r.id, r.amount, r.currency, r.record_date,
		       r.description, r.reference, r.counterparty, r.project_id
		FROM system_records r
		WHERE NOT EXISTS (
			SELECT 1 FROM bank_matches m
			WHERE m.record_type = r.record_type AND m.record_id = r.id
		)
		ORDER BY r.record_date, r.record_type, r.id`)
	if err != nil {
		return nil, apperrors.StoreError("list unmatched records", err)
	}
	defer rows.Close()

	var records []*models.SystemRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.StoreError("scan record", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// SaveRule inserts or replaces a matching rule
func (s *SQLiteStore) SaveRule(ctx context.Context, rule *models.MatchingRule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "rule", rule.ID, err)
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return apperrors.StoreError("marshal rule conditions", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO matching_rules (id, name, priority, enabled, weight, conditions_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Priority, boolToInt(rule.Enabled), rule.Weight, string(conditions),
	)
	if err != nil {
		return apperrors.StoreError("save rule", err)
	}
	return nil
}

// ListRules returns all rules ordered by priority
func (s *SQLiteStore) ListRules(ctx context.Context) ([]*models.MatchingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, priority, enabled, weight, conditions_json
		FROM matching_rules ORDER BY priority, id`)
	if err != nil {
		return nil, apperrors.StoreError("list rules", err)
	}
	defer rows.Close()

	var rules []*models.MatchingRule
	for rows.Next() {
		var rule models.MatchingRule
		var enabled int
		var conditions string

		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Priority, &enabled, &rule.Weight, &conditions); err != nil {
			return nil, apperrors.StoreError("scan rule", err)
		}

		if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
			return nil, apperrors.StoreError("unmarshal rule conditions", err)
		}

		rule.Enabled = enabled != 0
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// CreateMatch persists a match, reporting a duplicate-match conflict when the
// (line, record) pair already exists.
func (s *SQLiteStore) CreateMatch(ctx context.Context, match *models.BankMatch) error {
	if err := match.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidField, "match", match.ID, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_matches
		(id, line_id, record_type, record_id, matched_amount, discrepancy,
		 method, score, adjustment_required, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		match.ID, match.LineID, string(match.RecordType), match.RecordID,
		match.MatchedAmount.String(), match.Discrepancy.String(),
		string(match.Method), match.Score, boolToInt(match.AdjustmentRequired),
		match.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return apperrors.DuplicateMatch(match.LineID, string(match.RecordType)+":"+match.RecordID)
		}
		return apperrors.StoreError("create match", err)
	}

	return nil
}

// DeleteMatch removes a match by id
func (s *SQLiteStore) DeleteMatch(ctx context.Context, matchID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bank_matches WHERE id = ?`, matchID)
	if err != nil {
		return apperrors.StoreError("delete match", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.StoreError("delete match", err)
	}
	if affected == 0 {
		return apperrors.NotFound("bank match", matchID)
	}

	return nil
}

// GetMatchByLine returns the active match for a line
func (s *SQLiteStore) GetMatchByLine(ctx context.Context, lineID string) (*models.BankMatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, line_id, record_type, record_id, matched_amount, discrepancy,
		       method, score, adjustment_required, created_at
		FROM bank_matches WHERE line_id = ? ORDER BY created_at LIMIT 1`, lineID)

	match, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("bank match for line", lineID)
	}
	if err != nil {
		return nil, apperrors.StoreError("get match by line", err)
	}

	return match, nil
}

func (s *SQLiteStore) matchesForLine(ctx context.Context, lineID string) ([]*models.BankMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, line_id, record_type, record_id, matched_amount, discrepancy,
		       method, score, adjustment_required, created_at
		FROM bank_matches WHERE line_id = ? ORDER BY created_at`, lineID)
	if err != nil {
		return nil, apperrors.StoreError("list matches for line", err)
	}
	defer rows.Close()

	var matches []*models.BankMatch
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, apperrors.StoreError("scan match", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLine(sc scanner) (*models.BankFeedLine, error) {
	var line models.BankFeedLine
	var txDate, valueDate, amount, balance, matched, status string

	err := sc.Scan(&line.ID, &line.BankAccountID, &line.Currency, &txDate, &valueDate,
		&line.Description, &line.Reference, &amount, &balance, &status, &matched)
	if err != nil {
		return nil, err
	}

	if line.TransactionDate, err = time.Parse(time.RFC3339, txDate); err != nil {
		return nil, fmt.Errorf("invalid transaction date '%s': %w", txDate, err)
	}
	if valueDate != "" {
		if line.ValueDate, err = time.Parse(time.RFC3339, valueDate); err != nil {
			return nil, fmt.Errorf("invalid value date '%s': %w", valueDate, err)
		}
	}
	if line.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount '%s': %w", amount, err)
	}
	if line.RunningBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid running balance '%s': %w", balance, err)
	}
	if line.MatchedAmount, err = decimal.NewFromString(matched); err != nil {
		return nil, fmt.Errorf("invalid matched amount '%s': %w", matched, err)
	}
	line.Status = models.LineStatus(status)

	return &line, nil
}

func scanRecord(sc scanner) (*models.SystemRecord, error) {
	var record models.SystemRecord
	var recordType, amount, date string

	err := sc.Scan(&recordType, &record.ID, &amount, &record.Currency, &date,
		&record.Description, &record.Reference, &record.Counterparty, &record.ProjectID)
	if err != nil {
		return nil, err
	}

	record.Type = models.RecordType(recordType)
	if record.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount '%s': %w", amount, err)
	}
	if record.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return nil, fmt.Errorf("invalid record date '%s': %w", date, err)
	}

	return &record, nil
}

func scanMatch(sc scanner) (*models.BankMatch, error) {
	var match models.BankMatch
	var recordType, matchedAmount, discrepancy, method, createdAt string
	var adjustment int

	err := sc.Scan(&match.ID, &match.LineID, &recordType, &match.RecordID,
		&matchedAmount, &discrepancy, &method, &match.Score, &adjustment, &createdAt)
	if err != nil {
		return nil, err
	}

	match.RecordType = models.RecordType(recordType)
	match.Method = models.MatchMethod(method)
	match.AdjustmentRequired = adjustment != 0
	if match.MatchedAmount, err = decimal.NewFromString(matchedAmount); err != nil {
		return nil, fmt.Errorf("invalid matched amount '%s': %w", matchedAmount, err)
	}
	if match.Discrepancy, err = decimal.NewFromString(discrepancy); err != nil {
		return nil, fmt.Errorf("invalid discrepancy '%s': %w", discrepancy, err)
	}
	if match.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created at '%s': %w", createdAt, err)
	}

	return &match, nil
}

func collectLines(rows *sql.Rows) ([]*models.BankFeedLine, error) {
	var lines []*models.BankFeedLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, apperrors.StoreError("scan line", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
