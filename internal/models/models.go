package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineStatus represents the reconciliation lifecycle state of a bank feed line
type LineStatus string

const (
	// StatusUnmatched marks a line that has not been reconciled yet
	StatusUnmatched LineStatus = "unmatched"
	// StatusMatched marks a line linked to a system record
	StatusMatched LineStatus = "matched"
	// StatusIgnored marks a line excluded from reconciliation by a user
	StatusIgnored LineStatus = "ignored"
	// StatusDeleted marks a soft-deleted line; lines are never hard-removed
	StatusDeleted LineStatus = "deleted"
	// StatusMissingRecord marks a line whose counterpart record has not been entered yet
	StatusMissingRecord LineStatus = "missing_record"
	// StatusNeedsReview marks a matched line whose amounts disagree beyond tolerance
	StatusNeedsReview LineStatus = "needs_review"
)

// String returns the string representation of LineStatus
func (s LineStatus) String() string {
	return string(s)
}

// IsValid checks if the line status is one of the known states
func (s LineStatus) IsValid() bool {
	switch s {
	case StatusUnmatched, StatusMatched, StatusIgnored, StatusDeleted, StatusMissingRecord, StatusNeedsReview:
		return true
	}
	return false
}

// RecordType identifies which kind of internal financial document a system record was built from
type RecordType string

const (
	// RecordTypeReceipt represents an income document
	RecordTypeReceipt RecordType = "receipt"
	// RecordTypeExpense represents an outgoing payment document
	RecordTypeExpense RecordType = "expense"
)

// String returns the string representation of RecordType
func (rt RecordType) String() string {
	return string(rt)
}

// IsValid checks if the record type is valid
func (rt RecordType) IsValid() bool {
	return rt == RecordTypeReceipt || rt == RecordTypeExpense
}

// MatchMethod records how a bank match was produced
type MatchMethod string

const (
	// MethodManual marks a match created directly by a user
	MethodManual MatchMethod = "manual"
	// MethodRule marks a match decided by a configured matching rule
	MethodRule MatchMethod = "rule"
	// MethodSuggested marks a match created from an engine suggestion
	MethodSuggested MatchMethod = "suggested"
)

// IsValid checks if the match method is valid
func (m MatchMethod) IsValid() bool {
	return m == MethodManual || m == MethodRule || m == MethodSuggested
}

// AmountTolerance is the 2-decimal tolerance used for amount equality and
// discrepancy flagging throughout the matcher.
var AmountTolerance = decimal.New(1, -2) // 0.01

// BankFeedLine is one imported bank-statement transaction awaiting reconciliation.
// Lines are created by the import process and mutated only through match,
// unmatch, ignore, delete and restore operations.
type BankFeedLine struct {
	ID              string          `json:"id"`
	BankAccountID   string          `json:"bank_account_id"`
	Currency        string          `json:"currency"`
	TransactionDate time.Time       `json:"transaction_date"`
	ValueDate       time.Time       `json:"value_date,omitempty"`
	Description     string          `json:"description"`
	Reference       string          `json:"reference,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	RunningBalance  decimal.Decimal `json:"running_balance"`
	Status          LineStatus      `json:"status"`
	MatchedAmount   decimal.Decimal `json:"matched_amount"`
	Matches         []*BankMatch    `json:"matches,omitempty"`
}

// Validate performs basic validation on the bank feed line
func (l *BankFeedLine) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("bank feed line ID cannot be empty")
	}

	if strings.TrimSpace(l.Currency) == "" {
		return fmt.Errorf("bank feed line currency cannot be empty")
	}

	if l.TransactionDate.IsZero() {
		return fmt.Errorf("bank feed line transaction date cannot be zero")
	}

	if l.Amount.IsZero() {
		return fmt.Errorf("bank feed line amount cannot be zero")
	}

	if !l.Status.IsValid() {
		return fmt.Errorf("invalid line status: %s", l.Status)
	}

	return nil
}

// String returns a string representation of the line
func (l *BankFeedLine) String() string {
	return fmt.Sprintf("BankFeedLine{ID: %s, Amount: %s %s, Date: %s, Status: %s}",
		l.ID, l.Amount.String(), l.Currency, l.TransactionDate.Format("2006-01-02"), l.Status)
}

// AbsoluteAmount returns the unsigned amount of the line
func (l *BankFeedLine) AbsoluteAmount() decimal.Decimal {
	return l.Amount.Abs()
}

// ActiveMatch returns the line's active match, or nil when the line has none.
// A line carries at most one active match; re-matching requires removal first.
func (l *BankFeedLine) ActiveMatch() *BankMatch {
	if len(l.Matches) == 0 {
		return nil
	}
	return l.Matches[0]
}

// Matchable reports whether the line is eligible for the batch runner:
// it must be unmatched or missing its record, with zero active matches.
func (l *BankFeedLine) Matchable() bool {
	if l.Status != StatusUnmatched && l.Status != StatusMissingRecord {
		return false
	}
	return l.ActiveMatch() == nil
}

// BankMatch is a persisted link between a bank feed line and one system record.
type BankMatch struct {
	ID                 string          `json:"id"`
	LineID             string          `json:"line_id"`
	RecordType         RecordType      `json:"record_type"`
	RecordID           string          `json:"record_id"`
	MatchedAmount      decimal.Decimal `json:"matched_amount"`
	Discrepancy        decimal.Decimal `json:"discrepancy"`
	Method             MatchMethod     `json:"method"`
	Score              int             `json:"score"`
	AdjustmentRequired bool            `json:"adjustment_required"`
	CreatedAt          time.Time       `json:"created_at"`
}

// NewBankMatch builds a match linking a line to a system record. The
// discrepancy between the line amount and the matched amount is computed
// here, and any discrepancy beyond AmountTolerance flags the match as
// requiring a compensating accounting adjustment.
func NewBankMatch(line *BankFeedLine, record *SystemRecord, method MatchMethod, score int) *BankMatch {
	discrepancy := line.AbsoluteAmount().Sub(record.Amount).Abs()

	return &BankMatch{
		ID:                 uuid.NewString(),
		LineID:             line.ID,
		RecordType:         record.Type,
		RecordID:           record.ID,
		MatchedAmount:      record.Amount,
		Discrepancy:        discrepancy,
		Method:             method,
		Score:              score,
		AdjustmentRequired: discrepancy.GreaterThan(AmountTolerance),
		CreatedAt:          time.Now().UTC(),
	}
}

// Validate performs basic validation on the bank match
func (m *BankMatch) Validate() error {
	if strings.TrimSpace(m.LineID) == "" {
		return fmt.Errorf("match line ID cannot be empty")
	}

	if !m.RecordType.IsValid() {
		return fmt.Errorf("invalid record type: %s", m.RecordType)
	}

	if strings.TrimSpace(m.RecordID) == "" {
		return fmt.Errorf("match record ID cannot be empty")
	}

	if !m.Method.IsValid() {
		return fmt.Errorf("invalid match method: %s", m.Method)
	}

	if m.Score < 0 || m.Score > 100 {
		return fmt.Errorf("match score must be between 0 and 100: %d", m.Score)
	}

	return nil
}

// SystemRecord is the normalized, read-only projection of a receipt or expense
// that the matcher compares bank feed lines against. The matcher never
// mutates system records.
type SystemRecord struct {
	Type         RecordType      `json:"type"`
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	ProjectID    string          `json:"project_id,omitempty"`
}

// Validate performs basic validation on the system record
func (r *SystemRecord) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid record type: %s", r.Type)
	}

	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("system record ID cannot be empty")
	}

	if r.Amount.IsNegative() {
		return fmt.Errorf("system record amount must be unsigned, got %s", r.Amount.String())
	}

	if strings.TrimSpace(r.Currency) == "" {
		return fmt.Errorf("system record currency cannot be empty")
	}

	if r.Date.IsZero() {
		return fmt.Errorf("system record date cannot be zero")
	}

	return nil
}

// String returns a string representation of the system record
func (r *SystemRecord) String() string {
	return fmt.Sprintf("SystemRecord{%s %s, Amount: %s %s, Date: %s}",
		r.Type, r.ID, r.Amount.String(), r.Currency, r.Date.Format("2006-01-02"))
}

// Key returns the (type, id) identity of the record, used for exclusion sets
// and duplicate detection.
func (r *SystemRecord) Key() string {
	return string(r.Type) + ":" + r.ID
}

// Receipt is an income document as stored by the back office.
type Receipt struct {
	ID        string          `json:"id"`
	Number    string          `json:"number"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	IssueDate time.Time       `json:"issue_date"`
	PayerName string          `json:"payer_name"`
	Notes     string          `json:"notes,omitempty"`
	ProjectID string          `json:"project_id,omitempty"`
}

// Expense is an outgoing payment document as stored by the back office.
type Expense struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	SpentDate  time.Time       `json:"spent_date"`
	VendorName string          `json:"vendor_name"`
	Details    string          `json:"details,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	ProjectID  string          `json:"project_id,omitempty"`
}

// NormalizeReceipt projects a receipt into the common comparable shape used
// by the matcher. Receipt numbers double as the matching reference.
func NormalizeReceipt(r *Receipt) *SystemRecord {
	return &SystemRecord{
		Type:         RecordTypeReceipt,
		ID:           r.ID,
		Amount:       r.Amount.Abs(),
		Currency:     strings.ToUpper(strings.TrimSpace(r.Currency)),
		Date:         r.IssueDate,
		Description:  r.Notes,
		Reference:    r.Number,
		Counterparty: r.PayerName,
		ProjectID:    r.ProjectID,
	}
}

// NormalizeExpense projects an expense into the common comparable shape used
// by the matcher.
func NormalizeExpense(e *Expense) *SystemRecord {
	return &SystemRecord{
		Type:         RecordTypeExpense,
		ID:           e.ID,
		Amount:       e.Amount.Abs(),
		Currency:     strings.ToUpper(strings.TrimSpace(e.Currency)),
		Date:         e.SpentDate,
		Description:  e.Details,
		Reference:    e.Reference,
		Counterparty: e.VendorName,
		ProjectID:    e.ProjectID,
	}
}

// AmountsEqual compares two decimal amounts within AmountTolerance
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(AmountTolerance)
}

// SameCalendarDay reports whether two timestamps fall on the same calendar day
func SameCalendarDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

// CalendarDaysBetween returns the absolute number of calendar days between two dates
func CalendarDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// ParseDecimalFromString parses a decimal amount, stripping common currency
// noise such as thousand separators.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimeWithFormats attempts to parse a date from the formats commonly
// seen in bank exports and back-office CSV dumps.
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseLineStatus parses and validates a line status from string
func ParseLineStatus(s string) (LineStatus, error) {
	status := LineStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid line status '%s'", s)
	}
	return status, nil
}

// ParseRecordType parses and validates a record type from string
func ParseRecordType(s string) (RecordType, error) {
	rt := RecordType(strings.ToLower(strings.TrimSpace(s)))
	if !rt.IsValid() {
		return "", fmt.Errorf("invalid record type '%s': must be receipt or expense", s)
	}
	return rt, nil
}
