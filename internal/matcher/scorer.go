package matcher

import (
	"strings"
	"unicode"

	"bankfeed-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Signal names recorded in the audit trail of a scored pair.
const (
	SignalExactAmount  = "exact_amount"
	SignalCloseAmount  = "close_amount"
	SignalReference    = "reference_match"
	SignalSameDate     = "same_date"
	SignalCloseDate    = "close_date"
	SignalCounterparty = "counterparty_match"
	SignalKeyword      = "description_keywords"
)

// Signal is one heuristic that fired while scoring a (line, record) pair,
// kept for auditability of the final score.
type Signal struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// CandidateScore is the result of scoring one bank feed line against one
// system record.
type CandidateScore struct {
	Score        int      `json:"score"`
	Signals      []Signal `json:"signals"`
	Disqualified bool     `json:"disqualified"`
}

// Matcher scores and ranks system records against bank feed lines according
// to a MatchingPolicy.
type Matcher struct {
	Policy *MatchingPolicy
}

// NewMatcher creates a matcher with the given policy, falling back to the
// default policy when nil.
func NewMatcher(policy *MatchingPolicy) *Matcher {
	if policy == nil {
		policy = DefaultMatchingPolicy()
	}

	return &Matcher{Policy: policy}
}

// Score computes the 0-100 confidence score for a (line, record) pair from
// the policy's weighted independent signals. Signals are not mutually
// exclusive; their points sum and the total is capped at 100. A currency
// mismatch disqualifies the pair outright regardless of other signals.
func (m *Matcher) Score(line *models.BankFeedLine, record *models.SystemRecord) CandidateScore {
	if !strings.EqualFold(strings.TrimSpace(line.Currency), strings.TrimSpace(record.Currency)) {
		return CandidateScore{Score: 0, Disqualified: true}
	}

	var score int
	var signals []Signal

	add := func(name string, points int) {
		if points <= 0 {
			return
		}
		score += points
		signals = append(signals, Signal{Name: name, Points: points})
	}

	lineAmount := line.AbsoluteAmount()
	exactAmount := models.AmountsEqual(lineAmount, record.Amount)
	if exactAmount {
		add(SignalExactAmount, m.Policy.Weights.ExactAmount)
	} else if m.closeAmount(lineAmount, record.Amount) {
		add(SignalCloseAmount, m.Policy.Weights.CloseAmount)
	}

	if referenceMatches(line, record) {
		add(SignalReference, m.Policy.Weights.Reference)
	}

	if models.SameCalendarDay(line.TransactionDate, record.Date) {
		add(SignalSameDate, m.Policy.Weights.SameDate)
	} else if models.CalendarDaysBetween(line.TransactionDate, record.Date) <= m.Policy.CloseDateDays {
		add(SignalCloseDate, m.Policy.Weights.CloseDate)
	}

	if counterpartyMatches(line.Description, record.Counterparty) {
		add(SignalCounterparty, m.Policy.Weights.Counterparty)
	}

	if m.sharedKeywords(line.Description, record.Description) {
		add(SignalKeyword, m.Policy.Weights.Keyword)
	}

	if score > 100 {
		score = 100
	}

	return CandidateScore{Score: score, Signals: signals}
}

// closeAmount reports whether two amounts are within the policy's percentage
// tolerance of each other.
func (m *Matcher) closeAmount(a, b decimal.Decimal) bool {
	if m.Policy.CloseAmountPercent == 0.0 {
		return false
	}

	larger := a
	if b.GreaterThan(larger) {
		larger = b
	}
	if larger.IsZero() {
		return false
	}

	tolerance := larger.Mul(decimal.NewFromFloat(m.Policy.CloseAmountPercent / 100.0))
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// referenceMatches checks the record's reference code against the line's
// reference and free-text description. Bank feeds frequently bury the
// reference inside the description, so both are consulted.
func referenceMatches(line *models.BankFeedLine, record *models.SystemRecord) bool {
	recordRef := strings.ToLower(strings.TrimSpace(record.Reference))
	if recordRef == "" {
		return false
	}

	lineRef := strings.ToLower(strings.TrimSpace(line.Reference))
	if lineRef != "" && (strings.Contains(lineRef, recordRef) || strings.Contains(recordRef, lineRef)) {
		return true
	}

	description := strings.ToLower(line.Description)
	return description != "" && strings.Contains(description, recordRef)
}

// counterpartyMatches checks for a case-insensitive substring relation
// between the line description and the record's counterparty name.
func counterpartyMatches(description, counterparty string) bool {
	desc := strings.ToLower(strings.TrimSpace(description))
	cp := strings.ToLower(strings.TrimSpace(counterparty))
	if desc == "" || cp == "" {
		return false
	}

	return strings.Contains(desc, cp) || strings.Contains(cp, desc)
}

// stopWords are tokens too generic to count as shared keywords between a
// bank line description and a record description.
var stopWords = map[string]struct{}{
	"payment":  {},
	"transfer": {},
	"invoice":  {},
	"bank":     {},
	"from":     {},
	"with":     {},
	"that":     {},
	"this":     {},
	"card":     {},
	"fees":     {},
	"charge":   {},
}

// sharedKeywords reports whether the two descriptions share at least one
// significant token: longer than the policy minimum and not a stop word.
func (m *Matcher) sharedKeywords(a, b string) bool {
	tokensA := m.significantTokens(a)
	if len(tokensA) == 0 {
		return false
	}

	for token := range m.significantTokens(b) {
		if _, ok := tokensA[token]; ok {
			return true
		}
	}

	return false
}

// significantTokens lowercases and splits a description on non-alphanumeric
// runes, keeping only tokens that clear the significance bar.
func (m *Matcher) significantTokens(s string) map[string]struct{} {
	tokens := make(map[string]struct{})

	for _, token := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(token) < m.Policy.MinTokenLength {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		tokens[token] = struct{}{}
	}

	return tokens
}
