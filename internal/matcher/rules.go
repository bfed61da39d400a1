package matcher

import (
	"sort"
	"strings"
	"time"

	"bankfeed-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// AppliedRule identifies the first matching rule for a (line, record) pair
// and the score delta it contributes.
type AppliedRule struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Delta    int    `json:"delta"`
}

// EvaluateRules evaluates the enabled rules in priority order against a
// (line, record) pair. Conditions within a rule are ANDed; the first rule
// whose conditions all hold wins and the remaining rules are not evaluated.
// Returns nil when no rule applies.
func EvaluateRules(line *models.BankFeedLine, record *models.SystemRecord, rules []*models.MatchingRule) *AppliedRule {
	ordered := make([]*models.MatchingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			ordered = append(ordered, rule)
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, rule := range ordered {
		if ruleApplies(line, record, rule) {
			return &AppliedRule{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Delta:    rule.Weight,
			}
		}
	}

	return nil
}

func ruleApplies(line *models.BankFeedLine, record *models.SystemRecord, rule *models.MatchingRule) bool {
	for i := range rule.Conditions {
		if !evaluateCondition(line, record, &rule.Conditions[i]) {
			return false
		}
	}
	return true
}

// fieldKind tags the type a resolved rule field carries so the comparator
// interpreter can dispatch without dynamic property access.
type fieldKind int

const (
	kindText fieldKind = iota
	kindAmount
	kindDate
)

// fieldValue is the typed value of one normalized field.
type fieldValue struct {
	kind   fieldKind
	text   string
	amount decimal.Decimal
	date   time.Time
}

// resolveField reads a named field from the line or record side of the pair.
// The field set is closed; an unknown field resolves to nothing and fails
// the condition.
func resolveField(line *models.BankFeedLine, record *models.SystemRecord, field models.RuleField) (fieldValue, bool) {
	switch field {
	case models.FieldLineDescription:
		return fieldValue{kind: kindText, text: line.Description}, true
	case models.FieldLineReference:
		return fieldValue{kind: kindText, text: line.Reference}, true
	case models.FieldLineCurrency:
		return fieldValue{kind: kindText, text: line.Currency}, true
	case models.FieldLineAmount:
		return fieldValue{kind: kindAmount, amount: line.Amount}, true
	case models.FieldLineDate:
		return fieldValue{kind: kindDate, date: line.TransactionDate}, true
	case models.FieldRecordDescription:
		return fieldValue{kind: kindText, text: record.Description}, true
	case models.FieldRecordReference:
		return fieldValue{kind: kindText, text: record.Reference}, true
	case models.FieldRecordCounterparty:
		return fieldValue{kind: kindText, text: record.Counterparty}, true
	case models.FieldRecordType:
		return fieldValue{kind: kindText, text: string(record.Type)}, true
	case models.FieldRecordProject:
		return fieldValue{kind: kindText, text: record.ProjectID}, true
	case models.FieldRecordAmount:
		return fieldValue{kind: kindAmount, amount: record.Amount}, true
	case models.FieldRecordDate:
		return fieldValue{kind: kindDate, date: record.Date}, true
	}

	return fieldValue{}, false
}

// evaluateCondition interprets one (field, comparator, value) triple.
// Comparators that make no sense for a field's type (contains on an amount,
// greater_than on text) evaluate false rather than erroring; a misconfigured
// rule simply never fires.
func evaluateCondition(line *models.BankFeedLine, record *models.SystemRecord, cond *models.RuleCondition) bool {
	value, ok := resolveField(line, record, cond.Field)
	if !ok {
		return false
	}

	switch value.kind {
	case kindText:
		return compareText(value.text, cond.Comparator, cond.Value)
	case kindAmount:
		return compareAmount(value.amount, cond.Comparator, cond.Value)
	case kindDate:
		return compareDate(value.date, cond.Comparator, cond.Value)
	}

	return false
}

func compareText(actual string, comparator models.Comparator, expected string) bool {
	actual = strings.TrimSpace(actual)
	expected = strings.TrimSpace(expected)

	switch comparator {
	case models.ComparatorEquals:
		return strings.EqualFold(actual, expected)
	case models.ComparatorContains:
		return actual != "" && strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	}

	return false
}

func compareAmount(actual decimal.Decimal, comparator models.Comparator, expected string) bool {
	target, err := models.ParseDecimalFromString(expected)
	if err != nil {
		return false
	}

	switch comparator {
	case models.ComparatorEquals:
		return models.AmountsEqual(actual, target)
	case models.ComparatorGreaterThan:
		return actual.GreaterThan(target)
	case models.ComparatorLessThan:
		return actual.LessThan(target)
	}

	return false
}

func compareDate(actual time.Time, comparator models.Comparator, expected string) bool {
	target, err := models.ParseTimeWithFormats(expected)
	if err != nil {
		return false
	}

	switch comparator {
	case models.ComparatorEquals:
		return models.SameCalendarDay(actual, target)
	case models.ComparatorGreaterThan:
		return actual.After(target)
	case models.ComparatorLessThan:
		return actual.Before(target)
	}

	return false
}
