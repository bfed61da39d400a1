package models

import (
	"fmt"
	"strings"
)

// Comparator is the closed set of operations a rule condition may apply to a field.
type Comparator string

const (
	ComparatorEquals      Comparator = "equals"
	ComparatorContains    Comparator = "contains"
	ComparatorGreaterThan Comparator = "greater_than"
	ComparatorLessThan    Comparator = "less_than"
)

// IsValid checks if the comparator is one of the supported operations
func (c Comparator) IsValid() bool {
	switch c {
	case ComparatorEquals, ComparatorContains, ComparatorGreaterThan, ComparatorLessThan:
		return true
	}
	return false
}

// RuleField names a normalized field a rule condition can read. Fields are
// namespaced by which side of the comparison they come from: the bank feed
// line or the candidate system record.
type RuleField string

const (
	FieldLineDescription   RuleField = "line.description"
	FieldLineReference     RuleField = "line.reference"
	FieldLineAmount        RuleField = "line.amount"
	FieldLineCurrency      RuleField = "line.currency"
	FieldLineDate          RuleField = "line.date"
	FieldRecordDescription RuleField = "record.description"
	FieldRecordReference   RuleField = "record.reference"
	FieldRecordCounterparty RuleField = "record.counterparty"
	FieldRecordAmount      RuleField = "record.amount"
	FieldRecordDate        RuleField = "record.date"
	FieldRecordType        RuleField = "record.type"
	FieldRecordProject     RuleField = "record.project"
)

// IsValid checks if the rule field is one of the known normalized fields
func (f RuleField) IsValid() bool {
	switch f {
	case FieldLineDescription, FieldLineReference, FieldLineAmount, FieldLineCurrency, FieldLineDate,
		FieldRecordDescription, FieldRecordReference, FieldRecordCounterparty,
		FieldRecordAmount, FieldRecordDate, FieldRecordType, FieldRecordProject:
		return true
	}
	return false
}

// RuleCondition is a single (field, comparator, value) triple. All conditions
// of a rule must evaluate true for the rule to apply.
type RuleCondition struct {
	Field      RuleField  `json:"field" yaml:"field"`
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	Value      string     `json:"value" yaml:"value"`
}

// Validate checks the condition triple
func (c *RuleCondition) Validate() error {
	if !c.Field.IsValid() {
		return fmt.Errorf("unknown rule field '%s'", c.Field)
	}

	if !c.Comparator.IsValid() {
		return fmt.Errorf("unknown comparator '%s'", c.Comparator)
	}

	if strings.TrimSpace(c.Value) == "" {
		return fmt.Errorf("rule condition value cannot be empty")
	}

	return nil
}

// MatchingRule is a user-configured, ordered, enable-able rule. When every
// condition evaluates true for a (line, record) pair, the rule's weight is
// added to the heuristic score before thresholding. The first matching rule
// in priority order wins.
type MatchingRule struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Priority   int             `json:"priority" yaml:"priority"`
	Enabled    bool            `json:"enabled" yaml:"enabled"`
	Weight     int             `json:"weight" yaml:"weight"`
	Conditions []RuleCondition `json:"conditions" yaml:"conditions"`
}

// Validate performs basic validation on the rule
func (r *MatchingRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}

	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name cannot be empty")
	}

	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule '%s' must have at least one condition", r.Name)
	}

	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("rule '%s' condition %d: %w", r.Name, i, err)
		}
	}

	return nil
}

// String returns a string representation of the rule
func (r *MatchingRule) String() string {
	return fmt.Sprintf("MatchingRule{ID: %s, Name: %s, Weight: %+d, Conditions: %d, Enabled: %t}",
		r.ID, r.Name, r.Weight, len(r.Conditions), r.Enabled)
}
