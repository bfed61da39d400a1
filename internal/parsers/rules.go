package parsers

import (
	"fmt"
	"os"

	"bankfeed-reconciliation-service/internal/models"
	apperrors "bankfeed-reconciliation-service/pkg/errors"

	"gopkg.in/yaml.v3"
)

// RulesFile is the on-disk shape of a matching rules document:
//
//	rules:
//	  - id: payroll-boost
//	    name: Boost payroll transfers
//	    priority: 10
//	    enabled: true
//	    weight: 15
//	    conditions:
//	      - field: line.description
//	        comparator: contains
//	        value: payroll
type RulesFile struct {
	Rules []*models.MatchingRule `yaml:"rules"`
}

// LoadRulesFile reads and validates matching rules from a YAML file
func LoadRulesFile(path string) ([]*models.MatchingRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryParse, apperrors.CodeInvalidFormat,
			"cannot read rules file "+path).WithContext("file", path)
	}

	var doc RulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryParse, apperrors.CodeInvalidFormat,
			"invalid YAML in rules file "+path).
			WithContext("file", path).
			WithSuggestion("check the YAML syntax of the rules document")
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i, rule := range doc.Rules {
		if err := rule.Validate(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CategoryValidation, apperrors.CodeInvalidData,
				fmt.Sprintf("invalid rule at index %d in %s", i, path)).
				WithContext("file", path).
				WithContext("rule_index", i)
		}
		if seen[rule.ID] {
			return nil, apperrors.New(apperrors.CategoryValidation, apperrors.CodeInvalidData,
				fmt.Sprintf("duplicate rule id '%s' in %s", rule.ID, path)).
				WithContext("file", path)
		}
		seen[rule.ID] = true
	}

	return doc.Rules, nil
}
