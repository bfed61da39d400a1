// Package config assembles component configurations from CLI flag values.
package config

import (
	"fmt"

	"bankfeed-reconciliation-service/internal/matcher"
	"bankfeed-reconciliation-service/internal/parsers"
	"bankfeed-reconciliation-service/internal/reporter"
)

// CreateMatchingPolicy builds a matching policy from CLI overrides. A preset
// of "strict" or "relaxed" selects the corresponding base policy; any
// non-negative threshold then overrides it.
func CreateMatchingPolicy(preset string, threshold, maxSuggestions, closeDateDays int) (*matcher.MatchingPolicy, error) {
	var policy *matcher.MatchingPolicy

	switch preset {
	case "", "default":
		policy = matcher.DefaultMatchingPolicy()
	case "strict":
		policy = matcher.StrictMatchingPolicy()
	case "relaxed":
		policy = matcher.RelaxedMatchingPolicy()
	default:
		return nil, fmt.Errorf("unknown policy preset: %s (use default, strict or relaxed)", preset)
	}

	if threshold >= 0 {
		policy.AutoMatchThreshold = threshold
	}
	if maxSuggestions > 0 {
		policy.MaxSuggestions = maxSuggestions
	}
	if closeDateDays >= 0 {
		policy.CloseDateDays = closeDateDays
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching policy: %w", err)
	}

	return policy, nil
}

// CreateLineParserConfig builds the feed parser configuration. Aliases map
// standard field names (id, date, description, reference, amount, balance,
// currency, bank_account) onto the column names of a specific bank's export.
func CreateLineParserConfig(defaultCurrency string, aliases map[string]string) *parsers.LineParserConfig {
	config := parsers.DefaultLineParserConfig()
	config.DefaultCurrency = defaultCurrency
	if len(aliases) > 0 {
		config.ColumnAliases = aliases
	}
	return config
}

// CreateReportConfig builds a report configuration for the output format
func CreateReportConfig(format string, includeSignals bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.IncludeSignals = includeSignals

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
	default:
		return nil, fmt.Errorf("unknown output format: %s (use console, json or csv)", format)
	}

	return config, nil
}
