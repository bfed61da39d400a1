// Package reporter renders batch matching results for people and machines.
//
// Three formats are supported: console for terminal review, JSON for
// programmatic consumption and CSV for spreadsheet import. The console
// format lists the persisted auto-matches first, then the lines left with
// suggestions only.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"bankfeed-reconciliation-service/internal/engine"
	"bankfeed-reconciliation-service/internal/matcher"

	"github.com/shopspring/decimal"
)

// OutputFormat selects a report rendering
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds rendering options
type ReportConfig struct {
	Format             OutputFormat `json:"format"`
	IncludeSuggestions bool         `json:"include_suggestions"`
	IncludeSignals     bool         `json:"include_signals"`
	CSVDelimiter       rune         `json:"csv_delimiter"`
}

// DefaultReportConfig returns the console rendering with suggestions shown
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeSuggestions: true,
		IncludeSignals:     false,
		CSVDelimiter:       ',',
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders auto-match reports
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator, defaulting the configuration when
// nil is given.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the report for one auto-match run
func (rg *ReportGenerator) GenerateReport(report *engine.AutoMatchReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("auto-match report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *engine.AutoMatchReport, writer io.Writer) error {
	summary := report.Batch.Summary

	fmt.Fprintf(writer, "BANK FEED MATCHING REPORT\n\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Lines examined:    %d\n", summary.TotalLines)
	fmt.Fprintf(writer, "Skipped:           %d\n", summary.SkippedLines)
	fmt.Fprintf(writer, "Auto-matched:      %d (%d persisted)\n", summary.AutoMatched, report.Persisted)
	fmt.Fprintf(writer, "Suggestions only:  %d\n", summary.SuggestOnly)
	fmt.Fprintf(writer, "No candidate:      %d\n", summary.NoCandidate)
	fmt.Fprintf(writer, "Record pool:       %d\n", summary.RecordsInPool)
	fmt.Fprintf(writer, "Matched amount:    %s\n\n", totalMatchedAmount(report.Batch.AutoMatches))

	if len(report.Batch.AutoMatches) > 0 {
		fmt.Fprintf(writer, "=== AUTO-MATCHES ===\n")
		for _, match := range report.Batch.AutoMatches {
			fmt.Fprintf(writer, "%-20s -> %-24s score %3d  %s\n",
				match.LineID, match.Record.Key(), match.Score, signalNames(match, rg.config.IncludeSignals))
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeSuggestions && len(report.Batch.Suggestions) > 0 {
		fmt.Fprintf(writer, "=== SUGGESTIONS ===\n")
		for _, lineID := range sortedKeys(report.Batch.Suggestions) {
			fmt.Fprintf(writer, "%s:\n", lineID)
			if len(report.Batch.Suggestions[lineID]) == 0 {
				fmt.Fprintf(writer, "  (no candidates)\n")
				continue
			}
			for _, suggestion := range report.Batch.Suggestions[lineID] {
				fmt.Fprintf(writer, "  %-24s score %3d  %s\n",
					suggestion.Record.Key(), suggestion.Score, signalNames(suggestion, rg.config.IncludeSignals))
			}
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(writer, "=== FAILURES ===\n")
		for _, failure := range report.Failures {
			fmt.Fprintf(writer, "%s: %s\n", failure.LineID, failure.Error)
		}
	}

	return nil
}

func (rg *ReportGenerator) generateJSONReport(report *engine.AutoMatchReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (rg *ReportGenerator) generateCSVReport(report *engine.AutoMatchReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	if rg.config.CSVDelimiter != 0 {
		csvWriter.Comma = rg.config.CSVDelimiter
	}
	defer csvWriter.Flush()

	if err := csvWriter.Write([]string{"outcome", "line_id", "record", "score", "method", "signals"}); err != nil {
		return err
	}

	for _, match := range report.Batch.AutoMatches {
		if err := csvWriter.Write(suggestionRow("auto_match", match)); err != nil {
			return err
		}
	}

	if rg.config.IncludeSuggestions {
		for _, lineID := range sortedKeys(report.Batch.Suggestions) {
			for _, suggestion := range report.Batch.Suggestions[lineID] {
				if err := csvWriter.Write(suggestionRow("suggestion", suggestion)); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func suggestionRow(outcome string, s *matcher.SuggestedMatch) []string {
	return []string{
		outcome,
		s.LineID,
		s.Record.Key(),
		strconv.Itoa(s.Score),
		string(s.Method()),
		signalNames(s, true),
	}
}

// signalNames renders the fired signals compactly, e.g.
// "exact_amount+same_date". Rule hits are included by rule name.
func signalNames(s *matcher.SuggestedMatch, include bool) string {
	if !include {
		return ""
	}

	var names []string
	for _, signal := range s.Signals {
		names = append(names, signal.Name)
	}
	if s.Rule != nil {
		names = append(names, "rule:"+s.Rule.RuleName)
	}
	return strings.Join(names, "+")
}

func totalMatchedAmount(matches []*matcher.SuggestedMatch) decimal.Decimal {
	total := decimal.Zero
	for _, match := range matches {
		total = total.Add(match.Record.Amount)
	}
	return total
}

func sortedKeys(m map[string][]*matcher.SuggestedMatch) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
