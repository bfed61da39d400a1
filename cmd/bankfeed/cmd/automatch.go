package cmd

import (
	"context"
	"fmt"
	"os"

	"bankfeed-reconciliation-service/cmd/bankfeed/config"
	"bankfeed-reconciliation-service/internal/engine"
	"bankfeed-reconciliation-service/internal/matcher"
	"bankfeed-reconciliation-service/internal/parsers"
	"bankfeed-reconciliation-service/internal/reporter"
	"bankfeed-reconciliation-service/internal/store"
	"bankfeed-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dbPath          string
	linesFile       string
	receiptsFile    string
	expensesFile    string
	rulesFile       string
	outputFormat    string
	outputFile      string
	policyPreset    string
	threshold       int
	maxSuggestions  int
	closeDateDays   int
	defaultCurrency string
	includeSignals  bool
	dryRun          bool
)

var automatchCmd = &cobra.Command{
	Use:   "automatch",
	Short: "Run one matching pass over all matchable bank feed lines",
	Long: `Automatch scores every matchable bank feed line against the unmatched
receipts and expenses, persists matches whose top score clears the threshold
and reports ranked suggestions for everything else.

The batch can run against a SQLite database or directly from CSV exports.
File mode without --db is always a dry run.

Examples:
  # Against a database
  bankfeed automatch --db books.db

  # From CSV exports, report only
  bankfeed automatch --lines feed.csv --receipts receipts.csv --expenses expenses.csv

  # Custom policy
  bankfeed automatch --db books.db --policy strict --max-suggestions 3

  # Machine-readable output
  bankfeed automatch --db books.db --output-format json --output-file report.json`,

	PreRunE: validateAutomatchFlags,
	RunE:    runAutomatch,
}

func init() {
	rootCmd.AddCommand(automatchCmd)

	automatchCmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database")
	automatchCmd.Flags().StringVar(&linesFile, "lines", "", "bank feed CSV export (file mode)")
	automatchCmd.Flags().StringVar(&receiptsFile, "receipts", "", "receipts CSV export (file mode)")
	automatchCmd.Flags().StringVar(&expensesFile, "expenses", "", "expenses CSV export (file mode)")
	automatchCmd.Flags().StringVar(&rulesFile, "rules", "", "matching rules YAML file")

	automatchCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	automatchCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	automatchCmd.Flags().BoolVar(&includeSignals, "signals", false, "show which signals fired per candidate")

	automatchCmd.Flags().StringVar(&policyPreset, "policy", "default", "policy preset: default, strict, relaxed")
	automatchCmd.Flags().IntVarP(&threshold, "threshold", "t", -1, "auto-match threshold override (0-100)")
	automatchCmd.Flags().IntVar(&maxSuggestions, "max-suggestions", 0, "max suggestions kept per line")
	automatchCmd.Flags().IntVar(&closeDateDays, "close-date-days", -1, "close date window override in days")
	automatchCmd.Flags().StringVar(&defaultCurrency, "default-currency", "", "currency assumed when the export has no currency column")

	automatchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would match without persisting")

	viper.BindPFlag("db", automatchCmd.Flags().Lookup("db"))
	viper.BindPFlag("policy", automatchCmd.Flags().Lookup("policy"))
	viper.BindPFlag("threshold", automatchCmd.Flags().Lookup("threshold"))
}

func validateAutomatchFlags(cmd *cobra.Command, args []string) error {
	if dbPath == "" {
		dbPath = viper.GetString("db")
	}

	if dbPath == "" && linesFile == "" {
		return fmt.Errorf("either --db or --lines is required")
	}
	if dbPath != "" && linesFile != "" {
		return fmt.Errorf("--db and --lines are mutually exclusive")
	}
	if dbPath == "" && receiptsFile == "" && expensesFile == "" {
		return fmt.Errorf("file mode needs at least one of --receipts or --expenses")
	}
	if threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100, got %d", threshold)
	}

	return nil
}

func runAutomatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.GetGlobalLogger()

	policy, err := config.CreateMatchingPolicy(policyPreset, threshold, maxSuggestions, closeDateDays)
	if err != nil {
		return err
	}

	dataStore, fileMode, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	service := engine.NewMatchingService(dataStore, matcher.NewMatcher(policy), log)

	var report *engine.AutoMatchReport
	if dryRun || fileMode {
		report, err = dryRunAutomatch(ctx, dataStore, matcher.NewMatcher(policy))
	} else {
		report, err = service.RunAutoMatch(ctx)
	}
	if err != nil {
		return err
	}

	return writeReport(report)
}

// openStore opens the SQLite store, or builds an in-memory store from the
// CSV exports in file mode. The second return reports file mode.
func openStore(ctx context.Context) (store.DataStore, bool, error) {
	if dbPath != "" {
		dataStore, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, false, err
		}

		if rulesFile != "" {
			if err := loadRulesInto(ctx, dataStore); err != nil {
				dataStore.Close()
				return nil, false, err
			}
		}

		return dataStore, false, nil
	}

	dataStore := store.NewMemoryStore()
	if err := loadFilesInto(ctx, dataStore); err != nil {
		return nil, false, err
	}

	return dataStore, true, nil
}

// loadFilesInto populates a store from the CSV export flags
func loadFilesInto(ctx context.Context, dataStore store.DataStore) error {
	if linesFile != "" {
		if err := loadLinesInto(ctx, dataStore); err != nil {
			return err
		}
	}

	if receiptsFile != "" || expensesFile != "" {
		if err := loadRecordsInto(ctx, dataStore); err != nil {
			return err
		}
	}

	if rulesFile != "" {
		return loadRulesInto(ctx, dataStore)
	}

	return nil
}

func loadLinesInto(ctx context.Context, dataStore store.DataStore) error {
	lineParser, err := parsers.NewLineParser(config.CreateLineParserConfig(defaultCurrency, viper.GetStringMapString("column_aliases")))
	if err != nil {
		return err
	}

	lines, _, err := lineParser.ParseLines(ctx, linesFile)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if err := dataStore.SaveLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func loadRecordsInto(ctx context.Context, dataStore store.DataStore) error {
	recordParser := parsers.NewRecordParser()

	if receiptsFile != "" {
		records, _, err := recordParser.ParseReceipts(ctx, receiptsFile)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := dataStore.SaveRecord(ctx, record); err != nil {
				return err
			}
		}
	}

	if expensesFile != "" {
		records, _, err := recordParser.ParseExpenses(ctx, expensesFile)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := dataStore.SaveRecord(ctx, record); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadRulesInto(ctx context.Context, dataStore store.DataStore) error {
	rules, err := parsers.LoadRulesFile(rulesFile)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := dataStore.SaveRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

// dryRunAutomatch computes the batch without persisting anything
func dryRunAutomatch(ctx context.Context, dataStore store.DataStore, m *matcher.Matcher) (*engine.AutoMatchReport, error) {
	lines, err := dataStore.ListMatchableLines(ctx)
	if err != nil {
		return nil, err
	}

	records, err := dataStore.ListUnmatchedRecords(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := dataStore.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	batch := engine.RunBatch(m, lines, records, rules)
	return &engine.AutoMatchReport{Batch: batch}, nil
}

func writeReport(report *engine.AutoMatchReport) error {
	reportConfig, err := config.CreateReportConfig(outputFormat, includeSignals)
	if err != nil {
		return err
	}

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	writer := os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer file.Close()
		writer = file
	}

	return generator.GenerateReport(report, writer)
}
