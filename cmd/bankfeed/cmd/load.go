package cmd

import (
	"context"
	"fmt"

	"bankfeed-reconciliation-service/internal/store"
	"bankfeed-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load CSV exports into the database",
	Long: `Load imports bank feed lines, receipts, expenses and matching rules
into the SQLite database. Existing rows with the same ids are replaced, so
re-importing an export is safe.

Examples:
  bankfeed load --db books.db --lines feed.csv
  bankfeed load --db books.db --receipts receipts.csv --expenses expenses.csv
  bankfeed load --db books.db --rules rules.yaml`,

	PreRunE: validateLoadFlags,
	RunE:    runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database (required)")
	loadCmd.Flags().StringVar(&linesFile, "lines", "", "bank feed CSV export")
	loadCmd.Flags().StringVar(&receiptsFile, "receipts", "", "receipts CSV export")
	loadCmd.Flags().StringVar(&expensesFile, "expenses", "", "expenses CSV export")
	loadCmd.Flags().StringVar(&rulesFile, "rules", "", "matching rules YAML file")
	loadCmd.Flags().StringVar(&defaultCurrency, "default-currency", "", "currency assumed when the export has no currency column")

	loadCmd.MarkFlagRequired("db")
}

func validateLoadFlags(cmd *cobra.Command, args []string) error {
	if linesFile == "" && receiptsFile == "" && expensesFile == "" && rulesFile == "" {
		return fmt.Errorf("nothing to load: pass at least one of --lines, --receipts, --expenses, --rules")
	}
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.GetGlobalLogger().WithComponent("load")

	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	if err := loadFilesInto(ctx, dataStore); err != nil {
		return err
	}

	log.Info("load completed")
	return nil
}
