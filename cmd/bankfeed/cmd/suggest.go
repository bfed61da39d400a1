package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"bankfeed-reconciliation-service/cmd/bankfeed/config"
	"bankfeed-reconciliation-service/internal/engine"
	"bankfeed-reconciliation-service/internal/matcher"
	"bankfeed-reconciliation-service/internal/store"
	"bankfeed-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	suggestLineID string
	suggestAsJSON bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show ranked match candidates for one bank feed line",
	Long: `Suggest scores one line against every unmatched record and prints the
ranked candidates without persisting anything.

Examples:
  bankfeed suggest --db books.db --line LINE-104
  bankfeed suggest --db books.db --line LINE-104 --json`,

	RunE: runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database (required)")
	suggestCmd.Flags().StringVar(&suggestLineID, "line", "", "bank feed line id (required)")
	suggestCmd.Flags().StringVar(&policyPreset, "policy", "default", "policy preset: default, strict, relaxed")
	suggestCmd.Flags().BoolVar(&suggestAsJSON, "json", false, "print JSON instead of a table")

	suggestCmd.MarkFlagRequired("db")
	suggestCmd.MarkFlagRequired("line")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	policy, err := config.CreateMatchingPolicy(policyPreset, -1, 0, -1)
	if err != nil {
		return err
	}

	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	service := engine.NewMatchingService(dataStore, matcher.NewMatcher(policy), logger.GetGlobalLogger())

	ranked, err := service.Suggestions(ctx, suggestLineID)
	if err != nil {
		return err
	}

	if suggestAsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(ranked)
	}

	fmt.Printf("Line %s: %s\n\n", ranked.LineID, ranked.Classification)
	if len(ranked.Suggestions) == 0 {
		fmt.Println("No candidates.")
		return nil
	}

	for i, suggestion := range ranked.Suggestions {
		fmt.Printf("%d. %-24s score %3d", i+1, suggestion.Record.Key(), suggestion.Score)
		for _, signal := range suggestion.Signals {
			fmt.Printf("  %s(+%d)", signal.Name, signal.Points)
		}
		if suggestion.Rule != nil {
			fmt.Printf("  rule:%s(%+d)", suggestion.Rule.RuleName, suggestion.Rule.Delta)
		}
		fmt.Println()
	}

	return nil
}
