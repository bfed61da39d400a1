package cmd

import (
	"fmt"
	"os"

	"bankfeed-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bankfeed",
	Short: "Bank feed matching tool",
	Long: `Bankfeed matches imported bank statement lines against receipts and
expenses recorded in the back office. It scores candidate pairings over
amount, date, reference and counterparty signals, persists confident matches
automatically and keeps ranked suggestions for the rest.

Examples:
  bankfeed load --db books.db --lines feed.csv --receipts receipts.csv
  bankfeed automatch --db books.db
  bankfeed automatch --lines feed.csv --receipts receipts.csv --dry-run
  bankfeed suggest --db books.db --line LINE-104
  bankfeed serve --db books.db --addr :8080`,
	Version: getVersionString(),
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and BANKFEED_* environment variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("BANKFEED")
	viper.AutomaticEnv()

	configureLogging()
}

func configureLogging() {
	level := logger.InfoLevel
	if viper.GetBool("verbose") {
		level = logger.DebugLevel
	}

	format := logger.TextFormat
	if viper.GetString("log-format") == "json" {
		format = logger.JSONFormat
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %s\n", err)
		os.Exit(1)
	}

	logger.SetGlobalLogger(log)
}

// SetVersionInfo sets build metadata injected by the release pipeline
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
