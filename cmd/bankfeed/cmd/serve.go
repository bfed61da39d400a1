package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankfeed-reconciliation-service/cmd/bankfeed/config"
	"bankfeed-reconciliation-service/internal/api"
	"bankfeed-reconciliation-service/internal/engine"
	"bankfeed-reconciliation-service/internal/matcher"
	"bankfeed-reconciliation-service/internal/store"
	"bankfeed-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveAddr    string
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching API over HTTP",
	Long: `Serve starts the HTTP API used by the back-office frontend: batch
auto-matching, per-line suggestions, quick match and the line lifecycle
operations.

Examples:
  bankfeed serve --db books.db
  bankfeed serve --db books.db --addr :9090 --origins https://books.example.com`,

	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database (required)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origins", []string{"*"}, "allowed CORS origins")
	serveCmd.Flags().StringVar(&policyPreset, "policy", "default", "policy preset: default, strict, relaxed")
	serveCmd.Flags().IntVarP(&threshold, "threshold", "t", -1, "auto-match threshold override (0-100)")

	serveCmd.MarkFlagRequired("db")

	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger()

	policy, err := config.CreateMatchingPolicy(policyPreset, threshold, 0, -1)
	if err != nil {
		return err
	}

	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	service := engine.NewMatchingService(dataStore, matcher.NewMatcher(policy), log)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Addr = serveAddr
	serverConfig.AllowedOrigins = serveOrigins

	server := api.NewServer(serverConfig, service, dataStore, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("received shutdown signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}
