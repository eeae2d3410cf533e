package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/config"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "libraryd",
	Short: "Library loan management service",
	Long: `libraryd runs the library backend: book catalog, loans, members,
spreadsheet imports and the overdue loan reconciliation job.

Configuration comes from defaults, then the YAML file given by --config,
then environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		log = logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	bootstrapCmd.Flags().StringVar(&bootstrapLibrary, "library", "", "Name of the library to create (required)")
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "Email of the first admin (required)")
	bootstrapCmd.Flags().StringVar(&bootstrapName, "name", "Administrator", "Display name of the first admin")
	bootstrapCmd.MarkFlagRequired("library")
	bootstrapCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(importCheckCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDatabase connects to the record store and brings the schema up to date
func openDatabase() (*db.DB, error) {
	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
