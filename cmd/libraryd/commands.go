package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/events"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/importer"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/membership"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/metrics"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/notice"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/overdue"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bootstrapLibrary string
	bootstrapEmail   string
	bootstrapName    string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		log.Info("Migrations completed")
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the overdue loan reconciliation once",
	Long: `Marks every active loan whose due date lies before today (UTC) as overdue
and notifies the borrower. With RABBITMQ_URL set the notification is published
as a loan.overdue event; otherwise it is written straight to the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		m := metrics.NewNop()
		var notifier overdue.Notifier = notice.NewService(
			repo.NewNotificationRepository(database, log),
			repo.NewBookRepository(database, log),
			log,
		)
		if cfg.RabbitMQURL != "" {
			publisher, err := events.NewPublisher(cfg.RabbitMQURL, m, log)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer publisher.Close()
			notifier = publisher
		}

		job := overdue.NewJob(repo.NewLoanRepository(database, log), notifier, m, log)
		result, err := job.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var importCheckCmd = &cobra.Command{
	Use:   "import-check <file>",
	Short: "Validate a book spreadsheet without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		pipeline := importer.NewPipeline(cfg.MaxImportBytes, metrics.NewNop(), log)
		result, err := pipeline.Parse(cmd.Context(), filepath.Base(args[0]), data)
		if err != nil {
			var ve *apperr.ValidationError
			if errors.As(err, &ve) && ve.Details != nil {
				if printErr := printJSON(cmd, ve.Details); printErr != nil {
					return printErr
				}
			}
			return err
		}
		return printJSON(cmd, result)
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create a library and its first admin",
	Long: `Creates a library together with its first admin account. The password is
read from the BOOTSTRAP_PASSWORD environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("BOOTSTRAP_PASSWORD")
		if password == "" {
			return errors.New("BOOTSTRAP_PASSWORD must be set")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		members := membership.NewService(database, cfg.SessionTTL, cfg.LoginRatePerMinute, log)
		library, admin, err := members.Bootstrap(cmd.Context(), bootstrapLibrary, membership.NewUser{
			Email:    bootstrapEmail,
			Name:     bootstrapName,
			Password: password,
		})
		if err != nil {
			return err
		}

		log.Info("Library bootstrapped",
			zap.String("library_id", library.ID.String()),
			zap.String("admin_id", admin.ID.String()),
		)
		return printJSON(cmd, map[string]interface{}{"library": library, "admin": admin})
	},
}
