package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/assets"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/catalog"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/circulation"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/events"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/health"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/httpapi"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/importer"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/membership"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/metrics"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/notice"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/overdue"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC health service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log.Info("Library service starting")

	provider, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := assets.NewStore(cfg.AssetsDir, cfg.AssetsBaseURL, log)
	if err != nil {
		return err
	}

	members := membership.NewService(database, cfg.SessionTTL, cfg.LoginRatePerMinute, log)
	notices := notice.NewService(
		repo.NewNotificationRepository(database, log),
		repo.NewBookRepository(database, log),
		log,
	)

	// Without a broker, overdue notifications go straight to the database and
	// catalog changes are not announced.
	var (
		notifier  overdue.Notifier = notices
		publisher catalog.ChangePublisher
		brokers   []health.Checker
	)
	if cfg.RabbitMQURL != "" {
		log.Info("Connecting to RabbitMQ")
		pub, err := events.NewPublisher(cfg.RabbitMQURL, m, log)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer pub.Close()

		consumer, err := events.NewConsumer(cfg.RabbitMQURL, notices, log)
		if err != nil {
			return fmt.Errorf("failed to start notification consumer: %w", err)
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("Notification consumer stopped", zap.Error(err))
			}
		}()

		notifier = pub
		publisher = pub
		brokers = append(brokers, pub, consumer)
	} else {
		log.Warn("RABBITMQ_URL not set, notifications are stored directly")
	}

	job := overdue.NewJob(repo.NewLoanRepository(database, log), notifier, m, log,
		overdue.WithTracer(provider.Tracer("library/overdue")))
	healthServer := health.NewServer(database, log, brokers...)

	api := httpapi.NewServer(httpapi.Deps{
		Members:        members,
		Catalog:        catalog.NewService(database, store, publisher, log),
		Circulation:    circulation.NewService(database, cfg.LoanPeriodDays, log),
		Notices:        notices,
		Importer:       importer.NewPipeline(cfg.MaxImportBytes, m, log),
		Overdue:        job,
		Assets:         store,
		Health:         healthServer,
		Metrics:        m,
		Gatherer:       registry,
		CronSecret:     cfg.CronSecret,
		MaxImportBytes: cfg.MaxImportBytes,
	}, log)
	if cfg.CronSecret == "" {
		log.Warn("CRON_SECRET not set, the overdue endpoint rejects every caller")
	}

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(health.LoggingInterceptor(log)),
	)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}

	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	if cfg.ReconcileInterval > 0 {
		go runHousekeeping(ctx, job, members, cfg.ReconcileInterval)
	}

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
	return nil
}

// runHousekeeping reconciles overdue loans and purges expired sessions every
// interval until ctx is done. Runs never overlap.
func runHousekeeping(ctx context.Context, job *overdue.Job, members *membership.Service, interval time.Duration) {
	log.Info("Scheduled reconciliation enabled", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := job.Run(ctx); err != nil {
				log.Error("Scheduled reconciliation failed", zap.Error(err))
			}
			if n, err := members.PurgeSessions(ctx); err != nil {
				log.Error("Failed to purge sessions", zap.Error(err))
			} else if n > 0 {
				log.Info("Expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}
