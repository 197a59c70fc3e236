package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mailmind-app/mailmind-be/internal/ai"
	"github.com/mailmind-app/mailmind-be/internal/api/handler"
	"github.com/mailmind-app/mailmind-be/internal/api/router"
	"github.com/mailmind-app/mailmind-be/internal/config"
	"github.com/mailmind-app/mailmind-be/internal/engine"
	"github.com/mailmind-app/mailmind-be/internal/history"
	"github.com/mailmind-app/mailmind-be/internal/notify"
	"github.com/mailmind-app/mailmind-be/shared/logger"
	"github.com/mailmind-app/mailmind-be/shared/postgresql"
	"github.com/mailmind-app/mailmind-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("AI_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/ai-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting AI service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client for the job history archive
	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ publisher for job event notifications
	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:            cfg.RabbitMQ.Host,
		Port:            cfg.RabbitMQ.Port,
		User:            cfg.RabbitMQ.User,
		Password:        cfg.RabbitMQ.Password,
		VHost:           cfg.RabbitMQ.VHost,
		ExchangeName:    cfg.RabbitMQ.Exchange,
		ExchangeDurable: cfg.RabbitMQ.ExchangeDurable,
		RetryAttempts:   cfg.RabbitMQ.RetryAttempts,
		RetryInterval:   cfg.RabbitMQ.RetryInterval,
		Heartbeat:       cfg.RabbitMQ.Heartbeat,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// Inference client and engine
	aiClient := ai.NewClient(&ai.Config{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		RequestTimeout: cfg.AI.RequestTimeout,
	}, appLogger.Logger)

	orchestrator := engine.New(engine.Config{
		MinWorkers:       cfg.Engine.MinWorkers,
		MaxWorkers:       cfg.Engine.MaxWorkers,
		TickInterval:     cfg.Engine.TickInterval,
		SweepInterval:    cfg.Engine.SweepInterval,
		InferenceTimeout: cfg.Engine.InferenceTimeout,
		Queue: engine.QueueConfig{
			MaxAttempts:      cfg.Engine.MaxAttempts,
			BackoffBase:      cfg.Engine.BackoffBase,
			BackoffCap:       cfg.Engine.BackoffCap,
			RegistryCapacity: cfg.Engine.RegistryCapacity,
			RegistryMaxAge:   cfg.Engine.RegistryMaxAge,
		},
		Worker: engine.WorkerConfig{
			GracePeriod: cfg.Engine.WorkerGracePeriod,
			MaxJobs:     cfg.Engine.WorkerMaxJobs,
			IdleTimeout: cfg.Engine.WorkerIdleTimeout,
		},
	}, engine.NewRegistry(aiClient), nil, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Fan engine events out to the notification exchange and the history
	// archive
	historyStore := history.NewStore(dbClient)
	publisher := notify.NewPublisher(rabbitClient, appLogger.Logger)
	recorder := history.NewRecorder(historyStore, appLogger.Logger)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-orchestrator.Events():
				publisher.Handle(ctx, ev)
				recorder.Handle(ctx, ev)
			}
		}
	}()

	// HTTP server
	engineRouter := router.SetupRouter(&handler.Dependencies{
		Logger:  appLogger.Logger,
		Engine:  orchestrator,
		History: historyStore,
		DB:      dbClient,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engineRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP server listening", slog.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("HTTP server error", slog.Any("error", err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}

	// Stop the engine; each worker drains its in-flight job within its
	// grace period
	orchestrator.Stop()
	cancel()

	appLogger.Info("AI service shutdown complete")
	return nil
}
