package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/storepulse/storepulse-api/internal/config"
	"github.com/storepulse/storepulse-api/internal/handlers"
	"github.com/storepulse/storepulse-api/internal/ingest"
	"github.com/storepulse/storepulse-api/internal/middleware"
	"github.com/storepulse/storepulse-api/internal/migration"
	"github.com/storepulse/storepulse-api/internal/report"
	"github.com/storepulse/storepulse-api/internal/repository"
	"github.com/storepulse/storepulse-api/internal/routes"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config  *config.Config
	db      *sql.DB
	manager *report.Manager
	logger  zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Bulk-load the CSV exports on first start; already-populated tables are
	// skipped.
	loader := ingest.NewLoader(db, cfg.Ingest.DataDir, logger)
	if err := loader.Load(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ingest source data")
	}

	// Report job manager over the bounded worker pool.
	storeRepo := repository.NewStoreRepository(db)
	reportRepo := repository.NewReportRepository(db)
	manager := report.NewManager(storeRepo, reportRepo, report.Config{
		WorkerCount:     cfg.Report.WorkerCount,
		DefaultTimezone: cfg.Report.DefaultTimezone,
	}, logger)

	// Create the application instance.
	app := &application{
		config:  cfg,
		db:      db,
		manager: manager,
		logger:  logger,
	}

	// Initialize the HTTP router and middleware.
	router := routes.NewRouter(handlers.NewReportHandler(manager, logger))
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type"}),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Let in-flight report jobs reach a terminal state.
	logger.Info().Msg("Waiting for running report jobs...")
	app.manager.Wait()
	logger.Info().Msg("Report jobs drained.")
}
