package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"mailpulse/config"
	"mailpulse/middleware"
	"mailpulse/routes"
	"mailpulse/utils"
	"mailpulse/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "MAILPULSE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	monitorCfg := config.AppConfig.Monitor

	// Build the monitoring engine
	registry := worker.NewRegistry(config.DB)
	if err := registry.Load(); err != nil {
		logger.Fatalf("Failed to load mailbox accounts: %v", err)
	}

	workerLogger := log.New(os.Stdout, "MONITOR: ", log.LstdFlags)
	dialer := worker.NewIMAPDialer(monitorCfg.IMAPTimeout, workerLogger)

	prospects := worker.NewProspectStore(config.DB)
	threads := worker.NewThreadStore(config.DB)
	canceller := worker.NewFollowUpCanceller(prospects, worker.NewScheduler(config.DB), workerLogger)

	var responder *worker.AutoResponder
	if monitorCfg.AutoRespond {
		mailer := utils.NewMailer(config.DB)
		responder = worker.NewAutoResponder(
			worker.NewKeywordIntentClassifier(),
			worker.NewTemplateStore(config.DB),
			mailer,
			threads,
			workerLogger,
		)
	}

	lookback := time.Duration(monitorCfg.LookbackDays) * 24 * time.Hour
	processor := worker.NewProcessor(prospects, threads, worker.NewHeuristicClassifier(), canceller, responder, lookback, workerLogger)
	scanner := worker.NewScanner(dialer, processor, worker.NewScanStore(config.DB), worker.NewAccountStore(config.DB), workerLogger)
	supervisor := worker.NewSupervisor(registry, scanner, monitorCfg, workerLogger)

	// Start monitoring every registered account
	supervisor.StartAll()

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(app, config.DB, supervisor, registry, dialer)

	// Stop monitoring cleanly on shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Println("Shutting down...")
		supervisor.StopAll()
		_ = app.Shutdown()
	}()

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
