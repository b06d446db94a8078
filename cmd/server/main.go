package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/finflow-io/be-invoice-workflow/internal/client"
	"github.com/finflow-io/be-invoice-workflow/internal/config"
	"github.com/finflow-io/be-invoice-workflow/internal/database"
	"github.com/finflow-io/be-invoice-workflow/internal/handler"
	"github.com/finflow-io/be-invoice-workflow/internal/logger"
	"github.com/finflow-io/be-invoice-workflow/internal/middleware"
	"github.com/finflow-io/be-invoice-workflow/internal/natsclient"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
	"github.com/finflow-io/be-invoice-workflow/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting invoice workflow service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	auditRepo := repository.NewAuditRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db, auditRepo)
	userRepo := repository.NewUserRepository(db)

	// Notification sink (optional)
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := natsclient.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		notifier = client.NewNotificationPublisher(nc, log.Logger)
		log.Info().Str("nats_url", cfg.NATS.URL).Msg("Notification publisher initialized")
	} else {
		log.Warn().Msg("NATS_URL not set; notifications disabled")
	}

	// Initialize services
	hierarchyService := service.NewHierarchyService(userRepo, log)
	workflowService := service.NewWorkflowService(invoiceRepo, userRepo, auditRepo, hierarchyService, notifier, log)
	invoiceService := service.NewInvoiceService(invoiceRepo, userRepo, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(invoiceService, workflowService, hierarchyService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Invoice routes
	mux.HandleFunc("/api/v1/invoices", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListInvoices(w, r)
		case http.MethodPost:
			httpHandler.CreateInvoice(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("GET /api/v1/invoices/get", httpHandler.GetInvoice)
	mux.HandleFunc("POST /api/v1/invoices/action", httpHandler.ApplyAction)
	mux.HandleFunc("GET /api/v1/invoices/history", httpHandler.History)
	mux.HandleFunc("GET /api/v1/invoices/unrouted", httpHandler.ListUnrouted)
	mux.HandleFunc("POST /api/v1/invoices/assign-finance", httpHandler.AssignFinanceUser)

	// User and hierarchy routes
	mux.HandleFunc("POST /api/v1/users", httpHandler.CreateUser)
	mux.HandleFunc("DELETE /api/v1/users", httpHandler.DeactivateUser)
	mux.HandleFunc("POST /api/v1/hierarchy/assign", httpHandler.AssignManager)
	mux.HandleFunc("POST /api/v1/hierarchy/reports", httpHandler.ReplaceDirectReports)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
