package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kkkkikiki/donation/internal/config"
	"github.com/kkkkikiki/donation/internal/database"
	"github.com/kkkkikiki/donation/internal/gateway"
	"github.com/kkkkikiki/donation/internal/ledger"
	"github.com/kkkkikiki/donation/internal/notify"
	"github.com/kkkkikiki/donation/internal/store"
	transporthttp "github.com/kkkkikiki/donation/internal/transport/http"
)

func main() {
	ctx := context.Background()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	logger.Info().
		Str("environment", cfg.App.Environment).
		Str("store", cfg.Ledger.StoreBackend).
		Msg("starting donation ledger")

	// Select the state backend
	var st store.Store
	switch cfg.Ledger.StoreBackend {
	case "memory":
		st = store.NewMemory()
	case "postgres":
		db, err := database.NewDB(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing database connections")
			}
		}()
		pg := store.NewPostgres(db.Postgres)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		st = pg
	default:
		logger.Fatal().Str("backend", cfg.Ledger.StoreBackend).Msg("unknown store backend")
	}

	// The in-memory bank stands in for the host's token-transfer
	// subsystem.
	bank := gateway.NewBank()

	svc := ledger.New(st, bank, ledger.Options{
		Notifier:       notify.NewLog(logger),
		CustodyAccount: cfg.Ledger.CustodyAccount,
		MaxGoalAmount:  cfg.Ledger.MaxGoalAmount,
	})

	// Create HTTP mux
	mux := http.NewServeMux()
	mux.Handle("/v1/", transporthttp.NewRouter(&transporthttp.Handler{
		Ledger: svc,
		Logger: logger,
	}))

	// Development faucet: credits the caller so donations can be
	// exercised without the host's token-transfer subsystem.
	if cfg.App.IsDevelopment() {
		mux.HandleFunc("/v1/faucet", func(w http.ResponseWriter, r *http.Request) {
			account := r.Header.Get(transporthttp.CallerHeader)
			if account == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			bank.Credit(account, 1_000_000)
			balance, _ := bank.Balance(r.Context(), account)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"account":%q,"balance":%d}`, account, balance)
		})
	}

	// Add health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		w.WriteHeader(http.StatusOK)
		response := fmt.Sprintf(`{"status":"ok","service":"donation-ledger","hostname":"%s"}`, hostname)
		w.Write([]byte(response))
	})

	// Add Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second, // Keep connections alive longer
		MaxHeaderBytes: 1 << 20,           // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(mux, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited gracefully")
}
