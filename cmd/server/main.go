package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/irrbb/whatif-engine/internal/calc"
	"github.com/irrbb/whatif-engine/internal/config"
	"github.com/irrbb/whatif-engine/internal/ledger"
	"github.com/irrbb/whatif-engine/internal/metrics"
	"github.com/irrbb/whatif-engine/internal/overlay"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("WHATIF_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	grid, err := cfg.Grid()
	if err != nil {
		slog.Error("invalid tenor grid", "err", err)
		os.Exit(1)
	}

	// --- Initialize ledger ---
	var st ledger.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := ledger.NewPostgresLedger(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = ledger.NewCachedLedger(st, rdb, cfg.RedisTTL())
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("database.url not set, using in-memory ledger (data will not persist)")
		st = ledger.NewMemoryLedger()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Remote calculation client ---
	calcClient := calc.NewClient(cfg.Calc.URL, cfg.CalcTimeout())

	// --- WebSocket hub ---
	wsHub := overlay.NewWSHub()
	go wsHub.Run()

	// --- Overlay service ---
	svc := overlay.NewService(st, grid, calcClient, cfg.Scenarios, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.ServerTimeout()))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"whatif-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time ledger updates.
		r.Get("/ws", wsHub.HandleWS)

		// Modification ledger.
		r.Get("/modifications", svc.ListModifications)
		r.Post("/modifications", svc.AddModification)
		r.Patch("/modifications/{modID}", svc.UpdateModification)
		r.Delete("/modifications/{modID}", svc.RemoveModification)
		r.Delete("/modifications", svc.ClearModifications)

		// Derived views over the ledger.
		r.Get("/allocation", svc.GetAllocation)
		r.Post("/stacks", svc.ComputeStacks)
		r.Get("/impact", svc.GetImpact)

		// Product-form field resolution.
		r.Post("/resolve", svc.ResolveFields)

		// Remote calculation.
		r.Post("/apply", svc.Apply)
		r.Get("/results", svc.GetResults)

		r.Get("/state", svc.GetState)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("whatif-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()

	slog.Info("shutting down whatif-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("whatif-engine stopped")
}
