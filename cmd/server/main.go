package main

import (
	"context"
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

	"github.com/atmx/synthetic-ledger/internal/api"
	"github.com/atmx/synthetic-ledger/internal/config"
	"github.com/atmx/synthetic-ledger/internal/custody"
	"github.com/atmx/synthetic-ledger/internal/limits"
	"github.com/atmx/synthetic-ledger/internal/metrics"
	"github.com/atmx/synthetic-ledger/internal/position"
	"github.com/atmx/synthetic-ledger/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// --- Initialize store and custodian ---
	var st store.Store
	var cust custody.Custodian
	var faucet custody.Faucet
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pgStore := store.NewPostgresStore(pool)
		pgCustody := custody.NewPostgresCustodian(pool, cfg.CustodyAccount)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		if err := pgCustody.EnsureSchema(ctx); err != nil {
			slog.Error("custody schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pgStore
		cust = pgCustody
		if cfg.EnableFaucet {
			faucet = pgCustody
		}
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store and custodian (data will not persist)")
		st = store.NewMemoryStore()
		mc := custody.NewMemoryCustodian(cfg.CustodyAccount)
		cust = mc
		if cfg.EnableFaucet {
			faucet = mc
		}
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if cfg.InitialPrice.IsPositive() {
		if current, err := st.GetPrice(ctx); err == nil && current.IsZero() {
			if err := st.SetPrice(ctx, cfg.InitialPrice); err != nil {
				slog.Error("failed to seed initial price", "err", err)
				os.Exit(1)
			}
			slog.Info("seeded synthetic asset price", "price", cfg.InitialPrice.String())
		}
	}

	if len(cfg.AdminIDs) == 0 {
		slog.Warn("ADMIN_IDS not set, synthetic asset price cannot be updated")
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Position ledger ---
	ledger := position.NewLedger(st, cust, position.Options{
		Authorizer: position.AllowCallers(cfg.AdminIDs...),
		Redeposit:  cfg.Redeposit,
		Limiter:    limits.NewLimiter(cfg.MaxPositionSize, cfg.MaxLeverage),
		Publisher:  wsHub,
	})
	if err := ledger.RefreshMetrics(ctx); err != nil {
		slog.Warn("could not seed metrics", "err", err)
	}

	// Caller identity comes from X-Caller-ID; run behind a proxy that
	// authenticates clients and sets it.
	svc := api.NewService(ledger, cust, faucet)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.CallerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"synthetic-ledger"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket stream of position and price events. Registered outside
		// the timeout group so long-lived connections are not cut.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("synthetic-ledger listening",
			"port", cfg.Port,
			"redeposit_policy", cfg.Redeposit.String(),
			"faucet", faucet != nil,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down synthetic-ledger...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("synthetic-ledger stopped")
}
