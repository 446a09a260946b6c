package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"campus-loyalty/internal/auth"
	"campus-loyalty/internal/config"
	"campus-loyalty/internal/database/migrations"
	"campus-loyalty/internal/kafka"
	"campus-loyalty/internal/ledger"
	"campus-loyalty/internal/ledger/api"
	ledgerdb "campus-loyalty/internal/ledger/db"
	"campus-loyalty/internal/ledger/promotion"
	"campus-loyalty/internal/ledger/qr"
	"campus-loyalty/internal/logger"
	"campus-loyalty/internal/models"
	"campus-loyalty/internal/utils"
)

type dbResolver struct {
	bun *bun.DB
}

func (r *dbResolver) ResolveUser(ctx context.Context, utorid string) (*models.User, error) {
	return ledgerdb.UserByUtorid(ctx, r.bun, utorid)
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	appLog := logger.NewLogger()
	defer appLog.Close()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect to Postgres: %v", err)
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatalf("❌ Migrations failed: %v", err)
	}
	appLog.LogDatabase("MIGRATE", "postgres", "schema up to date")

	// --- Redis actor cache (optional) ---
	var actorCache *auth.ActorCache
	if cfg.Redis.Enabled {
		cache, err := auth.InitializeActorCache(cfg.Redis.Addr, appLog)
		if err != nil {
			appLog.Warn("AUTH", fmt.Sprintf("Redis unavailable, running without actor cache: %v", err))
		} else {
			actorCache = cache
			defer actorCache.Close()
		}
	}

	// --- Kafka ledger event stream ---
	var publisher ledger.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, appLog)
		defer producer.Close()
		publisher = producer
	}

	// --- Ledger engine ---
	service := ledger.NewTransactionService(bunDB, promotion.NewEvaluator(), publisher, appLog)
	handler := &api.Handler{
		Service: service,
		QR:      qr.NewGenerator(cfg.Auth.QRSecret),
		Log:     appLog,
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(requestLogger(appLog))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret, &dbResolver{bun: bunDB}, actorCache))
		handler.Routes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.Info("SERVER", fmt.Sprintf("🚀 Loyalty ledger service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("SERVER", "Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	appLog.Info("SERVER", "✅ Server exited gracefully")
}

func requestLogger(appLog *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			w.Header().Set("X-Request-ID", utils.RequestID())
			rec := utils.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)
			appLog.LogAPI(r.Method, r.URL.Path, strconv.Itoa(rec.Status), time.Since(start).String())
		})
	}
}
