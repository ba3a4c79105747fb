package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/config"
	"github.com/shiva/ridedispatch/internal/handler"
	"github.com/shiva/ridedispatch/internal/middleware"
	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/notify"
	"github.com/shiva/ridedispatch/internal/repository"
	"github.com/shiva/ridedispatch/internal/repository/memory"
	"github.com/shiva/ridedispatch/internal/service"
	"github.com/shiva/ridedispatch/migrations"
	"github.com/shiva/ridedispatch/pkg/cache"
	"github.com/shiva/ridedispatch/pkg/db"
	"github.com/shiva/ridedispatch/pkg/logger"
)

// stores is the storage backend selected by STORAGE_BACKEND.
type stores struct {
	bookings service.BookingStore
	offers   service.OfferStore
	counters service.CounterStore
	drivers  service.DriverDirectory
	settings service.SettingsStore
	credits  service.CreditStore
}

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── Storage ─────────────────────────────────────────
	var (
		st          stores
		pgPool      *pgxpool.Pool
		redisClient *redis.Client
	)
	switch cfg.App.StorageBackend {
	case "memory":
		zlog.Warn("using in-memory storage; state is lost on restart")
		st = stores{
			bookings: memory.NewBookingStore(),
			offers:   memory.NewOfferStore(),
			counters: memory.NewCounterStore(),
			drivers:  memory.NewDriverStore(),
			settings: memory.NewSettingsStore(),
			credits:  memory.NewCreditStore(),
		}
	default:
		pgPool, err = db.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			zlog.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pgPool.Close()
		zlog.Info("PostgreSQL connected", zap.String("host", cfg.Postgres.Host))

		if cfg.App.AutoMigrate {
			applied, err := db.Migrate(ctx, pgPool, migrations.FS)
			if err != nil {
				zlog.Fatal("failed to apply migrations", zap.Error(err))
			}
			zlog.Info("migrations applied", zap.Strings("files", applied))
		}

		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zlog.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		zlog.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))

		settingsCache := cache.New(redisClient,
			cfg.Redis.KeyPrefix+repository.SettingsCacheNamespace, cfg.Dispatch.SettingsCacheTTL)
		settings := repository.NewCachedSettings(repository.NewSettingsRepository(pgPool), settingsCache, zlog)
		st = stores{
			bookings: repository.NewBookingRepository(pgPool),
			offers:   repository.NewOfferRepository(pgPool),
			counters: repository.NewCounterRepository(pgPool),
			drivers:  repository.NewDriverRepository(pgPool),
			settings: settings,
			credits:  repository.NewCreditRepository(pgPool),
		}
	}

	// ── Firebase ────────────────────────────────────────
	var notifier service.Notifier = notify.NewLog(zlog)
	var verifier middleware.TokenVerifier
	if cfg.Firebase.Enabled() {
		app, err := notify.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			zlog.Fatal("failed to initialise Firebase", zap.Error(err))
		}
		msgClient, err := app.Messaging(ctx)
		if err != nil {
			zlog.Fatal("failed to create FCM client", zap.Error(err))
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			zlog.Fatal("failed to create Firebase auth client", zap.Error(err))
		}
		notifier = notify.NewFCM(msgClient, zlog)
		verifier = middleware.NewFirebaseVerifier(authClient)
		zlog.Info("Firebase enabled", zap.String("project_id", cfg.Firebase.ProjectID))
	} else {
		zlog.Warn("Firebase disabled; trusting identity headers and logging notifications")
	}

	// ── Initialize layers ───────────────────────────────
	policy := service.NewDispatchPolicy(st.settings, model.DispatchMode(cfg.Dispatch.DefaultDispatchMode), nil)
	issuer := service.NewOfferIssuer(st.offers, notifier, cfg.Dispatch.OfferWindow, nil, zlog)
	pricingSvc := service.NewPricingService(service.FareConfig(cfg.Fare), zlog)
	bookingSvc := service.NewBookingService(service.BookingDeps{
		Bookings: st.bookings,
		Drivers:  st.drivers,
		Credits:  st.credits,
		IDs:      service.NewBookingIDGenerator(st.counters),
		Matcher:  service.NewMatcher(st.drivers),
		Offers:   issuer,
		Policy:   policy,
		Pricing:  pricingSvc,
		Notifier: notifier,
	}, cfg.Dispatch.NoDriverTimeout, nil, zlog)

	sweeper := service.NewSweeper(st.offers, st.bookings, bookingSvc, cfg.Dispatch.SweepInterval, nil, zlog)
	go sweeper.Run(ctx)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()
	router.Use(middleware.Recoverer(zlog), middleware.RequestLogger(zlog))

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes.
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, zlog)
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(limiter.Middleware, middleware.Identity(verifier, zlog))
	handler.RegisterRoutes(api, handler.Handlers{
		Bookings: handler.NewBookingHandler(bookingSvc, zlog),
		Offers:   handler.NewOfferHandler(issuer, bookingSvc, st.drivers, zlog),
		Settings: handler.NewSettingsHandler(policy, zlog),
		Pricing:  handler.NewPricingHandler(pricingSvc, zlog),
	})

	// CORS sits outside the router so preflight requests never reach identity checks.
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      middleware.CORS(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr), zap.String("storage", cfg.App.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
		return
	}
	zlog.Info("server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler checks PG and Redis connectivity. Either may be nil when
// running on in-memory storage.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if pgPool != nil {
			if err := db.HealthCheck(r.Context(), pgPool); err != nil {
				resp.Status = "degraded"
				resp.Services["postgres"] = "unhealthy: " + err.Error()
			} else {
				resp.Services["postgres"] = "healthy"
			}
		}

		if redisClient != nil {
			if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
				resp.Status = "degraded"
				resp.Services["redis"] = "unhealthy: " + err.Error()
			} else {
				resp.Services["redis"] = "healthy"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
