package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"keyward.io/internal/ai"
	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/config"
	"keyward.io/internal/httpapi"
	"keyward.io/internal/obs"
	"keyward.io/internal/ratelimit"
	"keyward.io/internal/store/memory"
	"keyward.io/internal/store/pg"
	"keyward.io/internal/stream"
)

// Overridden at build time via -ldflags.
var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log, err := obs.NewLogger(cfg.Debug)
	if err != nil {
		zap.NewExample().Fatal("init logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store auth.Store
		probe httpapi.ReadyProbe
	)
	var pgStore *pg.Store
	if cfg.DB.DSN != "" {
		pgStore, err = pg.Open(cfg.DB.DSN, cfg.DB.MaxConns)
		if err != nil {
			log.Fatal("open db", zap.Error(err))
		}
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
		log.Info("using postgres store")
	} else {
		store = memory.New()
		log.Warn("no KEYWARD_PG_DSN set, using in-memory store; data will not survive restarts")
	}

	userLimiter, loginLimiter, memLimiters := buildLimiters(cfg, log)

	tokens, err := auth.NewTokenService(
		cfg.Auth.JWTSecret,
		auth.WithSigningAlgorithm(cfg.Auth.JWTAlg),
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		log.Fatal("init token service", zap.Error(err))
	}

	feed := stream.New()

	api := httpapi.New(httpapi.Options{
		Store:        store,
		Gate:         auth.NewGate(tokens, userLimiter),
		Tokens:       tokens,
		Credentials:  auth.NewCredentialService(),
		Users:        auth.NewUserService(),
		Recorder:     audit.NewRecorder(log, audit.WithFeed(feed)),
		Feed:         feed,
		LoginLimiter: loginLimiter,
		Upstream:     ai.NewOllamaClient(cfg.AI.OllamaURL, cfg.AI.Model),
		Log:          log,
		ReadyProbe:   probe,
		Version:      version,
	})

	handler := httpapi.IPThrottle(api.Handler(), 50, 100)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Keep in-memory limiter maps bounded.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, m := range memLimiters {
					m.Sweep(5 * time.Minute)
				}
			case <-sweepDone:
				return
			}
		}
	}()

	log.Info("starting keyward-api", zap.String("version", version), zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	close(sweepDone)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Info("stopped")
}

// buildLimiters wires the fixed-window limiters. With a Redis address the
// budget is shared across instances; otherwise each process enforces its
// own window and the returned memory limiters need periodic sweeping.
func buildLimiters(cfg *config.Config, log *zap.Logger) (ratelimit.Limiter, ratelimit.Limiter, []*ratelimit.Memory) {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info("using redis rate limiter", zap.String("addr", cfg.Redis.Addr))
		return ratelimit.NewRedis(client, cfg.Rate.PerMinute),
			ratelimit.NewRedis(client, cfg.Rate.LoginPerMinute),
			nil
	}
	user := ratelimit.NewMemory(cfg.Rate.PerMinute)
	login := ratelimit.NewMemory(cfg.Rate.LoginPerMinute)
	return user, login, []*ratelimit.Memory{user, login}
}
