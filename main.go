package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/fitlink/fitlink-backend/internal/admin"
	"github.com/fitlink/fitlink-backend/internal/auth"
	"github.com/fitlink/fitlink-backend/internal/config"
	"github.com/fitlink/fitlink-backend/internal/db"
	"github.com/fitlink/fitlink-backend/internal/guard"
	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/identity/local"
	_ "github.com/fitlink/fitlink-backend/internal/identity/supabase"
	"github.com/fitlink/fitlink-backend/internal/logger"
	"github.com/fitlink/fitlink-backend/internal/member"
	"github.com/fitlink/fitlink-backend/internal/middleware"
	"github.com/fitlink/fitlink-backend/internal/profiles"
	"github.com/fitlink/fitlink-backend/internal/trainer"
	"github.com/fitlink/fitlink-backend/internal/training"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)

	gdb, err := db.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if err := profiles.Init(gdb); err != nil {
		return err
	}
	if err := training.Init(gdb); err != nil {
		return err
	}
	if cfg.Auth.Provider == config.ProviderLocal {
		if err := local.Init(gdb); err != nil {
			return err
		}
	}

	broker := identity.NewBroker()
	provider, err := identity.NewProvider(cfg.Auth.Provider, identity.Options{
		Broker:            broker,
		SupabaseURL:       cfg.Auth.SupabaseURL,
		SupabaseAnonKey:   cfg.Auth.SupabaseAnonKey,
		SupabaseJWTSecret: cfg.Auth.SupabaseJWTSecret,
		LocalJWTSecret:    cfg.Auth.LocalJWTSecret,
	})
	if err != nil {
		return err
	}
	log.Info("auth provider ready", "provider", provider.Name())

	profileStore := profiles.NewStore(gdb)
	trainingStore := training.NewStore(gdb)
	resolver := guard.NewResolver(profileStore, log)
	guardCfg := guard.Config{Resolver: resolver, Timeout: cfg.Guard.Timeout, Logger: log}

	loginLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.LoginRate), cfg.RateLimit.LoginBurst)
	defer loginLimiter.Stop()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SessionMiddleware(middleware.SessionConfig{
		Provider:     provider,
		Broker:       broker,
		CookieSecure: cfg.Auth.CookieSecure,
		Logger:       log,
	}))
	r.Get("/", RootHandler)

	r.Mount("/auth", auth.SetupRoutes(auth.Deps{
		Provider:     provider,
		Broker:       broker,
		Profiles:     profileStore,
		Guard:        guardCfg,
		LoginLimiter: loginLimiter,
		CookieSecure: cfg.Auth.CookieSecure,
		Logger:       log,
	}))
	r.Mount("/trainer", trainer.SetupRoutes(trainer.Deps{
		Profiles:  profileStore,
		Contracts: trainingStore,
		SignUp:    provider,
		Guard:     guardCfg,
		Logger:    log,
	}))
	r.Mount("/member", member.SetupRoutes(member.Deps{
		Schedules: trainingStore,
		Guard:     guardCfg,
		Logger:    log,
	}))
	r.Mount("/admin", admin.SetupRoutes(admin.Deps{
		Profiles:  profileStore,
		Contracts: trainingStore,
		SignUp:    provider,
		Guard:     guardCfg,
		Logger:    log,
	}))

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	// Open /auth/watch streams and their guards end with the base context.
	srv.RegisterOnShutdown(cancelBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", "error", err)
	}
	resolver.Drain()
	return nil
}
