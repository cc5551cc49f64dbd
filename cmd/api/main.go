package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"dupulse.app/internal/audit"
	"dupulse.app/internal/auth"
	"dupulse.app/internal/config"
	"dupulse.app/internal/grpcapi"
	"dupulse.app/internal/guard"
	"dupulse.app/internal/httpapi"
	"dupulse.app/internal/identity"
	"dupulse.app/internal/obs"
	"dupulse.app/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Every collaborator is built once here and handed down; nothing below
	// constructs its own clients.
	var (
		store      *pg.Store
		membership auth.MembershipStore
		admins     httpapi.AdminDirectory
		ready      []httpapi.ReadyCheck
	)
	if cfg.PGDSN != "" {
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		membership, admins = store, store
		ready = append(ready, httpapi.ReadyCheck{Name: "postgres", Check: store.Check})
	}

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatalf("identity provider: %v", err)
	}
	policy, err := auth.NewPolicy(cfg.AdminPolicy, membership)
	if err != nil {
		log.Fatalf("admin policy: %v", err)
	}
	gate, err := auth.NewGate(provider, policy,
		auth.WithResolveTimeout(cfg.ResolveTimeout),
		auth.WithEvaluateTimeout(cfg.EvaluateTimeout),
		auth.WithObserver(auth.MultiObserver{obs.GateMetrics{}, audit.GateAudit{}}),
	)
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	sessions, closeSessions := newSessionStore(cfg, &ready)
	defer closeSessions()
	g, err := guard.New(gate, sessions,
		guard.WithLoginPath(cfg.LoginPath),
		guard.WithSessionTTL(cfg.SessionTTL),
		guard.WithSecureCookie(cfg.CookieSecure),
	)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}

	var adminUI http.Handler
	if cfg.AdminUIDir != "" {
		adminUI = http.StripPrefix("/admin", http.FileServer(http.Dir(cfg.AdminUIDir)))
	}

	api, err := httpapi.New(httpapi.Options{
		Gate:              gate,
		Guard:             g,
		Admins:            admins,
		Ready:             ready,
		AdminUI:           adminUI,
		Version:           version,
		RateBurst:         cfg.RateBurst,
		RatePerSec:        cfg.RatePerSec,
		CORSOrigins:       cfg.CORSOrigins,
		AllowLocalOrigins: cfg.CORSAllowLocalhost,
		TrustProxy:        cfg.TrustProxy,
	})
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var grpcSrv *grpcapi.Server
	if cfg.GRPCAddr != "" {
		grpcSrv, err = grpcapi.NewServer(gate, readiness(ready))
		if err != nil {
			log.Fatalf("grpc: %v", err)
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		go grpcSrv.Watch(ctx, 10*time.Second)
		go func() {
			obs.Info("grpc listening", map[string]any{"addr": cfg.GRPCAddr})
			if err := grpcSrv.GRPC().Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	obs.Info("starting dupulse-admin", map[string]any{
		"version":      version,
		"addr":         srv.Addr,
		"auth_mode":    cfg.AuthMode,
		"admin_policy": cfg.AdminPolicy,
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	if store != nil {
		_ = store.Close()
	}
	obs.Info("stopped", nil)
}

func newProvider(cfg config.Config) (auth.IdentityProvider, error) {
	if cfg.AuthMode == config.AuthModeJWT {
		var opts []identity.JWTOption
		if cfg.AuthURL != "" {
			opts = append(opts, identity.WithIssuer(cfg.AuthURL+"/auth/v1"))
		}
		return identity.NewJWTProvider(cfg.AuthJWTSecret, opts...)
	}
	return identity.NewHTTPProvider(cfg.AuthURL, cfg.AuthAnonKey)
}

func newSessionStore(cfg config.Config, ready *[]httpapi.ReadyCheck) (guard.SessionStore, func()) {
	if cfg.RedisAddr == "" {
		obs.Warn("DUPULSE_REDIS_ADDR not set; sessions are kept in memory", nil)
		return guard.NewMemoryStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	store := guard.NewRedisStore(client)
	*ready = append(*ready, httpapi.ReadyCheck{Name: "redis", Check: store.Ping})
	return store, func() { _ = client.Close() }
}

// readiness adapts the HTTP ready checks for the gRPC health service.
type readiness []httpapi.ReadyCheck

func (r readiness) Check(ctx context.Context) error {
	for _, c := range r {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			return errors.New(c.Name + ": " + err.Error())
		}
	}
	return nil
}
