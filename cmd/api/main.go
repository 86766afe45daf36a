package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"plainsmart.org/internal/config"
	"plainsmart.org/internal/httpapi"
	"plainsmart.org/internal/identity"
	"plainsmart.org/internal/obs"
	"plainsmart.org/internal/policy"
	"plainsmart.org/internal/store/pg"
	"plainsmart.org/internal/token"
)

var version = "0.3.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()

	// Persistence: Postgres when a DSN is configured, otherwise an
	// in-process store for local development.
	var (
		store        identity.Store
		refreshStore token.RefreshStore
		db           *sql.DB
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		refreshStore = pgStore.Refresh()
		db = pgStore.DB()
	} else {
		store = identity.NewMemoryStore()
		refreshStore = token.NewMemoryRefreshStore()
		obs.Info("no DSN configured, using in-memory store", nil)
	}

	svc, err := identity.NewService(store)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}

	// Signing keys must exist before any token can be issued.
	keyring, err := token.LoadOrGenerateKeyring(cfg.SigningKey)
	if err != nil {
		log.Fatalf("signing keys: %v", err)
	}
	clients, err := token.NewClientRegistry(config.Clients())
	if err != nil {
		log.Fatalf("client registry: %v", err)
	}
	issuer, err := token.NewIssuer(keyring, clients,
		token.WithIssuerName(cfg.Issuer),
		token.WithAudience(cfg.Audience),
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
		token.WithRefreshStore(refreshStore),
		token.WithClaimsSource(svc.ClaimsForID),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	policies, err := policy.NewRegistry(registeredPolicies(config.Policies())...)
	if err != nil {
		log.Fatalf("policy registry: %v", err)
	}

	// Seed before the listener starts so no request can observe a store
	// without the canonical roles or the administrator.
	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	seeder := identity.NewSeeder(svc, cfg.Roles, cfg.AdminUsername, cfg.AdminPassword)
	if err := seeder.Seed(seedCtx); err != nil {
		cancel()
		log.Fatalf("seed: %v", err)
	}
	cancel()

	api, err := httpapi.New(svc, issuer, policies, httpapi.ReadyProbe{DB: db}, version)
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting identity-api", map[string]any{"addr": cfg.Addr, "version": version})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.Info("shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func registeredPolicies(specs []config.PolicySpec) []*policy.Policy {
	out := make([]*policy.Policy, 0, len(specs))
	for _, spec := range specs {
		out = append(out, policy.RequireClaimIn(spec.Name, identity.ClaimKind(spec.ClaimKind), spec.Values...))
	}
	return out
}
