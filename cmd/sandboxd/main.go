// sandboxd serves the sandbox identity API: a deterministic upstream for
// flow development and testing, with tenant configs in postgres and
// challenges in redis when those backends are configured.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"veriflow/internal/identityapi"
	"veriflow/internal/platform/config"
	"veriflow/internal/platform/httpserver"
	"veriflow/internal/platform/logger"
	"veriflow/internal/platform/redis"
	"veriflow/internal/sandbox"
	sandboxhandler "veriflow/internal/sandbox/handler"
	"veriflow/internal/sandbox/store/challenge"
	"veriflow/internal/sandbox/store/handoff"
	"veriflow/internal/sandbox/tokens"
	"veriflow/internal/tenant"
	tenantstore "veriflow/internal/tenant/store"
)

func main() {
	cfg := config.SandboxdFromEnv()
	log := logger.New("sandboxd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tenants, closeTenants, err := buildTenantStore(ctx, cfg, log)
	if err != nil {
		log.Error("tenant store setup failed", "error", err)
		os.Exit(1)
	}
	defer closeTenants()

	challenges, handoffs, closeRedis, err := buildSessionStores(cfg, log)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	defer closeRedis()

	signer := tokens.NewSigner(cfg.JWTSigningKey, "sandboxd")
	service := sandbox.NewService(tenants, challenges, handoffs, signer,
		sandbox.WithLogger(log),
		sandbox.WithChallengeTTL(cfg.ChallengeTTL),
		sandbox.WithTimeBeforeRetry(cfg.TimeBeforeRetry),
	)

	r := chi.NewRouter()
	sandboxhandler.New(service, signer, log).Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("sandboxd listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("sandboxd exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("sandboxd stopped")
}

// buildTenantStore opens postgres when configured, seeding the dev tenant
// either way so a fresh sandbox answers immediately.
func buildTenantStore(ctx context.Context, cfg config.Sandboxd, log *slog.Logger) (tenantstore.Store, func(), error) {
	if cfg.PostgresURL == "" {
		store := tenantstore.NewMemory()
		if err := store.Save(ctx, devTenant()); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	store := tenantstore.NewPostgres(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.Save(ctx, devTenant()); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("tenant store backed by postgres")
	return store, pool.Close, nil
}

// buildSessionStores returns redis-backed challenge and hand-off stores
// when redis is configured, in-memory stores otherwise.
func buildSessionStores(cfg config.Sandboxd, log *slog.Logger) (challenge.Store, handoff.Store, func(), error) {
	client, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if client == nil {
		return challenge.NewMemoryStore(), handoff.NewMemoryStore(), func() {}, nil
	}
	log.Info("session stores backed by redis")
	return challenge.NewRedisStore(client), handoff.NewRedisStore(client), func() { _ = client.Close() }, nil
}

// devTenant is the out-of-the-box tenant for local development.
func devTenant() tenant.Tenant {
	return tenant.Tenant{
		PublicKey: "pk_sandbox_dev",
		Name:      "Veriflow Dev",
		Config: identityapi.OnboardingConfig{
			TenantPublicKey:    "pk_sandbox_dev",
			TenantName:         "Veriflow Dev",
			SupportedCountries: []string{"US", "GB", "DE"},
			CollectKYCData:     true,
		},
		RequirementTemplate: []identityapi.Requirement{
			{Kind: identityapi.RequirementKYCData},
			{Kind: identityapi.RequirementIDDoc},
			{Kind: identityapi.RequirementLiveness},
		},
	}
}
