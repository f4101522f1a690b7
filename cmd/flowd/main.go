// flowd serves flow sessions: it hosts the state machines that walk a
// user through identification and onboarding against the upstream
// identity API.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"veriflow/internal/audit"
	"veriflow/internal/flow"
	"veriflow/internal/flow/metrics"
	"veriflow/internal/identityapi"
	"veriflow/internal/platform/config"
	"veriflow/internal/platform/httpserver"
	"veriflow/internal/platform/logger"
	"veriflow/internal/session"
	httptransport "veriflow/internal/transport/http"
)

func main() {
	cfg := config.FlowdFromEnv()
	log := logger.New("flowd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, cleanup, err := buildAuditPublisher(ctx, cfg, log)
	if err != nil {
		log.Error("audit publisher setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Flow transitions emit into the inbox; the worker forwards to the sink
	// off the request path.
	auditInbox := make(chan audit.Event, 256)
	publisher := audit.NewChannelPublisher(auditInbox)
	auditWorker := audit.NewWorker(sink, auditInbox, audit.WithWorkerLogger(log))

	client := identityapi.NewHTTPClient(cfg.UpstreamBaseURL, identityapi.WithLogger(log))
	flowMetrics := metrics.New()
	registry := session.New(
		session.WithLogger(log),
		session.WithIdleTTL(cfg.SessionIdleTTL),
	)

	handler := httptransport.NewFlowHandler(client, registry, log,
		flow.WithLogger(log),
		flow.WithMetrics(flowMetrics),
		flow.WithAuditPublisher(publisher),
		flow.WithHandoffPollInterval(cfg.HandoffPollInterval),
	)

	r := chi.NewRouter()
	handler.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auditWorker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("flowd listening", "addr", cfg.Addr, "upstream", cfg.UpstreamBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.Close(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("flowd exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("flowd stopped")
}

// buildAuditPublisher picks the audit sink: Kafka when brokers are
// configured, postgres as a durable fallback, in-memory otherwise. The
// returned cleanup flushes and closes whatever was opened.
func buildAuditPublisher(ctx context.Context, cfg config.Flowd, log *slog.Logger) (audit.Publisher, func(), error) {
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic,
			audit.WithKafkaLogger(log),
		)
		if err != nil {
			return nil, nil, err
		}
		return publisher, func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := publisher.Flush(flushCtx); err != nil {
				log.Warn("audit flush failed", "error", err)
			}
			publisher.Close()
		}, nil
	}

	if cfg.AuditPostgresURL != "" {
		store, err := audit.OpenPostgres(cfg.AuditPostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	return audit.NewMemoryStore(), func() {}, nil
}
