package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"slotgate/internal/auth"
	"slotgate/internal/backend"
	"slotgate/internal/backend/counter"
	"slotgate/internal/call"
	"slotgate/internal/events"
	"slotgate/internal/platform/config"
	"slotgate/internal/platform/httpserver"
	"slotgate/internal/platform/kafka"
	"slotgate/internal/platform/logger"
	"slotgate/internal/platform/metrics"
	platformredis "slotgate/internal/platform/redis"
	"slotgate/internal/registry"
	"slotgate/internal/state"
	httptransport "slotgate/internal/transport/http"
)

// Well-known module addresses. Callers point proxies at these when creating
// or upgrading; the catalog endpoint lists them.
var (
	counterV1Addr = mustAddress("0x00000000000000000000000000000000000c0001")
	counterV2Addr = mustAddress("0x00000000000000000000000000000000000c0002")
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := buildStateFactory(ctx, cfg)
	if err != nil {
		log.Error("state backend setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	modules := backend.NewRegistry()
	if err := registerModules(modules); err != nil {
		log.Error("module registration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opts := []registry.Option{
		registry.WithLogger(log),
		registry.WithMetrics(m),
	}

	var worker *events.Worker
	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		log.Error("kafka setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		publisher := events.NewKafkaPublisher(kafkaClient, cfg.Kafka.Topic)
		worker = events.NewWorker(publisher, cfg.Kafka.Buffer, events.WithWorkerLogger(log))
		opts = append(opts, registry.WithPublisher(worker))
		log.Info("kafka fan-out enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	svc := registry.New(stores, modules, opts...)
	authSvc := auth.NewService(cfg.JWTSigningKey, "slotgate")
	handler := httptransport.NewHandler(svc, log)
	router := httptransport.NewRouter(handler, authSvc, log)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting slotgate",
		slog.String("addr", cfg.Addr),
		slog.String("state_backend", string(cfg.StateBackend)))

	g, ctx := errgroup.WithContext(ctx)
	if worker != nil {
		g.Go(func() error {
			if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func registerModules(modules *backend.Registry) error {
	if err := modules.Register(counterV1Addr, "V1", counter.NewV1()); err != nil {
		return err
	}
	return modules.Register(counterV2Addr, "V2", counter.NewV2())
}

func buildStateFactory(ctx context.Context, cfg config.Server) (state.Factory, func(), error) {
	switch cfg.StateBackend {
	case config.StateMemory:
		return state.NewInMemoryFactory(), func() {}, nil
	case config.StateRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return state.NewRedisFactory(client), func() { _ = client.Close() }, nil
	case config.StatePostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := state.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return state.NewPostgresFactory(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

func mustAddress(s string) call.Address {
	a, err := call.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
