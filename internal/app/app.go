package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/cartsync/internal/health"
	"github.com/vladislavdragonenkov/cartsync/internal/httpapi"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
	"github.com/vladislavdragonenkov/cartsync/internal/service/idempotency"
	"github.com/vladislavdragonenkov/cartsync/internal/version"
)

const (
	// Имя сервиса в grpc.health.v1.
	grpcServiceName = "cartsync.CartService"

	relayBacklogThreshold = 0.8
)

// Run поднимает HTTP API корзины, gRPC health и сервер метрик, и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	healthHandler := health.NewHandler(version.GetVersion(), 0)
	healthHandler.RegisterChecker("storage", health.NewPingChecker("storage", deps.pinger))

	idempotencyMetrics := metrics.NewIdempotencyMetrics()
	serverOptions := []httpapi.Option{
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithMetrics(metrics.NewHTTPMetrics()),
		httpapi.WithIdempotency(deps.idempotencyRepo, idempotencyMetrics, cfg.IdempotencyTTL),
	}
	if cfg.APITokens != "" {
		tokens, err := httpapi.ParseStaticTokens(cfg.APITokens)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvAPITokens, err)
		}
		serverOptions = append(serverOptions, httpapi.WithAuthenticator(tokens))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(runCtx)
	abort := func(err error) error {
		cancel()
		_ = group.Wait()
		return err
	}

	producer, err := initKafkaProducer(cfg, logger)
	if err != nil {
		producer = nil
	}
	defer closeKafka(producer, logger)
	if producer != nil {
		eventRelay := newEventRelay(cfg, producer, logger)
		serverOptions = append(serverOptions, httpapi.WithChangePublisher(eventRelay))
		threshold := int(float64(cfg.EventBufferSize) * relayBacklogThreshold)
		healthHandler.RegisterChecker("events", health.NewBacklogChecker("events", eventRelay.Buffered, threshold))
		group.Go(func() error {
			eventRelay.Run(groupCtx)
			return nil
		})
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithMetrics(idempotencyMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	group.Go(func() error {
		cleanup.Run(groupCtx)
		return nil
	})

	api := httpapi.NewServer(deps.store, deps.catalog, serverOptions...)
	apiSrv := &http.Server{
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := serveHTTP(groupCtx, group, apiSrv, cfg.HTTPAddr, cfg.ShutdownTimeout, logger.WithField("server", "api")); err != nil {
		return abort(err)
	}

	grpcServer, grpcHealth := newGRPCServer(logger)
	if err := serveGRPC(groupCtx, group, grpcServer, grpcHealth, cfg.GRPCAddr, cfg.ShutdownTimeout, logger); err != nil {
		return abort(err)
	}

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Handler:           metricsMux(healthHandler),
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := serveHTTP(groupCtx, group, metricsSrv, cfg.MetricsAddr, cfg.ShutdownTimeout, logger.WithField("server", "metrics")); err != nil {
			return abort(err)
		}
	}

	logger.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"kafka":        producer != nil,
	}).Info("cart service started")

	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// serveHTTP слушает addr и останавливает сервер при отмене ctx.
func serveHTTP(ctx context.Context, group *errgroup.Group, srv *http.Server, addr string, shutdownTimeout time.Duration, logger *log.Entry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	group.Go(func() error {
		logger.Infof("HTTP сервер слушает %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownHTTP(srv, shutdownTimeout, logger)
		return nil
	})
	return nil
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	return server, healthServer
}

func serveGRPC(ctx context.Context, group *errgroup.Group, server *grpc.Server, healthServer *grpchealth.Server, addr string, shutdownTimeout time.Duration, logger *log.Entry) error {
	if addr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	group.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		healthServer.Shutdown()

		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			server.Stop()
		}
		return nil
	})
	return nil
}

// metricsMux отдаёт /metrics и пробы здоровья.
func metricsMux(healthHandler *health.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	return mux
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
