package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/exposechain/exposechain/internal/handler"
	"github.com/exposechain/exposechain/internal/identity"
	"github.com/exposechain/exposechain/internal/service"
	"github.com/exposechain/exposechain/internal/threat"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the gRPC health server and the periodic scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage & events ──────────────────────────────────────────────────────
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher := newDispatcher(cfg, logger)
	defer dispatcher.Close()

	// ── Collectors & services ─────────────────────────────────────────────────
	cols, err := newCollectors(cfg, logger)
	if err != nil {
		return err
	}
	defer cols.Close()
	cols.startEviction(ctx, time.Minute)

	scans := service.NewScanService(newScanner(cols, cfg.Scan.Concurrency, logger), threat.NewPredictor(logger), st, dispatcher, logger)
	scans.SetThreatRecord(handler.RecordThreatReport)
	scans.SetScanRecord(handler.RecordScan)
	lookups := service.NewLookupService(cols.set())

	reg, err := newRegistry(ctx, cfg, logger)
	if err != nil {
		// The API stays useful for domain scans without discovery.
		logger.Warn("discovery source unavailable", zap.Error(err), zap.Strings("sources", reg.Names()))
	}
	exposures := service.NewExposureService(reg, st, dispatcher, logger)
	exposures.SetExposureRecord(handler.RecordExposure)
	exposures.SetScanRecord(handler.RecordScan)

	var tokens *identity.TokenIssuer
	if cfg.Auth.JWTSecret != "" {
		tokens, err = identity.NewTokenIssuer(cfg.Auth.JWTSecret, "", cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("auth.jwt_secret not set; mutating routes are open")
	}

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(ctx, handler.RouterConfig{
		Version:        version,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, logger,
		handler.NewScanHandler(scans, lookups, tokens, logger),
		handler.NewExposureHandler(exposures, tokens, logger),
	)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── gRPC health server ────────────────────────────────────────────────────
	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("gRPC listen on :%d: %w", cfg.Server.GRPCPort, err)
		}
		grpcServer = grpc.NewServer()
		healthSvc := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
		healthSvc.SetServingStatus("exposechain", grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		go func() {
			logger.Info("gRPC health listening", zap.Int("port", cfg.Server.GRPCPort))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Fatal("gRPC serve error", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// ── Background: periodic discovery and rescans ────────────────────────────
	schedQuit := make(chan os.Signal, 1)
	if cfg.Scan.Interval > 0 {
		sched := service.NewScheduler(exposures, scans, service.SchedulerConfig{
			Interval:    cfg.Scan.Interval,
			Targets:     cfg.Scan.Targets,
			ScanType:    cfg.Scan.Type,
			Concurrency: cfg.Scan.Concurrency,
		}, logger)
		go sched.Start(schedQuit)
		logger.Info("periodic scanning enabled", zap.Duration("interval", cfg.Scan.Interval))
	}

	go func() {
		logger.Info("HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	sig := <-quit
	schedQuit <- sig
	logger.Info("shutting down exposechain...")
	cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("exposechain stopped")
	return nil
}
