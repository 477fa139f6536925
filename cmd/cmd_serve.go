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

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"exam-proctor-service/internal/app"
	"exam-proctor-service/internal/config"
	apphttp "exam-proctor-service/internal/http"
	"exam-proctor-service/internal/observability"
	"exam-proctor-service/internal/observability/metrics"
)

// healthServiceName is reported NOT_SERVING once shutdown begins.
const healthServiceName = "exam.proctor.SessionService"

func newServeCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proctoring API, gRPC health endpoint and metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				os.Setenv(config.ConfigFileEnv, configFile)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "TOML configuration file (overrides "+config.ConfigFileEnv+")")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	logger := application.Logger.With().Str("method", "serve").Logger()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		application.Shutdown(ctx)
		return fmt.Errorf("failed to listen: %w", err)
	}

	rpcLogger := application.Logger.With().Str("component", "grpc").Logger()
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics, rpcLogger)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics, rpcLogger)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	obsServer := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready,
		application.Logger.With().Str("component", "observability").Logger())
	if err := obsServer.Start(); err != nil {
		lis.Close()
		application.Shutdown(ctx)
		return err
	}

	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: apphttp.NewRouter(apphttp.Deps{
			Sessions: application.Sessions,
			Ready:    application.Ready,
			Logger:   application.Logger.With().Str("component", "http").Logger(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := application.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC server started")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve failed: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("port", cfg.Service.HTTPPort).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve failed: %w", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-sigCtx.Done():
		logger.Info().Msg("Shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("Server failed")
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Running sessions get the full audio drain window to submit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.AudioDrainTimeout+cfg.Session.TaskJoinTimeout+10*time.Second)
	defer cancel()

	application.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	grpcServer.GracefulStop()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Observability server shutdown")
	}

	logger.Info().Msg("Shutdown complete")
	return serveErr
}
