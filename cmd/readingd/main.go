package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/app"
	"github.com/omutucat/reading-counter-dc/internal/config"
	grpcserver "github.com/omutucat/reading-counter-dc/internal/grpc"
	"github.com/omutucat/reading-counter-dc/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	log.Info("Reading service starting",
		zap.String("store", cfg.StoreBackend),
		zap.String("lock", cfg.LockBackend),
		zap.String("cache", cfg.CacheBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer application.Close()

	if err := application.StartConsumer(ctx); err != nil {
		log.Fatal("Failed to start event consumer", zap.Error(err))
	}

	// Start gRPC health server
	var grpcServer *grpc.Server
	if cfg.GRPCPort != "" {
		grpcServer = grpc.NewServer(
			grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log)),
		)
		grpc_health_v1.RegisterHealthServer(grpcServer, grpcserver.NewHealthServer(application.Health, log))

		// Enable reflection for grpcurl/grpcui
		reflection.Register(grpcServer)

		grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			log.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}

		go func() {
			log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
			if err := grpcServer.Serve(grpcListener); err != nil {
				log.Error("gRPC server stopped", zap.Error(err))
			}
		}()
	}

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      application.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.LockTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	log.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	log.Info("Server stopped")
}
