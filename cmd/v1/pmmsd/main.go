package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/pmms-project/pmms-server/internal/v1/auth"
	"github.com/pmms-project/pmms-server/internal/v1/config"
	"github.com/pmms-project/pmms-server/internal/v1/health"
	"github.com/pmms-project/pmms-server/internal/v1/logging"
	"github.com/pmms-project/pmms-server/internal/v1/middleware"
	"github.com/pmms-project/pmms-server/internal/v1/names"
	"github.com/pmms-project/pmms-server/internal/v1/probe"
	"github.com/pmms-project/pmms-server/internal/v1/ratelimit"
	"github.com/pmms-project/pmms-server/internal/v1/session"
	"github.com/pmms-project/pmms-server/internal/v1/store"
	"github.com/pmms-project/pmms-server/internal/v1/tracing"
	"github.com/pmms-project/pmms-server/internal/v1/transport"
)

const serviceName = "pmms-server"

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		slog.Info("No .env file found in any expected location, relying on environment variables")
	}

	configPath := flag.String("config", "", "path to the JSON configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Configuration failed", "error", err)
		return 1
	}

	if err := logging.Initialize(cfg.Log.LoggingConfig()); err != nil {
		slog.Error("Logger initialization failed", "error", err)
		return 1
	}
	defer func() { _ = logging.GetLogger().Sync() }()

	ctx := context.Background()

	// Tracing goes first so the admin router picks up the global provider.
	if cfg.Tracing.EnableTracing {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			logging.Error(ctx, "Tracer initialization failed", zap.Error(err))
			return 1
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				logging.Error(flushCtx, "Tracer shutdown failed", zap.Error(err))
			}
		}()
		logging.Info(ctx, "Tracing enabled", zap.String("collector", cfg.Tracing.OTLPEndpoint))
	}

	var gate *ratelimit.AcceptLimiter
	if cfg.Limits.EnableConnectionRateLimit {
		gate, err = ratelimit.NewAcceptLimiter(cfg.Limits.ConnectionRate)
		if err != nil {
			logging.Error(ctx, "Rate limiter initialization failed", zap.Error(err))
			return 1
		}
		logging.Info(ctx, "Connection rate limit enabled", zap.String("rate", cfg.Limits.ConnectionRate))
	}

	rooms := store.New(store.HostFullNameIndex())
	deps := session.Deps{
		Store:  rooms,
		Names:  names.NewRegistry(),
		Policy: auth.NewPolicy(cfg.Authentication.GameID, cfg.Authentication.EnableGameVersionCheck, cfg.Authentication.GameVersion),
		Prober: probe.New(probe.Config{
			TCPTimeout:  cfg.ConnectionTest.TCPTimeout(),
			UDPTimeout:  cfg.ConnectionTest.UDPTimeout(),
			UDPTryCount: cfg.ConnectionTest.ConnectionCheckUDPTryCount,
			UDPNetwork:  cfg.Common.UDPNetwork(),
		}),
		Timeout:          cfg.Common.Timeout(),
		MaxRoomCount:     cfg.Common.MaxRoomCount,
		MaxPlayerPerRoom: uint8(cfg.Common.MaxPlayerPerRoom),
	}

	slots := cfg.Common.Thread * cfg.Common.MaxConnectionPerThread
	game := transport.NewServer(transport.Config{
		Network: cfg.Common.Network(),
		Addr:    cfg.Common.ListenAddr(),
		Slots:   slots,
	}, deps, gate)

	if err := game.Start(ctx); err != nil {
		logging.Error(ctx, "Game listener failed to start", zap.Error(err))
		return 1
	}
	logging.Info(ctx, "Game listener started",
		zap.String("network", cfg.Common.Network()),
		zap.String("addr", game.Addr().String()),
		zap.Int("slots", slots))

	// Optional admin surface: Prometheus metrics and health probes.
	var admin *http.Server
	if cfg.Admin.EnableAdmin {
		router := gin.New()
		router.Use(gin.Recovery())

		corsCfg := cors.DefaultConfig()
		corsCfg.AllowAllOrigins = true
		router.Use(cors.New(corsCfg))

		router.Use(middleware.CorrelationID())
		if cfg.Tracing.EnableTracing {
			router.Use(otelgin.Middleware(serviceName))
		}

		router.GET("/metrics", gin.WrapH(promhttp.Handler()))

		healthHandler := health.NewHandler(game, rooms)
		router.GET("/health/live", healthHandler.Liveness)
		router.GET("/health/ready", healthHandler.Readiness)

		admin = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Admin.AdminPort),
			Handler: router,
		}

		// Start the admin server in a goroutine so it doesn't block.
		go func() {
			logging.Info(ctx, "Admin server starting", zap.Int("port", cfg.Admin.AdminPort))
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error(ctx, "Admin server failed", zap.Error(err))
				syscall.Kill(os.Getpid(), syscall.SIGTERM)
			}
		}()
	}

	// Wait for an interrupt signal to gracefully shut down the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	// In-flight sessions get 30 seconds to finish before they are cut.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := game.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Game listener shutdown incomplete", zap.Error(err))
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logging.Error(shutdownCtx, "Admin server forced to shutdown", zap.Error(err))
		}
	}

	logging.Info(ctx, "Server exiting")
	return 0
}
