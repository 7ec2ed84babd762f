package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/vessel-monitor/backend/internal/api"
	"github.com/vessel-monitor/backend/internal/config"
	"github.com/vessel-monitor/backend/internal/fleet"
	"github.com/vessel-monitor/backend/internal/live"
	"github.com/vessel-monitor/backend/internal/motion"
	"github.com/vessel-monitor/backend/internal/observability"
	"github.com/vessel-monitor/backend/internal/store"
	"github.com/vessel-monitor/backend/internal/track"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "VesselMonitor.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Advanced.LogLevel)

	// Motion calibration: defaults, overridden from redis when available.
	overrides := map[string]string{}
	if cfg.Redis.Enabled {
		calStore, err := store.NewCalibrationStore(cfg.Redis.Addr, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("calibration store unavailable, using defaults", "error", err)
		} else {
			overrides = calStore.LoadOverrides(context.Background())
			calStore.Close()
		}
	}
	cal := motion.CalibrationFromOverrides(overrides)
	speedMultiplier := motion.SpeedMultiplierFromOverrides(overrides)

	// Fleet registry (vessel names, municipalities, deactivations).
	registry, err := fleet.LoadRegistry(cfg.Fleet.RegistryFile)
	if err != nil {
		fmt.Printf("Failed to load fleet registry: %v\n", err)
		os.Exit(1)
	}
	logger.Info("fleet registry loaded", "vessels", registry.Len(), "file", cfg.Fleet.RegistryFile)

	// Tracking engine.
	engine := track.NewEngine(cal, registry, logger, track.Options{
		DeadBandMeters:  cfg.Tracking.DeadBandMeters,
		OfflineAfter:    time.Duration(cfg.Tracking.OfflineAfterSeconds) * time.Second,
		FrameInterval:   time.Duration(cfg.Tracking.FrameIntervalMs) * time.Millisecond,
		SpeedMultiplier: speedMultiplier,
	})

	// Map surface push hub, wired as the engine's violation callback.
	hub := api.NewHub(engine, time.Duration(cfg.Tracking.BroadcastIntervalMs)*time.Millisecond, logger)
	engine.OnViolation(hub.NotifyViolation)

	// Upstream live channel plus polling fallback.
	channel := live.NewChannel(cfg.Upstream.LiveStreamURL, engine, logger)
	poller := live.NewPoller(cfg.Upstream.SnapshotURL,
		time.Duration(cfg.Upstream.PollIntervalSeconds)*time.Second,
		channel, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); hub.Run(ctx) }()
	go func() { defer wg.Done(); poller.Run(ctx) }()
	channel.Connect(ctx)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/health" || path == "/metrics" ||
				strings.HasSuffix(path, "/status")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			// Never compress the push channel or msgpack blobs.
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/api/ws") ||
				strings.HasSuffix(path, "/msgpack")
		},
	}))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	h := api.NewHandler(engine, channel, cal, speedMultiplier, Version)
	api.RegisterRoutes(e, h, hub)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	logger.Info("vessel monitor starting",
		"version", Version,
		"buildTime", BuildTime,
		"listen", cfg.GetServerAddr(),
		"upstream", cfg.Upstream.LiveStreamURL)

	go func() {
		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	channel.Close()
	wg.Wait()
	engine.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
