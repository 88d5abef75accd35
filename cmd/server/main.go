package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mmdvm-dashboard/backend/internal/api"
	"github.com/mmdvm-dashboard/backend/internal/backfill"
	"github.com/mmdvm-dashboard/backend/internal/broadcast"
	"github.com/mmdvm-dashboard/backend/internal/config"
	"github.com/mmdvm-dashboard/backend/internal/lcdproc"
	"github.com/mmdvm-dashboard/backend/internal/livelog"
	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/state"
	"github.com/mmdvm-dashboard/backend/internal/tail"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config/dashboard.yaml", "path to dashboard config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// State store and broadcast hub.
	store := state.New(
		state.WithLogger(logger.Named("state")),
		state.WithHistorySizes(cfg.Monitoring.MaxRecentCalls, cfg.Monitoring.MaxEvents),
	)
	hub := broadcast.NewHub(store, cfg.Debounce(), logger.Named("broadcast"))
	defer hub.Stop()
	store.SetNotifier(hub)

	// Config overlay: what the INI files say should be running.
	overlayMgr := config.NewManager(cfg, logger.Named("config"))
	store.SetOverlay(overlayMgr.Overlay())
	go refreshOverlay(ctx, overlayMgr, store, cfg.OverlayRefresh())

	// Live log buffer shared by all tail readers.
	live := livelog.NewViewer(cfg.Monitoring.LogBufferSize)

	// Optional LCDproc display emulation.
	var display *lcdproc.Server
	if cfg.Display.Enabled {
		display = lcdproc.NewServer(cfg.GetDisplayAddr(), store, logger.Named("lcdproc"))
		if err := display.Start(); err != nil {
			logger.Error("failed to start display server", zap.Error(err))
			display = nil
		} else {
			defer display.Stop()
		}
	}

	// One tail reader per monitored log stream.
	sources := overlayMgr.LogSources()
	for _, src := range sources {
		reader := tail.NewReader(
			tail.Source{Name: src.Name, Producer: src.Producer, Dir: src.Dir, FileRoot: src.FileRoot},
			store,
			targetsFor(src.Producer),
			hub,
			live,
			logger.Named("tail"),
		)
		reader.SetPoll(cfg.PollInterval())
		reader.SetDays(cfg.Monitoring.BackfillDays)
		go reader.Run(ctx)
	}
	logger.Info("log monitoring started", zap.Int("sources", len(sources)))

	// HTTP layer.
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || path == "/api/status" || path == "/ws"
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/ws"
		},
	}))
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
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	h := api.NewHandler(api.Dependencies{
		Store:   store,
		Hub:     hub,
		Live:    live,
		Overlay: overlayMgr,
		Display: display,
		Config:  cfg,
		Version: Version,
		Logger:  logger.Named("api"),
	})
	ws := api.NewWebSocketHandler(hub, logger.Named("ws"))
	api.RegisterRoutes(e, h, ws)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(*configPath, cfg, len(sources))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}()

	if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// buildLogger constructs the zap logger from the configured level.
func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

// targetsFor maps a log producer to the facts backfill must recover for it.
func targetsFor(producer models.Producer) func() *backfill.Targets {
	switch producer {
	case models.ProducerMMDVMHost:
		return backfill.HostTargets
	case models.ProducerDMRGateway:
		// DMRGateway network names come from its log lines (master names),
		// so an exhausted scan has no fixed link to mark unknown.
		return func() *backfill.Targets { return backfill.GatewayTargets("") }
	case models.ProducerYSFGateway:
		return func() *backfill.Targets { return backfill.GatewayTargets("YSF") }
	case models.ProducerP25Gateway:
		return func() *backfill.Targets { return backfill.GatewayTargets("P25") }
	case models.ProducerNXDNGateway:
		return func() *backfill.Targets { return backfill.GatewayTargets("NXDN") }
	default:
		return nil
	}
}

// refreshOverlay keeps the enablement overlay current: process checks every
// tick, INI re-reads once a minute.
func refreshOverlay(ctx context.Context, mgr *config.Manager, store *state.Store, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastReload := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(lastReload) >= time.Minute {
				mgr.Reload()
				lastReload = time.Now()
			}
			store.SetOverlay(mgr.Overlay())
		}
	}
}

func printBanner(configPath string, cfg *config.AppConfig, sources int) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           MMDVM Dashboard Server                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:     %-45s║\n", configPath)
	fmt.Printf("║  Listen:     http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Log files:  %-45d║\n", sources)
	if cfg.Display.Enabled {
		fmt.Printf("║  LCDproc:    %-45s║\n", cfg.GetDisplayAddr())
	}
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
