package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/internal/adapters"
	"github.com/netsentry/netsentry/internal/api"
	"github.com/netsentry/netsentry/internal/config"
	"github.com/netsentry/netsentry/internal/devices"
	"github.com/netsentry/netsentry/internal/events"
	"github.com/netsentry/netsentry/internal/logging"
	"github.com/netsentry/netsentry/internal/metrics"
	"github.com/netsentry/netsentry/internal/monitoring"
	"github.com/netsentry/netsentry/internal/pipeline"
	"github.com/netsentry/netsentry/internal/scans"
	"github.com/netsentry/netsentry/internal/scheduler"
	"github.com/netsentry/netsentry/internal/store"
	"github.com/netsentry/netsentry/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "netsentry",
	Short:   "NetSentry - home network security orchestration",
	Long:    `NetSentry aggregates local security tools (nmap, suricata, zeek, clamav and friends) into one alert pipeline, device inventory and API.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("NetSentry %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup; re-initialised from config below.
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "netsentry"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "netsentry"})

	log.Info().Str("version", Version).Msg("Starting NetSentry")

	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.Get()
	events.DroppedHook = m.RecordEventDropped
	pipeline.SuppressedHook = m.RecordAlertSuppressed
	scans.FinishedHook = m.RecordScanFinished
	websocket.ClientsHook = m.SetWebSocketClients

	bus := events.NewBus(0)
	bus.Subscribe(events.AlertCreated, func(_ context.Context, e events.Event) error {
		severity, _ := e.Data["severity"].(string)
		tool, _ := e.Data["source_tool"].(string)
		m.RecordAlertCreated(severity, tool)
		return nil
	})
	bus.Start()

	wsHub := websocket.NewHub()
	wsHub.BridgeEvents(bus)
	go wsHub.Run(ctx)

	registry := adapters.NewDefaultRegistry()
	available := registry.InitAll(ctx)
	for tool, ok := range available {
		m.SetToolHealthy(tool, ok)
	}

	dispatcher := pipeline.NewDispatcher(cfg.Dispatch)
	pipe := pipeline.New(st, bus, dispatcher, cfg.DedupWindow())

	deviceSvc := devices.NewService(st, bus)
	orchestrator := scans.New(st, registry, deviceSvc, bus, cfg.MaxConcurrentScans, cfg.ScanTimeout)

	monitor := monitoring.New(st, registry, bus,
		time.Duration(cfg.OfflineThresholdMinutes)*time.Minute)
	monitor.Start(ctx)
	defer monitor.Stop()

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(st, taskHandler(orchestrator, monitor, pipe), cfg.SchedulerTimezone)
		if err := sched.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to start scheduler")
		} else {
			defer sched.Stop()
		}
	}

	// Reload logging settings when the .env file changes.
	watcher, err := config.NewWatcher("", func() {
		if reloaded, err := config.Load(); err == nil {
			logging.Init(logging.Config{Format: reloaded.LogFormat, Level: reloaded.LogLevel, Component: "netsentry"})
			log.Info().Msg("Logging configuration reloaded")
		}
	})
	if err == nil {
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Config watcher failed to start")
		} else {
			defer watcher.Stop()
		}
	}

	router := api.NewRouter(cfg, st, registry, orchestrator, sched, pipe, bus, wsHub)
	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // scans run synchronously inside POST /api/scans
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr()).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	bus.PublishNowait(events.New(events.SystemStartup, "main", map[string]interface{}{
		"version": Version,
	}))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down")

	bus.PublishNowait(events.New(events.SystemShutdown, "main", nil))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	registry.ShutdownAll(shutdownCtx)
	cancel()
	bus.Stop()
	log.Info().Msg("Server stopped")
}

// taskHandler maps scheduled task types onto concrete services.
func taskHandler(orchestrator *scans.Orchestrator, monitor *monitoring.Monitor, pipe *pipeline.Pipeline) scheduler.TaskFunc {
	return func(ctx context.Context, taskType string, params map[string]interface{}) {
		switch taskType {
		case "network_scan":
			target, _ := params["target"].(string)
			tool, _ := params["tool"].(string)
			if tool == "" {
				tool = "nmap"
			}
			scanType, _ := params["scanType"].(string)
			if scanType == "" {
				scanType = scans.TypeNetwork
			}
			if _, err := orchestrator.Create(ctx, scanType, tool, target, params); err != nil {
				log.Error().Err(err).Str("target", target).Msg("Scheduled scan failed")
			}

		case "device_sweep":
			if _, err := monitor.CheckDeviceAvailability(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled device sweep failed")
			}

		case "health_check":
			monitor.CheckToolHealth(ctx)

		case "pipeline_cleanup":
			pipe.Cleanup()

		default:
			log.Warn().Str("taskType", taskType).Msg("Unknown scheduled task type")
		}
	}
}
