// ============================================================================
// Mission Planner CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree for running and inspecting the planner
//
// Command Structure:
//   planner                        # Root command
//   ├── serve                      # Start HTTP API, gRPC health and metrics
//   ├── assess --mission <id>      # Print a resource allocation assessment
//   ├── status                     # Configuration summary and mission counts
//   ├── --config, -c               # Config file (default: configs/planner.yaml)
//   └── --version
//
// Configuration:
//   YAML file plus an optional .env file; PLANNER_* environment variables
//   override the file (see config.go).
//
// serve Command:
//   1. Load config and open the mission store
//   2. Connect the Redis event publisher (if configured)
//   3. Start HTTP, gRPC health and metrics servers under one errgroup
//   4. On SIGINT/SIGTERM: mark gRPC health NOT_SERVING, drain HTTP, stop
//
//   In-flight planning sessions live in memory and are lost on shutdown.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/mission-planner/internal/assessment"
	"github.com/ChuLiYu/mission-planner/internal/events"
	"github.com/ChuLiYu/mission-planner/internal/metrics"
	"github.com/ChuLiYu/mission-planner/internal/planning"
	"github.com/ChuLiYu/mission-planner/internal/server"
	"github.com/ChuLiYu/mission-planner/internal/store"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Mission planner: collaborative mission planning workflow engine",
		Long: `Mission planner drives missions through planning, approval,
execution and completion, gating approval on a resource readiness score.`,
		Version:      "1.0.0",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/planner.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildAssessCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// ============================================================================
// Backends
// ============================================================================

// missionBackend is what every store driver provides.
type missionBackend interface {
	planning.MissionStore
	assessment.UnitOracle
	ListByStatus(ctx context.Context, statuses ...types.MissionStatus) ([]*types.Mission, error)
}

// openStore opens the configured store driver. The returned close func is
// never nil.
func openStore(ctx context.Context, cfg *Config) (missionBackend, assessment.UnitOracle, func() error, error) {
	noop := func() error { return nil }

	var backend missionBackend
	closeFn := noop
	switch cfg.Store.Driver {
	case "memory":
		backend = store.NewMemoryStore()
	case "file":
		s, err := store.OpenFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, noop, err
		}
		backend = s
	case "mysql":
		db, err := store.OpenMySQL(cfg.Store.DSN)
		if err != nil {
			return nil, nil, noop, err
		}
		s := store.NewGormStore(db)
		if cfg.Store.Migrate {
			if err := s.Migrate(ctx); err != nil {
				return nil, nil, noop, fmt.Errorf("migrate: %w", err)
			}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, noop, err
		}
		backend, closeFn = s, sqlDB.Close
	default:
		return nil, nil, noop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var units assessment.UnitOracle = backend
	if cfg.Store.ActiveUnits != nil {
		units = store.StaticUnitOracle(*cfg.Store.ActiveUnits)
	}
	return backend, units, closeFn, nil
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the planner HTTP API, gRPC health service and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			slog.SetDefault(newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *Config) error {
	backend, units, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollectorWith(reg)

	engineCfg := planning.Config{
		Missions: backend,
		Units:    units,
		Metrics:  collector,
	}
	if cfg.Events.RedisURL != "" {
		pub, err := events.Dial(ctx, cfg.Events.RedisURL, cfg.Events.Stream, cfg.Events.MaxLen)
		if err != nil {
			return fmt.Errorf("failed to connect event stream: %w", err)
		}
		defer pub.Close()
		engineCfg.Publisher = pub
		slog.Info("Publishing planning events", "stream", pub.Stream())
	}

	engine, err := planning.NewEngine(engineCfg)
	if err != nil {
		return err
	}

	httpSrv := server.NewHTTPServer(cfg.Server.HTTPAddr, engine)
	grpcSrv, health := server.NewGRPCServer()
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddr, err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), reg)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP API listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("gRPC health service listening", "addr", grpcLis.Addr().String())
		if err := grpcSrv.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	if metricsSrv != nil {
		g.Go(func() error {
			slog.Info("Metrics server listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down planner", "active_sessions", engine.ActiveSessions())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		health.Shutdown()
		err := httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			err = errors.Join(err, metricsSrv.Shutdown(shutdownCtx))
		}
		grpcSrv.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Planner stopped")
	return nil
}

// ============================================================================
// assess
// ============================================================================

func buildAssessCommand() *cobra.Command {
	var missionID int64

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Print the resource allocation assessment of a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return assess(cmd.Context(), cmd.OutOrStdout(), cfg, types.MissionID(missionID))
		},
	}

	cmd.Flags().Int64VarP(&missionID, "mission", "m", 0, "mission id")
	cmd.MarkFlagRequired("mission")

	return cmd
}

func assess(ctx context.Context, w io.Writer, cfg *Config, id types.MissionID) error {
	backend, units, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	a, err := assessment.NewEngine(backend, units).Assess(ctx, id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show planner configuration status and mission counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showStatus(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func showStatus(ctx context.Context, w io.Writer, cfg *Config) error {
	backend, units, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║           Mission Planner Status                          ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  ├─ Config File:   %s\n", configFile)
	fmt.Fprintf(w, "  ├─ HTTP API:      %s\n", cfg.Server.HTTPAddr)
	fmt.Fprintf(w, "  ├─ gRPC Health:   %s\n", cfg.Server.GRPCAddr)
	fmt.Fprintf(w, "  └─ Store Driver:  %s\n", cfg.Store.Driver)
	fmt.Fprintln(w)

	all, err := backend.ListByStatus(ctx)
	if err != nil {
		return err
	}
	counts := make(map[types.MissionStatus]int)
	for _, m := range all {
		counts[m.Status]++
	}

	fmt.Fprintln(w, "Missions:")
	fmt.Fprintf(w, "  ├─ Total:         %d\n", len(all))
	for _, st := range types.MissionStatuses() {
		fmt.Fprintf(w, "  ├─ %-13s  %d\n", string(st)+":", counts[st])
	}
	active, err := units.ActiveUnitCount(ctx)
	if err != nil {
		fmt.Fprintf(w, "  └─ Active Units:  unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "  └─ Active Units:  %d\n", active)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events:")
	if cfg.Events.RedisURL != "" {
		stream := cfg.Events.Stream
		if stream == "" {
			stream = events.DefaultStream
		}
		fmt.Fprintf(w, "  └─ Redis stream %s\n", stream)
	} else {
		fmt.Fprintln(w, "  └─ Disabled")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "  └─ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(w, "  └─ Disabled")
	}
	return nil
}
