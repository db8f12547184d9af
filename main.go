// ffwatcher/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ffwatcher/api"
	"ffwatcher/config"
	"ffwatcher/ffmpeg"
	"ffwatcher/gate"
	"ffwatcher/probe"
	"ffwatcher/task"
	"ffwatcher/watch"

	"github.com/spf13/cobra"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("invalid log level, defaulting to info", "level", s)
		return slog.LevelInfo
	}
}

func newRootCommand() *cobra.Command {
	var configPath, logLevel string

	cmd := &cobra.Command{
		Use:           "ffwatcher",
		Short:         "Watch directories and transcode incoming media files with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(logLevel)}))
			slog.SetDefault(log)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ffwatcher.yaml", "config file to use")
	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	cmd.AddCommand(newWritePresetsCommand())
	return cmd
}

func newWritePresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "write-presets <path>",
		Short: "Write an example config populated with the stock presets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExampleConfig(args[0]); err != nil {
				return err
			}
			slog.Info("wrote example config", "path", args[0])
			return nil
		},
	}
}

func run(ctx context.Context, configPath string) error {
	log := slog.Default()
	log.Info("starting ffwatcher")

	// 1. Load configuration. A broken config is fatal.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration %s: %w", configPath, err)
	}

	// 2. Initialize the collaborators (prober and runner first).
	prober, err := probe.New(cfg.FFprobeBin)
	if err != nil {
		return fmt.Errorf("initialize prober: %w", err)
	}
	runner, err := ffmpeg.NewRunner(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize ffmpeg runner: %w", err)
	}
	fileGate := gate.New(prober, cfg.StabilityPollInterval, cfg.StabilityWindow, cfg.StabilityTimeout, log)

	// 3. Scheduler and event dispatcher.
	sched := task.NewScheduler(cfg, fileGate, runner, log)
	dispatcher := watch.NewDispatcher(cfg, sched, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	// 4. Watch roots. Failure to set one up is fatal.
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start directory watcher: %w", err)
	}

	// 5. Optional status API.
	var srv *http.Server
	if cfg.Port != "" {
		srv = &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: api.SetupRouter(sched, cfg, log),
		}
		go func() {
			log.Info("status API listening", "port", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status API failed", "error", err)
				stop()
			}
		}()
	}

	// 6. Wait for the shutdown signal. In-flight encodes are not canceled
	// individually; process teardown takes care of stragglers.
	<-ctx.Done()
	stop()
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("status API forced to shut down", "error", err)
		}
	}

	// Workers notice the canceled context promptly; wait for them to wind
	// down before exiting.
	sched.Wait()
	log.Info("exited")
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("ffwatcher failed", "error", err)
		os.Exit(1)
	}
}
