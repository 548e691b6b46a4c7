// Command tequio is a local process supervisor: it reads a declarative
// task manifest, starts each task as a child process, coordinates
// start-up ordering through inter-task readiness, streams child output
// into a per-task pane, and cleans up every descendant process on exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tacoss/tequio/internal/metrics"
	"github.com/tacoss/tequio/internal/supervisor"
)

const defaultManifest = "tequio.ini"

func main() {
	os.Exit(run())
}

func run() int {
	var logLevel string
	var metricsAddr string

	root := &cobra.Command{
		Use:           "tequio [manifest]",
		Short:         "Supervise a manifest of dependent local tasks",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(logLevel)

			path := defaultManifest
			if len(args) == 1 {
				path = args[0]
			}

			return runSupervisor(cmd.Context(), path, metricsAddr)
		},
	}

	root.Flags().StringVar(&logLevel, "log-level", "info", "log verbosity: debug, info, warn, error")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runSupervisor(ctx context.Context, path, metricsAddr string) error {
	collector := metrics.NewPrometheusCollector("tequio")

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:    metricsAddr,
			Handler: promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	sup, err := supervisor.New(path, supervisor.WithMetrics(collector))
	if err != nil {
		return err
	}
	return sup.Run(ctx)
}

func configureLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
