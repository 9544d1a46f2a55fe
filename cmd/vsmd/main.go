// Command vsmd is the composition root for the VSM core: it wires the
// Event Store, Producer, Processor, Pattern Matcher, Analytics,
// Attention Engine, Coordinator and Broker Adapter behind a single
// Supervisor, in the required startup order. A single cobra root
// command runs the daemon; inject and the builtin version flag round
// out the CLI surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsm-systems/corevsm/internal/analytics"
	"github.com/vsm-systems/corevsm/internal/config"
	"github.com/vsm-systems/corevsm/internal/logging"
	"github.com/vsm-systems/corevsm/internal/metrics"
	"github.com/vsm-systems/corevsm/internal/supervisor"
)

// subsystemForChild maps a supervised child's name onto the VSM
// subsystem its restarts should be charged against: the store,
// producer, and processor do the core ingestion/transformation work
// (S1 Operations), the pattern matcher and coordinator anti-oscillate
// and arbitrate flows between them (S2 Coordination), and analytics is
// the forward-looking subsystem (S4 Intelligence). ok is false for a
// child with no natural subsystem affiliation.
func subsystemForChild(name string) (kind analytics.SubsystemKind, ok bool) {
	switch name {
	case "event_store", "producer", "processor", "broker_adapter":
		return analytics.SubsystemS1, true
	case "pattern_matcher", "coordinator":
		return analytics.SubsystemS2, true
	case "analytics":
		return analytics.SubsystemS4, true
	default:
		return "", false
	}
}

// Version, Commit and BuildTime are set via -ldflags at build time.
var (
	Version = "dev"
	Commit = "unknown"
	BuildTime = "unknown"
)

var (
	snapshotPath string
	metricsAddr string
	adminAddr string
	originNode string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vsmd:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use: "vsmd",
	Short: "vsmd runs the VSM event-processing core",
	Version: Version,
	Long: `vsmd hosts the Event Store, Producer, Processor, Pattern Matcher,
Analytics, Attention Engine, Coordinator and Broker Adapter as one
supervised process.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "snapshot-path", "",
		"bbolt file for stream snapshots (empty uses an in-memory store)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090",
		"address the Prometheus scrape endpoint listens on")
	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", ":8090",
		"address the direct-injection API listens on")
	rootCmd.PersistentFlags().StringVar(&originNode, "node-id", "vsmd-1",
		"this process's causality origin-node identifier")

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vsmd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(injectCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	registry := metrics.New()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core, err := wire(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("wire core: %w", err)
	}
	defer core.close()

	logger.Info("vsmd starting", logging.Strings("startup_order", supervisor.StartupOrder))

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: registry.Handler()}

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/inject", injectHandler(core.prod, logger))
	adminMux.Handle("/dashboard/ws", core.dashboard)
	adminSrv := &http.Server{Addr: adminAddr, Handler: adminMux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		_ = adminSrv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server exited", logging.Error(err))
		}
	}()
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("admin server exited", logging.Error(err))
		}
	}()

	sup := supervisor.New(core.children, func(name string, state supervisor.ChildState, err error) {
		if state == supervisor.ChildRestarting {
			registry.ComponentRestarts.WithLabelValues(name).Inc()
			if kind, ok := subsystemForChild(name); ok {
				core.an.RecordSubsystem(kind, analytics.OutcomeError, 0)
			}
		}
		fields := []logging.Field{logging.String("component", name), logging.String("state", string(state))}
		if err != nil {
			fields = append(fields, logging.Error(err))
		}
		logger.Info("lifecycle transition", fields...)
	})

	sup.Run(ctx)
	if sup.Escalated() {
		return fmt.Errorf("supervisor escalated: a child restarted too many times within the window")
	}
	return nil
}
