// Package gwaycmd is the CLI entry point: flag/subcommand handling via
// cobra, process tuning (GOMAXPROCS/GOMEMLIMIT), logging setup, and the
// signal-driven graceful shutdown that feeds gwayhttp.Serve's ctx.
package gwaycmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/i18n-site/gway/certcache"
	"github.com/i18n-site/gway/config"
	"github.com/i18n-site/gway/connpool"
	"github.com/i18n-site/gway/gwayhttp"
	"github.com/i18n-site/gway/metrics"
	"github.com/i18n-site/gway/proxy"
)

// ExitCodeFailedStartup is returned from Main when the process never
// reaches the point of serving traffic — config errors, bind failures, and
// the like.
const ExitCodeFailedStartup = 1

// Main builds and executes the root cobra command, returning the process
// exit code. It is the sole export most callers need; see cmd/gway/main.go.
func Main() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		return ExitCodeFailedStartup
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gway",
		Short: "gway is a TLS-terminating HTTP/1.1, HTTP/2, and HTTP/3 reverse proxy",
		Long: `gway accepts HTTP/1.1, HTTP/2, and HTTP/3 traffic, selects a TLS
certificate per handshake by SNI, maps each request to an upstream pool by
its Host header, and forwards it over HTTP/1.1 with connection reuse and
bounded retry. Plaintext HTTP/1.1 requests for known hosts are redirected
to HTTPS; requests for unknown hosts get a 404.`,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		logFile    string
		metricsOn  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the proxy in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logFile, metricsOn)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "gway.toml", "Path to the TOML configuration file")
	cmd.Flags().StringVar(&logFile, "log", "", "Process log file (rotated via timberjack); empty logs JSON to stderr")
	cmd.Flags().BoolVar(&metricsOn, "metrics", false, "Expose Prometheus metrics on the address configured in [metrics]")
	return cmd
}

// run is the "gway run" subcommand body: load config, tune the process,
// wire the domain packages together, serve until a termination signal
// arrives, then drain.
func run(ctx context.Context, configPath, logFile string, metricsOn bool) error {
	log, err := newLogger(logFile)
	if err != nil {
		return fmt.Errorf("gwaycmd: building logger: %w", err)
	}
	defer log.Sync()

	// Match GOMAXPROCS to the container CPU quota and GOMEMLIMIT to the
	// container memory limit before doing anything else.
	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof))
	defer undoMaxProcs()
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	); err != nil {
		log.Warn("failed to set GOMEMLIMIT", zap.Error(err))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("gwaycmd: loading config: %w", err)
	}
	table, err := config.BuildTable(cfg)
	if err != nil {
		return fmt.Errorf("gwaycmd: building routing table: %w", err)
	}

	loader := certcache.DirLoader{Base: cfg.CertDir}
	cache := certcache.NewCache(loader, log.Named("certcache"))
	defer cache.Close()

	pool := connpool.New(0)
	defer pool.Close()
	pipeline := proxy.New(table, pool, log.Named("proxy"))

	if metricsOn {
		metrics.WirePool(pool)
		metrics.WireCache(cache)
		metrics.WirePipeline(pipeline)
		if cfg.Metrics.Listen != "" {
			go serveMetrics(cfg.Metrics.Listen, log)
		}
	}

	// ctrl-C, SIGTERM, and SIGHUP all trigger a graceful drain. SIGQUIT and
	// SIGUSR1 are intentionally not trapped: this proxy has no forced-stop
	// or config-reload concept to attach them to (see DESIGN.md).
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	log.Info("starting gway",
		zap.String("h1", cfg.Listen.H1),
		zap.String("h2", cfg.Listen.H2),
		zap.String("h3", cfg.Listen.H3),
	)

	addrs := gwayhttp.Addrs{H1: cfg.Listen.H1, H2: cfg.Listen.H2, H3: cfg.Listen.H3}
	if err := gwayhttp.Serve(sigCtx, addrs, table, cache, pipeline, log); err != nil {
		log.Error("gway exited with error", zap.Error(err))
		return err
	}
	log.Info("gway drained cleanly")
	return nil
}
