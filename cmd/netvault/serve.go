package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/darshan-rambhia/netvault/internal/alarms"
	"github.com/darshan-rambhia/netvault/internal/api"
	"github.com/darshan-rambhia/netvault/internal/auth"
	"github.com/darshan-rambhia/netvault/internal/collector"
	"github.com/darshan-rambhia/netvault/internal/config"
	"github.com/darshan-rambhia/netvault/internal/credentials"
	"github.com/darshan-rambhia/netvault/internal/metrics"
	"github.com/darshan-rambhia/netvault/internal/notify"
	"github.com/darshan-rambhia/netvault/internal/queue"
	"github.com/darshan-rambhia/netvault/internal/snmp"
	"github.com/darshan-rambhia/netvault/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and every background loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ver, sha, built, dirty := buildInfo()
	slog.Info("starting netvault",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
		"listen", cfg.Listen,
		"database", cfg.Database.Driver,
	)

	st, err := store.New(ctx, store.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	samples, err := st.ResolveMetricLayout(ctx)
	if err != nil {
		return fmt.Errorf("resolving metric layout: %w", err)
	}

	dec, err := credentials.NewAESDecrypter(cfg.Credentials.MasterKey)
	if err != nil {
		return fmt.Errorf("initializing credentials: %w", err)
	}
	secrets := credentials.NewProvider(st, dec)

	users, err := auth.NewUserAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("initializing user auth: %w", err)
	}
	workers, err := auth.NewWorkerAuthenticator(cfg.Auth.WorkerTokenHashes)
	if err != nil {
		return fmt.Errorf("initializing worker auth: %w", err)
	}

	dialer := snmp.NewDialer(snmp.Options{
		Timeout: cfg.SNMP.Timeout.Duration,
		Retries: cfg.SNMP.Retries,
		Port:    uint16(cfg.SNMP.Port),
	})
	pool := collector.NewWorkerPool(cfg.WorkerPoolSize)
	notifier := buildNotifier(cfg.Notifications)

	g, ctx := errgroup.WithContext(ctx)

	health := collector.NewHealthCollector(st, secrets, dialer, samples, pool, cfg.Intervals.Metrics.Duration)
	g.Go(func() error { return collector.Run(ctx, health) })

	engine := alarms.NewEngine(st, samples, secrets, dialer, notifier, pool, alarms.Config{
		Interval: cfg.Intervals.AlarmScan.Duration,
		CPU:      cfg.Thresholds.CPU,
		Memory:   cfg.Thresholds.Memory,
	})
	g.Go(func() error { return collector.Run(ctx, engine) })

	reaper := store.NewReaper(st, cfg.Queue.StaleThreshold.Duration, cfg.Intervals.Reaper.Duration)
	reaper.OnReap = func(res store.ReapResult) { metrics.RecordReaped(res.Pending, res.Running) }
	g.Go(func() error { return reaper.Run(ctx) })

	server := api.NewServer(cfg.Listen, api.Deps{
		Store:   st,
		Queue:   queue.NewService(st, secrets, cfg.Queue.ClaimBatchSize),
		Alarms:  alarms.NewService(st, notifier),
		Users:   users,
		Workers: workers,
	})
	g.Go(func() error { return server.Run(ctx) })

	slog.Info("all components started",
		"metric_layout", samples.Layout(),
		"notifications", len(notifier),
		"worker_pool_size", cfg.WorkerPoolSize,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("netvault stopped gracefully")
	return nil
}

// buildNotifier turns the configured targets into one fanout provider.
func buildNotifier(targets []config.NotificationConfig) notify.Fanout {
	var providers notify.Fanout
	for _, n := range targets {
		switch n.Type {
		case "ntfy":
			providers = append(providers, notify.NewNtfy(n.URL, n.Topic))
		case "webhook":
			method := n.Method
			if method == "" {
				method = "POST"
			}
			providers = append(providers, notify.NewWebhook(n.URL, method, n.Headers))
		}
	}
	return providers
}
