package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wardenlabs/hostwarden/internal/cache"
	"github.com/wardenlabs/hostwarden/internal/config"
	"github.com/wardenlabs/hostwarden/internal/event"
	"github.com/wardenlabs/hostwarden/internal/inventory"
	"github.com/wardenlabs/hostwarden/internal/ratelimit"
	"github.com/wardenlabs/hostwarden/internal/registry"
	"github.com/wardenlabs/hostwarden/internal/scan"
	"github.com/wardenlabs/hostwarden/internal/server"
	"github.com/wardenlabs/hostwarden/internal/version"
	"github.com/wardenlabs/hostwarden/internal/ws"
	"github.com/wardenlabs/hostwarden/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hostwarden %s (%s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("hostwarden starting", zap.String("version", version.Short()))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	// One limiter for the whole process; every scanner draws from it.
	limiter, err := ratelimit.New(cfg.Rate.TokensPerSecond, cfg.Rate.Burst)
	if err != nil {
		logger.Fatal("invalid rate limiter configuration", zap.Error(err))
	}

	cacheMgr := cache.NewManager(cache.Options{
		MaxEntries:      cfg.Cache.MaxEntries,
		CleanupInterval: cfg.Cache.CleanupInterval,
		StaleMultiplier: cfg.Cache.StaleMultiplier,
		TTLOverrides:    categoryTTLs(cfg.Cache.TTL),
		BackingPath:     cfg.Cache.BackingPath,
	}, logger)
	cacheMgr.Start()
	defer cacheMgr.Stop()

	reg := registry.New(buildSources(cfg.Registry), cfg.Registry.ReloadTTL, logger)
	count := reg.LoadAllSources(context.Background(), true)
	logger.Info("inventory loaded", zap.Int("hosts", count))

	var executor scan.RemoteExecutor
	if cfg.SSH.User != "" {
		executor, err = scan.NewSSHExecutor(scan.SSHOptions{
			User:           cfg.SSH.User,
			Password:       cfg.SSH.Password,
			PrivateKeyFile: cfg.SSH.PrivateKeyFile,
			Port:           cfg.SSH.Port,
			ConnectTimeout: cfg.Timeouts.Connect,
		})
		if err != nil {
			logger.Fatal("invalid SSH configuration", zap.Error(err))
		}
	} else {
		logger.Warn("no SSH user configured, scans will fail at inspection")
		executor = unconfiguredExecutor{}
	}

	prober := scan.NewTCPProber(cfg.Timeouts.Connect, cfg.Scan.ICMPAssist, logger)
	orchestrator := scan.NewOrchestrator(cacheMgr, limiter, prober, executor, nil, scan.Options{
		ManagementPort: cfg.Scan.ManagementPort,
		CommandTimeout: cfg.Timeouts.Command,
		GroupSize:      cfg.Batch.GroupSize,
		Retry: scan.RetryOptions{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
	}, logger)

	bus := event.NewBus(logger)
	wsHandler := ws.NewHandler(bus, logger.Named("ws"))

	ready := func(ctx context.Context) error {
		if reg.GetStats().TotalHosts == 0 && len(cfg.Registry.YAMLFiles) > 0 {
			return fmt.Errorf("inventory empty")
		}
		return nil
	}

	api := server.NewAPI(reg, orchestrator, cacheMgr, bus, logger.Named("api"))
	srv := server.New(server.Options{
		Addr: cfg.Server.Addr(),
		Limits: server.RateLimits{
			RequestsPerSecond: cfg.Server.RequestsPerSecond,
			Burst:             cfg.Server.RequestBurst,
		},
	}, api, logger.Named("http"), ready, wsHandler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("hostwarden stopped")
}

// buildSources assembles inventory sources in configuration order.
func buildSources(cfg config.RegistryConfig) []inventory.Source {
	var sources []inventory.Source
	for _, path := range cfg.YAMLFiles {
		sources = append(sources, inventory.NewYAMLSource(path))
	}
	if cfg.AnsibleFile != "" {
		sources = append(sources, inventory.NewAnsibleSource(cfg.AnsibleFile))
	}
	if cfg.SSHConfig != "" {
		sources = append(sources, inventory.NewSSHConfigSource(cfg.SSHConfig))
	}
	return sources
}

// categoryTTLs converts config keys to scan categories, dropping unknowns.
func categoryTTLs(raw map[string]time.Duration) map[models.ScanCategory]time.Duration {
	out := make(map[models.ScanCategory]time.Duration, len(raw))
	for name, ttl := range raw {
		cat := models.ScanCategory(name)
		if cat.Valid() {
			out[cat] = ttl
		}
	}
	return out
}

// unconfiguredExecutor rejects every command; it stands in when no SSH
// credentials are configured so the server can still validate and probe.
type unconfiguredExecutor struct{}

func (unconfiguredExecutor) Execute(context.Context, string, string, time.Duration) (*scan.ExecResult, error) {
	return nil, fmt.Errorf("ssh executor not configured")
}
