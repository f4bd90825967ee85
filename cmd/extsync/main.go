package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	agentapi "github.com/iudanet/extsync/internal/agent/api"
	"github.com/iudanet/extsync/internal/agent/cli"
	"github.com/iudanet/extsync/internal/agent/iocli"
	"github.com/iudanet/extsync/internal/analyzer"
	"github.com/iudanet/extsync/internal/config"
	"github.com/iudanet/extsync/internal/merge"
	"github.com/iudanet/extsync/internal/orchestrator"
	"github.com/iudanet/extsync/internal/queue"
	"github.com/iudanet/extsync/internal/registry"
	"github.com/iudanet/extsync/internal/resolve"
	"github.com/iudanet/extsync/internal/storage"
	"github.com/iudanet/extsync/internal/storage/boltdb"
	"github.com/iudanet/extsync/internal/transport"
	"github.com/iudanet/extsync/internal/transport/cloud"
	"github.com/iudanet/extsync/internal/transport/deferred"
	"github.com/iudanet/extsync/internal/transport/local"
	"github.com/iudanet/extsync/internal/transport/native"
	"github.com/iudanet/extsync/internal/transport/peer"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to config file")
	serverURL := flag.String("server", "", "Relay server URL (overrides config)")
	dbPath := flag.String("db", "", "Path to local database (overrides config)")
	browserContext := flag.String("context", "desktop", "Browser context label for snapshots")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	stdio := iocli.NewStdio()

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		os.Exit(1)
	}

	if err := run(args, *configPath, *serverURL, *dbPath, *browserContext, stdio); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, configPath, serverURL, dbPath, browserContext string, stdio iocli.IO) error {
	cfg, err := config.LoadAgent(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx := context.Background()

	kv, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	deviceID, err := cli.EnsureDeviceID(ctx, kv)
	if err != nil {
		return err
	}

	reg := registry.NewStore(kv, deviceID)
	q := queue.New(kv, cfg.Sync.RetryCeiling, logger)
	reports := analyzer.NewService(analyzer.New(logger, nil), kv, logger)

	providers, closeProviders, deferredProvider, cloudProvider, err := buildProviders(cfg, kv, deviceID, logger)
	if err != nil {
		return err
	}
	defer closeProviders()

	orch := orchestrator.New(deviceID, browserContext, orchestrator.Settings{
		Enabled:      cfg.Sync.Enabled,
		Interval:     cfg.Sync.Interval.Std(),
		RetryCeiling: cfg.Sync.RetryCeiling,
		Providers:    cfg.Sync.Providers,
	}, orchestrator.Deps{
		Logger:    logger,
		KV:        kv,
		Queue:     q,
		Merger:    merge.NewMerger(logger),
		Resolver:  resolve.NewResolver(logger, deviceID),
		Reports:   reports,
		Registry:  reg,
		Providers: providers,
	})
	if err := orch.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize sync engine: %w", err)
	}

	apiClient := agentapi.NewClient(cfg.ServerURL)
	app := cli.New(stdio, apiClient, kv, reg, orch, reports, q)

	switch args[0] {
	case "register":
		return app.Register(ctx)
	case "login":
		return app.Login(ctx)
	case "status":
		return app.Status(ctx)
	case "sync":
		return app.Sync(ctx)
	case "install":
		if len(args) < 3 {
			return fmt.Errorf("usage: extsync install <id> <version>")
		}
		return app.Install(ctx, args[1], args[2])
	case "enable":
		if len(args) < 2 {
			return fmt.Errorf("usage: extsync enable <id>")
		}
		return app.Enable(ctx, args[1])
	case "disable":
		if len(args) < 2 {
			return fmt.Errorf("usage: extsync disable <id>")
		}
		return app.Disable(ctx, args[1])
	case "set":
		if len(args) < 4 {
			return fmt.Errorf("usage: extsync set <id> <key> <value>")
		}
		return app.Set(ctx, args[1], args[2], args[3])
	case "pref":
		if len(args) < 3 {
			return fmt.Errorf("usage: extsync pref <key> <value>")
		}
		return app.SetPreference(ctx, args[1], args[2])
	case "conflicts":
		return app.Conflicts(ctx)
	case "resolve":
		if len(args) < 3 {
			return fmt.Errorf("usage: extsync resolve <id> <note>")
		}
		return app.Resolve(ctx, args[1], args[2])
	case "daemon":
		return runDaemon(ctx, orch, deferredProvider, cloudProvider, cfg, logger)
	default:
		cli.PrintUsage(stdio)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runDaemon drives the scheduled sync loop until SIGINT/SIGTERM.
func runDaemon(ctx context.Context, orch *orchestrator.Orchestrator,
	deferredProvider *deferred.Provider, cloudProvider *cloud.Provider,
	cfg config.Agent, logger *slog.Logger,
) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Deferred tasks flush through the relay in the background.
	if deferredProvider != nil && cloudProvider != nil {
		runner := deferred.NewRunner(deferredProvider, cloudProvider, cfg.Sync.Interval.Std(), logger)
		go runner.Run(ctx)
	}

	logger.Info("Sync daemon started",
		"interval", cfg.Sync.Interval.Std(), "providers", cfg.Sync.Providers)

	orch.Run(ctx)

	shutdownCtx := context.Background()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Sync daemon stopped")
	return nil
}

// buildProviders constructs the transports enabled in the config.
func buildProviders(cfg config.Agent, kv storage.KV, deviceID string, logger *slog.Logger,
) (providers []transport.Provider, closeAll func(), deferredProvider *deferred.Provider, cloudProvider *cloud.Provider, err error) {
	var closers []func() error
	closeAll = func() {
		for _, c := range closers {
			if cerr := c(); cerr != nil {
				logger.Error("failed to close transport", "error", cerr)
			}
		}
	}

	for _, name := range cfg.Sync.Providers {
		switch name {
		case transport.NameLocalBroadcast:
			providers = append(providers, local.NewProvider(local.NewHub(), deviceID))
		case transport.NameCloudDocument:
			cloudProvider = cloud.NewProvider(cfg.ServerURL, cli.NewStoredToken(kv))
			providers = append(providers, cloudProvider)
		case transport.NameNativeStorage:
			p, nerr := native.New(cfg.NativePath, deviceID)
			if nerr != nil {
				closeAll()
				return nil, nil, nil, nil, fmt.Errorf("failed to open native channel: %w", nerr)
			}
			closers = append(closers, p.Close)
			providers = append(providers, p)
		case transport.NamePeerChannel:
			p, perr := peer.New(cfg.PeerListen, cfg.PeerBroadcast, deviceID, logger)
			if perr != nil {
				closeAll()
				return nil, nil, nil, nil, fmt.Errorf("failed to open peer channel: %w", perr)
			}
			closers = append(closers, p.Close)
			providers = append(providers, p)
		case transport.NameDeferredTask:
			deferredProvider = deferred.New(kv, logger)
			providers = append(providers, deferredProvider)
		}
	}

	return providers, closeAll, deferredProvider, cloudProvider, nil
}

func printVersion() {
	fmt.Printf("extsync agent\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
