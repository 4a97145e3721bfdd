// Package main provides the chainhopd daemon: the cross-chain swap
// aggregator core behind a JSON-RPC API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainhop-exchange/chainhop/internal/config"
	"github.com/chainhop-exchange/chainhop/internal/encoder"
	"github.com/chainhop-exchange/chainhop/internal/evm"
	"github.com/chainhop-exchange/chainhop/internal/graph"
	"github.com/chainhop-exchange/chainhop/internal/quote"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
	"github.com/chainhop-exchange/chainhop/internal/rpc"
	"github.com/chainhop-exchange/chainhop/internal/storage"
	"github.com/chainhop-exchange/chainhop/internal/tracker"
	"github.com/chainhop-exchange/chainhop/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Config file path")
		listenAddr  = flag.String("api", "", "JSON-RPC API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("chainhopd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over config file
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log = logging.New(&logging.Config{
		Level:      cfg.LogLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.Builtin(cfg.Testnet())
	g := graph.Build(reg)
	builder := route.NewBuilder(reg, g, cfg.Routing.MaxHops)
	log.Info("Registry loaded", "network", cfg.Network, "chains", len(reg.Chains()), "bridge_edges", len(g.Edges()))

	pool := evm.NewPool(reg)
	for chainID, url := range cfg.RPCEndpoints {
		client, err := evm.Dial(ctx, url, chainID)
		if err != nil {
			log.Warn("Failed to connect chain RPC", "chain", chainID, "error", err)
			continue
		}
		pool.SetClient(registry.ChainID(chainID), client)
		log.Info("Chain RPC connected", "chain", chainID)
	}

	store, err := storage.New(&storage.Config{DataDir: cfg.DataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", cfg.DataDir)

	agg := quote.NewAggregator(reg, pool, cfg.Routing, log)
	enc := encoder.New(reg)

	track := tracker.New(reg, pool, store, log)
	go func() {
		if err := track.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Tracker stopped", "error", err)
		}
	}()

	rpcServer := rpc.NewServer(reg, builder, agg, enc, track, store, log)
	if err := rpcServer.Start(ctx, cfg.ListenAddr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	log.Infof("chainhopd %s ready", version)
	log.Infof("  API: http://%s", rpcServer.Addr())
	log.Infof("  WS:  ws://%s/ws", rpcServer.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()
	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}
