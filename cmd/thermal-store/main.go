package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"thermal-relay-go/internal/config"
	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/server"
	"thermal-relay-go/internal/store"
	"thermal-relay-go/internal/storerpc"
	"thermal-relay-go/internal/supervisor"
)

func main() {
	os.Exit(mainCode())
}

func mainCode() int {
	var (
		configPath    = flag.String("config", "", "YAML config file (default $THERMAL_CONFIG or thermal.yaml)")
		listen        = flag.String("listen", "", "gRPC listen address")
		dataDir       = flag.String("data-dir", "", "Badger data directory")
		inMemory      = flag.Bool("in-memory", false, "Keep everything in memory")
		metricsListen = flag.String("metrics-listen", "", "HTTP listen address for /metrics; empty disables it")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.Listen = *listen
		case "data-dir":
			cfg.Server.DataDir = *dataDir
		case "in-memory":
			cfg.Server.InMemory = *inMemory
		case "metrics-listen":
			cfg.Server.MetricsListen = *metricsListen
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	logging.Init(cfg.Logging.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(store.Options{Dir: cfg.Server.DataDir, InMemory: cfg.Server.InMemory})
	if err != nil {
		logging.Error().Err(err).Msg("open store")
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("store close failed")
		}
	}()

	grpcServer := grpc.NewServer()
	storerpc.RegisterStoreServer(grpcServer, st)

	tree := supervisor.New("thermal-store", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.Add("grpc", supervisor.GRPC(grpcServer, cfg.Server.Listen))
	if cfg.Server.MetricsListen != "" {
		tree.Add("metrics", func(ctx context.Context) error {
			return server.ServeMetrics(ctx, cfg.Server.MetricsListen)
		})
	}

	logging.Info().
		Str("listen", cfg.Server.Listen).
		Str("data_dir", cfg.Server.DataDir).
		Bool("in_memory", cfg.Server.InMemory).
		Msg("store serving")
	if err := tree.Serve(ctx); err != nil {
		logging.Error().Err(err).Msg("store failed")
		return 1
	}
	return 0
}
