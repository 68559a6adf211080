package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"thermal-relay-go/internal/config"
	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/replay"
	"thermal-relay-go/internal/server"
	"thermal-relay-go/internal/storerpc"
	"thermal-relay-go/internal/supervisor"
	"thermal-relay-go/internal/transport"
	"thermal-relay-go/internal/types"
)

func main() {
	os.Exit(mainCode())
}

func mainCode() int {
	var (
		configPath = flag.String("config", "", "YAML config file (default $THERMAL_CONFIG or thermal.yaml)")
		address    = flag.String("address", "", "Store address")
		port       = flag.Int("port", 0, "Store port")
		start      = flag.Int64("start", 0, "Cursor to start from; the first frame read is start+1")
		listen     = flag.String("listen", "", "HTTP listen address for the live view")
		headless   = flag.Bool("headless", false, "Log frame stats instead of serving the live view")
		logFrames  = flag.Bool("log-frames", false, "Log frame stats alongside the live view")
		zoom       = flag.Int("zoom", 0, "Integer upscaling factor for display")
		flip       = flag.Bool("flip", false, "Mirror frames horizontally")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address":
			cfg.Store.Address = *address
		case "port":
			cfg.Store.Port = *port
		case "start":
			cfg.Replay.StartID = *start
		case "listen":
			cfg.Replay.HTTPListen = *listen
		case "headless":
			cfg.Replay.Headless = *headless
		case "log-frames":
			cfg.Replay.LogFrames = *logFrames
		case "zoom":
			cfg.Replay.Zoom = *zoom
		case "flip":
			cfg.Replay.FlipLR = *flip
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if err := cfg.ValidateReplay(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	logging.Init(cfg.Logging.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := storerpc.Dial(cfg.Store.Target())
	if err != nil {
		logging.Error().Err(err).Str("target", cfg.Store.Target()).Msg("store client")
		return 1
	}
	defer conn.Close()
	tr := transport.New(storerpc.NewStoreClient(conn), transport.WithCallTimeout(cfg.Store.CallTimeout))

	rcfg := replay.Config{
		Keyspace:     cfg.Store.Keyspace,
		Table:        cfg.Store.Table,
		Column:       cfg.Store.Column,
		Start:        cfg.Replay.StartID,
		PollInterval: cfg.Replay.PollInterval,
		FlipLR:       cfg.Replay.FlipLR,
		Zoom:         cfg.Replay.Zoom,
		Smooth:       cfg.Replay.Smooth,
	}
	if !cfg.Replay.AutoScale {
		rcfg.Scale = &types.Scale{Min: cfg.Ingest.MinValue, Max: cfg.Ingest.MaxValue}
	}

	tree := supervisor.New("thermal-replay", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	frameLog := replay.LogRenderer{Log: logging.With().Str("component", "render").Logger()}
	var reader *replay.Reader
	if cfg.Replay.Headless {
		reader = replay.New(tr, frameLog, rcfg)
	} else {
		srv := server.New(server.Options{
			Listen: cfg.Replay.HTTPListen,
			Config: map[string]any{
				"rows":     cfg.Sensor.Rows,
				"cols":     cfg.Sensor.Cols,
				"zoom":     cfg.Replay.Zoom,
				"keyspace": cfg.Store.Keyspace,
				"table":    cfg.Store.Table,
			},
			Status: func() map[string]any {
				return map[string]any{"cursor": reader.Cursor(), "store": cfg.Store.Target()}
			},
			Cursor: func() int64 { return reader.Cursor() },
		})
		var renderer replay.Renderer = srv
		if cfg.Replay.LogFrames {
			renderer = replay.Fanout{srv, frameLog}
		}
		reader = replay.New(tr, renderer, rcfg)
		tree.Add("http", srv.Serve)
	}
	tree.AddCritical("replay", reader.Run)

	if err := tree.Serve(ctx); err != nil {
		if transport.IsConnectionError(err) {
			logging.Error().Err(err).Str("target", cfg.Store.Target()).Msg("cannot reach store, exiting")
		} else {
			logging.Error().Err(err).Msg("replay failed")
		}
		return 1
	}
	logging.Info().Int64("cursor", reader.Cursor()).Msg("replay finished")
	return 0
}
