package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"thermal-relay-go/internal/codec"
	"thermal-relay-go/internal/config"
	"thermal-relay-go/internal/ingest"
	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/output"
	"thermal-relay-go/internal/pipeline"
	"thermal-relay-go/internal/sensor"
	"thermal-relay-go/internal/simulator"
	"thermal-relay-go/internal/storerpc"
	"thermal-relay-go/internal/transport"
)

const usage = `usage: thermal-ingest <command> [flags]

commands:
  run              capture frames and insert them into the store
  deleteall        drop the configured table
  upload [dir]     send every .png in dir (default: -image-dir)
`

func main() {
	os.Exit(mainCode())
}

func mainCode() int {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	command := os.Args[1]
	switch command {
	case "run", "deleteall", "upload":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	fs := flag.NewFlagSet("thermal-ingest "+command, flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "YAML config file (default $THERMAL_CONFIG or thermal.yaml)")
		address    = fs.String("address", "", "Store address")
		port       = fs.Int("port", 0, "Store port")
		imageDir   = fs.String("image-dir", "", "Local image folder")
		encoding   = fs.String("encoding", "", "Record encoding: text or raster")
		source     = fs.String("source", "", "Frame source: simulator or zmq")
		endpoint   = fs.String("endpoint", "", "ZMQ endpoint of the sensor bridge")
		interval   = fs.Duration("interval", 0, "Minimum delay between frames")
		purge      = fs.Bool("purge", false, "Delete local images after sending")
		journalDir = fs.String("journal-dir", "", "Write every sent envelope to a journal in this directory")
	)
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address":
			cfg.Store.Address = *address
		case "port":
			cfg.Store.Port = *port
		case "image-dir":
			cfg.Ingest.ImageDir = *imageDir
		case "encoding":
			cfg.Ingest.Encoding = *encoding
		case "source":
			cfg.Sensor.Source = *source
		case "endpoint":
			cfg.Sensor.Endpoint = *endpoint
		case "interval":
			cfg.Ingest.Interval = *interval
		case "purge":
			cfg.Ingest.PurgeArtifacts = *purge
		case "journal-dir":
			cfg.Ingest.JournalDir = *journalDir
		}
	})
	if err := cfg.Validate(); err != nil {
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

	opts := []transport.Option{transport.WithCallTimeout(cfg.Store.CallTimeout)}
	if cfg.Ingest.JournalDir != "" {
		journal, err := output.NewRawLogWriter(cfg.Ingest.JournalDir, "journal")
		if err != nil {
			logging.Error().Err(err).Msg("open journal")
			return 1
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logging.Warn().Err(err).Msg("journal close failed")
			}
		}()
		logging.Info().Str("path", journal.Path()).Msg("journal enabled")
		opts = append(opts, transport.WithJournal(journal))
	}
	tr := transport.New(storerpc.NewStoreClient(conn), opts...)

	switch command {
	case "run":
		err = run(ctx, cfg, tr)
	case "deleteall":
		err = deleteAll(ctx, cfg, tr)
	case "upload":
		dir := cfg.Ingest.ImageDir
		if fs.NArg() > 0 {
			dir = fs.Arg(0)
		}
		err = upload(ctx, cfg, tr, dir)
	}

	if err != nil {
		if transport.IsConnectionError(err) {
			logging.Error().Err(err).Str("target", cfg.Store.Target()).Msg("cannot reach store, exiting")
		} else {
			logging.Error().Err(err).Msg(command + " failed")
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.AppConfig, tr *transport.Transport) error {
	src, closeSource, err := openSource(cfg.Sensor)
	if err != nil {
		return err
	}
	defer closeSource()

	encoder, err := codec.New(cfg.Ingest.Encoding, cfg.Ingest.MinValue, cfg.Ingest.MaxValue)
	if err != nil {
		return err
	}
	ids, err := pipeline.NewIdentifierPolicy(cfg.Store.IdentifierPolicy, cfg.Ingest.StartID)
	if err != nil {
		return err
	}

	pcfg := pipeline.Config{
		Keyspace:       cfg.Store.Keyspace,
		Interval:       cfg.Ingest.Interval,
		ImageDir:       cfg.Ingest.ImageDir,
		PurgeArtifacts: cfg.Ingest.PurgeArtifacts,
	}
	if cfg.Ingest.ImageDir != "" {
		raster, err := codec.NewRasterEncoder(cfg.Ingest.MinValue, cfg.Ingest.MaxValue)
		if err != nil {
			return err
		}
		pcfg.Raster = &raster
	}

	loop := pipeline.New(sensor.Shaped(src, cfg.Sensor.Rows, cfg.Sensor.Cols), encoder, tr, ids, pcfg)
	return loop.Run(ctx)
}

func openSource(cfg config.SensorConfig) (sensor.FrameSource, func(), error) {
	switch cfg.Source {
	case "zmq":
		src, err := ingest.Dial(cfg.Endpoint, cfg.RecvTimeout)
		if err != nil {
			return nil, nil, err
		}
		logging.Info().Str("endpoint", cfg.Endpoint).Msg("reading frames from sensor bridge")
		return src, func() { _ = src.Close() }, nil
	default:
		sim := simulator.New(simulator.Config{
			Rows:        cfg.Rows,
			Cols:        cfg.Cols,
			RefreshRate: cfg.RefreshRate,
			FaultRate:   cfg.FaultRate,
			Seed:        cfg.Seed,
		})
		logging.Info().Int("rows", cfg.Rows).Int("cols", cfg.Cols).Msg("reading frames from simulator")
		return sim, sim.Close, nil
	}
}

func deleteAll(ctx context.Context, cfg config.AppConfig, tr *transport.Transport) error {
	res, err := tr.DropTable(ctx, cfg.Store.Keyspace, cfg.Store.Table)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("drop table %s: %v", cfg.Store.Table, res.Errors)
	}
	logging.Info().Str("keyspace", cfg.Store.Keyspace).Str("table", cfg.Store.Table).Msg("table dropped")
	return nil
}

func upload(ctx context.Context, cfg config.AppConfig, tr *transport.Transport, dir string) error {
	if dir == "" {
		return errors.New("upload needs a folder: pass it as an argument or set -image-dir")
	}
	ids, err := pipeline.NewIdentifierPolicy(cfg.Store.IdentifierPolicy, cfg.Ingest.StartID)
	if err != nil {
		return err
	}
	sent, err := pipeline.Upload(ctx, dir, tr, cfg.Store.Keyspace, ids)
	logging.Info().Int("sent", sent).Str("dir", dir).Msg("upload finished")
	return err
}
