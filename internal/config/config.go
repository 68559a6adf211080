package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"thermal-relay-go/internal/logging"
)

const (
	EnvPrefix         = "THERMAL_"
	ConfigPathEnvVar  = "THERMAL_CONFIG"
	DefaultConfigPath = "thermal.yaml"
)

type AppConfig struct {
	Sensor  SensorConfig  `koanf:"sensor"`
	Store   StoreConfig   `koanf:"store"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Replay  ReplayConfig  `koanf:"replay"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

type SensorConfig struct {
	// Source is simulator or zmq.
	Source      string        `koanf:"source" validate:"oneof=simulator zmq"`
	Endpoint    string        `koanf:"endpoint" validate:"required_if=Source zmq"`
	Rows        int           `koanf:"rows" validate:"min=1"`
	Cols        int           `koanf:"cols" validate:"min=1"`
	RefreshRate float64       `koanf:"refresh_rate" validate:"gt=0"`
	FaultRate   float64       `koanf:"fault_rate" validate:"gte=0,lt=1"`
	RecvTimeout time.Duration `koanf:"recv_timeout" validate:"gte=0"`
	Seed        int64         `koanf:"seed"`
}

type StoreConfig struct {
	Address     string        `koanf:"address" validate:"required"`
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Keyspace    string        `koanf:"keyspace" validate:"required"`
	Table       string        `koanf:"table" validate:"required"`
	Column      string        `koanf:"column" validate:"required"`
	CallTimeout time.Duration `koanf:"call_timeout" validate:"gte=0"`
	// IdentifierPolicy describes the identifiers stored in Keyspace. Producer
	// and replay processes must share it.
	IdentifierPolicy string `koanf:"identifier_policy" validate:"oneof=counter timestamp"`
}

func (s StoreConfig) Target() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

type IngestConfig struct {
	Encoding       string        `koanf:"encoding" validate:"oneof=text raster"`
	MinValue       float64       `koanf:"min_value"`
	MaxValue       float64       `koanf:"max_value"`
	Interval       time.Duration `koanf:"interval" validate:"gte=0"`
	StartID        int64         `koanf:"start_id" validate:"gte=0"`
	ImageDir       string        `koanf:"image_dir"`
	PurgeArtifacts bool          `koanf:"purge_artifacts"`
	JournalDir     string        `koanf:"journal_dir"`
}

type ReplayConfig struct {
	StartID      int64         `koanf:"start_id" validate:"gte=0"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	HTTPListen   string        `koanf:"http_listen"`
	FlipLR       bool          `koanf:"flip_lr"`
	Zoom         int           `koanf:"zoom" validate:"min=1,max=16"`
	Smooth       bool          `koanf:"smooth"`
	// AutoScale fits the colour scale per frame; otherwise ingest.min_value
	// and ingest.max_value are used.
	AutoScale bool `koanf:"auto_scale"`
	Headless  bool `koanf:"headless"`
	// LogFrames also logs frame stats while serving the live view.
	LogFrames bool `koanf:"log_frames"`
}

type ServerConfig struct {
	Listen        string `koanf:"listen" validate:"required"`
	MetricsListen string `koanf:"metrics_listen"`
	DataDir       string `koanf:"data_dir" validate:"required_without=InMemory"`
	InMemory      bool   `koanf:"in_memory"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

func (l LoggingConfig) Logging() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format, Caller: l.Caller, Output: os.Stderr}
}

func Default() AppConfig {
	return AppConfig{
		Sensor: SensorConfig{
			Source:      "simulator",
			Rows:        24,
			Cols:        32,
			RefreshRate: 4,
			FaultRate:   0.05,
			RecvTimeout: 2 * time.Second,
		},
		Store: StoreConfig{
			Address:     "localhost",
			Port:        50051,
			Keyspace:    "imageKeyspace",
			Table:       "imagedata",
			Column:      "identifier",
			CallTimeout: 5 * time.Second,

			IdentifierPolicy: "counter",
		},
		Ingest: IngestConfig{
			Encoding: "text",
			MinValue: 20,
			MaxValue: 40,
		},
		Replay: ReplayConfig{
			PollInterval: 100 * time.Millisecond,
			HTTPListen:   ":8090",
			Zoom:         1,
			AutoScale:    true,
		},
		Server: ServerConfig{
			Listen:        ":50051",
			MetricsListen: ":9102",
			DataDir:       "data/store",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load layers defaults, an optional YAML file and THERMAL_* environment
// variables, in that order. An empty path falls back to THERMAL_CONFIG and
// then thermal.yaml when it exists.
func Load(path string) (AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return AppConfig{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return AppConfig{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath
	}
	return ""
}

// envTransform maps THERMAL_STORE_CALL_TIMEOUT to store.call_timeout.
// Variables without a section are ignored.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return ""
	}
	return section + "." + rest
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sensor.Source == "zmq" && c.Sensor.RecvTimeout <= 0 {
		return fmt.Errorf("invalid config: sensor.recv_timeout must be positive for the zmq source")
	}
	if !(c.Ingest.MaxValue > c.Ingest.MinValue) {
		return fmt.Errorf("invalid config: ingest.max_value %v must exceed ingest.min_value %v", c.Ingest.MaxValue, c.Ingest.MinValue)
	}
	return nil
}

// ValidateReplay checks settings the replay reader depends on. Replay walks
// identifiers one by one, so store.identifier_policy must be counter. The
// reader cannot see which policy the producer used; it trusts the shared
// store section to describe the keyspace.
func (c AppConfig) ValidateReplay() error {
	if c.Store.IdentifierPolicy != "counter" {
		return fmt.Errorf("replay requires store.identifier_policy counter, got %q", c.Store.IdentifierPolicy)
	}
	return nil
}
