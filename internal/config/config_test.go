package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensor.Rows != 24 || cfg.Sensor.Cols != 32 {
		t.Fatalf("default shape %dx%d", cfg.Sensor.Rows, cfg.Sensor.Cols)
	}
	if cfg.Store.Target() != "localhost:50051" || cfg.Store.Keyspace != "imageKeyspace" {
		t.Fatalf("default store %+v", cfg.Store)
	}
	if err := cfg.ValidateReplay(); err != nil {
		t.Fatalf("ValidateReplay: %v", err)
	}
}

func TestFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thermal.yaml")
	yaml := strings.Join([]string{
		"store:",
		"  address: store.lab",
		"  port: 6000",
		"ingest:",
		"  encoding: raster",
		"  interval: 500ms",
		"  image_dir: /tmp/frames",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("THERMAL_STORE_PORT", "7000")
	t.Setenv("THERMAL_STORE_IDENTIFIER_POLICY", "timestamp")
	t.Setenv("THERMAL_STORE_CALL_TIMEOUT", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Target() != "store.lab:7000" {
		t.Fatalf("target %s", cfg.Store.Target())
	}
	if cfg.Store.CallTimeout != 250*time.Millisecond {
		t.Fatalf("call timeout %v", cfg.Store.CallTimeout)
	}
	if cfg.Ingest.Encoding != "raster" || cfg.Ingest.Interval != 500*time.Millisecond || cfg.Ingest.ImageDir != "/tmp/frames" {
		t.Fatalf("ingest %+v", cfg.Ingest)
	}
	if cfg.Store.IdentifierPolicy != "timestamp" {
		t.Fatalf("policy %q", cfg.Store.IdentifierPolicy)
	}
	if err := cfg.ValidateReplay(); err == nil {
		t.Fatalf("replay should reject the timestamp policy")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"encoding":  func(c *AppConfig) { c.Ingest.Encoding = "jpeg" },
		"range":     func(c *AppConfig) { c.Ingest.MaxValue = c.Ingest.MinValue },
		"rows":      func(c *AppConfig) { c.Sensor.Rows = 0 },
		"zmq":       func(c *AppConfig) { c.Sensor.Source = "zmq" },
		"policy":    func(c *AppConfig) { c.Store.IdentifierPolicy = "uuid" },
		"port":      func(c *AppConfig) { c.Store.Port = 70000 },
		"poll":      func(c *AppConfig) { c.Replay.PollInterval = 0 },
		"log level": func(c *AppConfig) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"THERMAL_STORE_CALL_TIMEOUT": "store.call_timeout",
		"THERMAL_SENSOR_ROWS":        "sensor.rows",
		"THERMAL_CONFIG":             "",
	}
	for in, want := range cases {
		if got := envTransform(in); got != want {
			t.Fatalf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestZMQSourceNeedsReceiveTimeout(t *testing.T) {
	cfg := Default()
	cfg.Sensor.Source = "zmq"
	cfg.Sensor.Endpoint = "tcp://127.0.0.1:5555"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Sensor.RecvTimeout = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "recv_timeout") {
		t.Fatalf("Validate returned %v, want recv_timeout error", err)
	}

	cfg.Sensor.Source = "simulator"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("simulator without receive timeout: %v", err)
	}
}
