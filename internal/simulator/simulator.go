package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"thermal-relay-go/internal/sensor"
	"thermal-relay-go/internal/types"
)

type Config struct {
	Rows        int
	Cols        int
	RefreshRate float64 // frames per second; 0 reads without waiting
	FaultRate   float64 // probability that a read fails transiently
	Ambient     float64
	Peak        float64
	Seed        int64
}

// Sensor produces a warm blob drifting over an ambient background, with
// per-pixel noise and occasional transient faults.
type Sensor struct {
	cfg    Config
	mu     sync.Mutex
	rng    *rand.Rand
	ticker *time.Ticker
	frame  int
}

var _ sensor.FrameSource = (*Sensor)(nil)

func New(cfg Config) *Sensor {
	if cfg.Ambient == 0 && cfg.Peak == 0 {
		cfg.Ambient = 24
		cfg.Peak = 36
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Sensor{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
	if cfg.RefreshRate > 0 {
		s.ticker = time.NewTicker(time.Duration(float64(time.Second) / cfg.RefreshRate))
	}
	return s
}

func (s *Sensor) ReadFrame(ctx context.Context) (types.Frame, error) {
	if s.ticker != nil {
		select {
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		case <-s.ticker.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.FaultRate > 0 && s.rng.Float64() < s.cfg.FaultRate {
		return types.Frame{}, sensor.Transient("simulated frame checksum error")
	}

	rows, cols := s.cfg.Rows, s.cfg.Cols
	phase := float64(s.frame) / 40.0
	centerX := float64(cols)/2 + math.Cos(phase)*float64(cols)/4
	centerY := float64(rows)/2 + math.Sin(phase)*float64(rows)/4
	spread := float64(rows*cols) / 20

	values := make([]float64, rows*cols)
	for i := range values {
		dx := float64(i%cols) - centerX
		dy := float64(i/cols) - centerY
		heat := (s.cfg.Peak - s.cfg.Ambient) * math.Exp(-(dx*dx+dy*dy)/spread)
		values[i] = s.cfg.Ambient + heat + s.rng.NormFloat64()*0.15
	}
	s.frame++

	return types.Frame{Rows: rows, Cols: cols, Values: values}, nil
}

func (s *Sensor) Close() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
}
