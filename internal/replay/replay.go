// Package replay reconstructs the frame sequence from the store by polling
// identifiers in order. The store only answers point lookups, so the reader
// walks cursor+1, cursor+2, ... and waits on gaps instead of skipping them.
package replay

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"thermal-relay-go/internal/codec"
	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/metrics"
	"thermal-relay-go/internal/processing"
	"thermal-relay-go/internal/transport"
	"thermal-relay-go/internal/types"
	"thermal-relay-go/internal/wire"
)

type Renderer interface {
	Render(frame types.Frame, scale types.Scale)
}

type RenderFunc func(frame types.Frame, scale types.Scale)

func (f RenderFunc) Render(frame types.Frame, scale types.Scale) {
	f(frame, scale)
}

type Selector interface {
	Select(ctx context.Context, keyspace, table, column, constraint string) ([][]byte, error)
}

type Config struct {
	Keyspace string
	Table    string
	Column   string
	// Start is the cursor before the first poll; the first identifier
	// requested is Start+1.
	Start        int64
	PollInterval time.Duration
	// Scale pins the colour scale. Nil fits it to every frame.
	Scale  *types.Scale
	FlipLR bool
	Zoom   int
	Smooth bool
}

func (c *Config) applyDefaults() {
	if c.Table == "" {
		c.Table = wire.Table
	}
	if c.Column == "" {
		c.Column = wire.IdentifierColumn
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
}

type Reader struct {
	store    Selector
	renderer Renderer
	cfg      Config
	cursor   atomic.Int64
	log      zerolog.Logger
	waiting  logging.EveryN
}

func New(store Selector, renderer Renderer, cfg Config) *Reader {
	cfg.applyDefaults()
	r := &Reader{
		store:    store,
		renderer: renderer,
		cfg:      cfg,
		log:      logging.With().Str("component", "replay").Logger(),
		waiting:  logging.EveryN{N: 100},
	}
	r.cursor.Store(cfg.Start)
	metrics.ReplayCursor.Set(float64(cfg.Start))
	return r
}

// Cursor is the last identifier consumed.
func (r *Reader) Cursor() int64 {
	return r.cursor.Load()
}

// Run polls until ctx is cancelled (returns nil) or the store becomes
// unreachable (returns the ConnectionError).
func (r *Reader) Run(ctx context.Context) error {
	r.log.Info().
		Str("keyspace", r.cfg.Keyspace).
		Int64("start", r.cfg.Start).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("replay started")

	for {
		if ctx.Err() != nil {
			r.log.Info().Int64("cursor", r.Cursor()).Msg("replay stopped")
			return nil
		}
		advanced, err := r.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return err
		}
		if !advanced {
			sleep(ctx, r.cfg.PollInterval)
		}
	}
}

func (r *Reader) poll(ctx context.Context) (bool, error) {
	id := r.Cursor() + 1
	rows, err := r.store.Select(ctx, r.cfg.Keyspace, r.cfg.Table, r.cfg.Column, strconv.FormatInt(id, 10))
	if err != nil {
		if transport.IsConnectionError(err) {
			r.log.Error().Err(err).Int64("identifier", id).Msg("store unreachable")
			return false, err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		r.log.Warn().Err(err).Int64("identifier", id).Msg("select failed")
		return false, nil
	}
	if len(rows) == 0 {
		metrics.ReplayEmptyPolls.Inc()
		if r.waiting.Allow() {
			r.log.Debug().Int64("identifier", id).Msg("waiting for record")
		}
		return false, nil
	}

	// Duplicate identifiers come from a restarted producer; the newest wins.
	frame, err := decode(rows[len(rows)-1])
	r.cursor.Store(id)
	metrics.ReplayCursor.Set(float64(id))
	if err != nil {
		metrics.ReplayDecodeErrors.Inc()
		r.log.Warn().Err(err).Int64("identifier", id).Msg("record skipped")
		return true, nil
	}
	r.deliver(frame)
	metrics.ReplayFramesDelivered.Inc()
	return true, nil
}

func decode(raw []byte) (types.Frame, error) {
	record, err := wire.Unmarshal(raw)
	if err != nil {
		return types.Frame{}, err
	}
	return codec.Decode(record)
}

func (r *Reader) deliver(frame types.Frame) {
	if r.cfg.FlipLR {
		frame = processing.FlipLR(frame)
	}
	if r.cfg.Zoom > 1 {
		zoomed, err := processing.Zoom(frame, r.cfg.Zoom, r.cfg.Smooth)
		if err == nil {
			frame = zoomed
		}
	}
	var scale types.Scale
	if r.cfg.Scale != nil {
		scale = *r.cfg.Scale
	} else {
		scale, _ = processing.AutoScale(frame)
	}
	r.renderer.Render(frame, scale)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
