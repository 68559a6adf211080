// Package pipeline runs the producer side: read a frame, encode it, hand it
// to the store, repeat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"thermal-relay-go/internal/codec"
	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/metrics"
	"thermal-relay-go/internal/output"
	"thermal-relay-go/internal/sensor"
	"thermal-relay-go/internal/transport"
	"thermal-relay-go/internal/types"
	"thermal-relay-go/internal/wire"
)

// Inserter is the slice of transport.Transport the loop needs.
type Inserter interface {
	Insert(ctx context.Context, keyspace string, records []wire.Envelope) (transport.Result, error)
}

type Config struct {
	Keyspace string
	// Interval is the minimum spacing between iterations. Zero disables pacing.
	Interval time.Duration
	// ImageDir, when set, receives a PNG raster per frame.
	ImageDir       string
	PurgeArtifacts bool
	// Raster renders artifacts when the record encoder is not already a raster.
	Raster *codec.RasterEncoder
}

type Loop struct {
	source   sensor.FrameSource
	encoder  codec.Encoder
	inserter Inserter
	ids      IdentifierPolicy
	cfg      Config
	limiter  *rate.Limiter
	log      zerolog.Logger
	warnings logging.EveryN
}

func New(source sensor.FrameSource, encoder codec.Encoder, inserter Inserter, ids IdentifierPolicy, cfg Config) *Loop {
	if ids == nil {
		ids = NewCounterIdentifiers(0)
	}
	l := &Loop{
		source:   source,
		encoder:  encoder,
		inserter: inserter,
		ids:      ids,
		cfg:      cfg,
		log: logging.With().
			Str("component", "ingest").
			Str("producer_id", uuid.NewString()).
			Logger(),
		warnings: logging.EveryN{N: 50},
	}
	if cfg.Interval > 0 {
		l.limiter = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	}
	return l
}

// Run loops until ctx is cancelled, which returns nil. A ConnectionError or
// a non-transient sensor failure ends the loop with that error.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().
		Str("keyspace", l.cfg.Keyspace).
		Dur("interval", l.cfg.Interval).
		Str("image_dir", l.cfg.ImageDir).
		Msg("ingestion loop started")

	if l.limiter != nil {
		// Drain the initial burst so the first frame is followed by a full interval.
		l.limiter.Allow()
	}
	for {
		if ctx.Err() != nil {
			l.log.Info().Msg("ingestion loop stopped")
			return nil
		}
		if err := l.step(ctx); err != nil {
			if ctx.Err() != nil {
				l.log.Info().Msg("ingestion loop stopped")
				return nil
			}
			return err
		}
	}
}

func (l *Loop) step(ctx context.Context) error {
	frame, err := l.source.ReadFrame(ctx)
	if err != nil {
		if sensor.IsTransient(err) {
			metrics.SensorTransientFaults.Inc()
			l.log.Debug().Err(err).Msg("sensor read failed, retrying")
			return nil
		}
		return fmt.Errorf("read frame: %w", err)
	}
	metrics.FramesCaptured.Inc()

	id := l.ids.Peek()
	record, err := l.encoder.Encode(frame, id)
	if err != nil {
		var encErr *codec.EncodingError
		if !errors.As(err, &encErr) {
			return fmt.Errorf("encode frame: %w", err)
		}
		metrics.EncodeErrors.Inc()
		if l.warnings.Allow() {
			l.log.Warn().Err(err).Int64("identifier", id).Msg("frame skipped")
		}
		return l.pace(ctx)
	}

	artifact := l.writeArtifact(frame, record)

	env, err := wire.Wrap(record)
	if err != nil {
		return fmt.Errorf("wrap record %d: %w", id, err)
	}

	// A rejected identifier is not committed, so the next frame reuses it
	// and the counter sequence stays dense for the replay reader.
	res, err := l.inserter.Insert(ctx, l.cfg.Keyspace, []wire.Envelope{env})
	l.purge(artifact)
	switch {
	case err == nil && res.OK():
		l.ids.Commit(id)
		metrics.RecordsInserted.Inc()
		metrics.LastIdentifier.Set(float64(id))
		l.log.Debug().Int64("identifier", id).Int("bytes", len(env.Value)).Msg("record inserted")
	case err == nil:
		metrics.InsertApplicationErrors.Inc()
		l.log.Warn().Int64("identifier", id).Strs("errors", res.Errors).Msg("store rejected record")
	case transport.IsConnectionError(err):
		l.ids.Commit(id)
		l.log.Error().Err(err).Int64("identifier", id).Msg("store unreachable")
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		metrics.InsertApplicationErrors.Inc()
		l.log.Warn().Err(err).Int64("identifier", id).Msg("insert failed")
	}
	return l.pace(ctx)
}

func (l *Loop) pace(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

func (l *Loop) writeArtifact(frame types.Frame, record wire.EncodedRecord) string {
	if l.cfg.ImageDir == "" {
		return ""
	}
	png := record.Payload
	if record.Encoding != wire.EncodingPNG {
		if l.cfg.Raster == nil {
			return ""
		}
		rendered, err := l.cfg.Raster.Encode(frame, record.Identifier)
		if err != nil {
			l.log.Warn().Err(err).Int64("identifier", record.Identifier).Msg("artifact not rendered")
			return ""
		}
		png = rendered.Payload
	}
	path, err := output.WriteArtifact(l.cfg.ImageDir, record.Identifier, png)
	if err != nil {
		l.log.Warn().Err(err).Int64("identifier", record.Identifier).Msg("artifact not written")
		return ""
	}
	return path
}

func (l *Loop) purge(path string) {
	if path == "" || !l.cfg.PurgeArtifacts {
		return
	}
	if err := output.PurgeArtifact(path); err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("artifact not purged")
	}
}
