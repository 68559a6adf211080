package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/metrics"
	"thermal-relay-go/internal/output"
	"thermal-relay-go/internal/transport"
	"thermal-relay-go/internal/wire"
)

// Upload sends every PNG in dir as a raster record, in the order of
// output.ListImages. Unreadable files are skipped; a ConnectionError aborts
// the upload. Identifiers are committed only for stored images.
func Upload(ctx context.Context, dir string, inserter Inserter, keyspace string, ids IdentifierPolicy) (int, error) {
	files, err := output.ListImages(dir)
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}
	log := logging.With().Str("component", "upload").Str("dir", dir).Logger()

	sent := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("image skipped")
			continue
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("image skipped")
			continue
		}

		id := ids.Peek()
		env, err := wire.Wrap(wire.EncodedRecord{
			Identifier: id,
			Encoding:   wire.EncodingPNG,
			Rows:       cfg.Height,
			Cols:       cfg.Width,
			Payload:    data,
		})
		if err != nil {
			return sent, err
		}

		res, err := inserter.Insert(ctx, keyspace, []wire.Envelope{env})
		if err != nil {
			if transport.IsConnectionError(err) || ctx.Err() != nil {
				return sent, err
			}
			log.Warn().Err(err).Int64("identifier", id).Msg("insert failed")
			continue
		}
		if !res.OK() {
			metrics.InsertApplicationErrors.Inc()
			log.Warn().Int64("identifier", id).Strs("errors", res.Errors).Msg("store rejected image")
			continue
		}
		ids.Commit(id)
		metrics.RecordsInserted.Inc()
		sent++
		log.Info().Int64("identifier", id).Str("file", filepath.Base(path)).Msg("image sent")
	}
	return sent, nil
}
