package replay

import (
	"github.com/rs/zerolog"

	"thermal-relay-go/internal/processing"
	"thermal-relay-go/internal/types"
)

// LogRenderer is the headless renderer: one log line of stats per frame.
type LogRenderer struct {
	Log zerolog.Logger
}

func (l LogRenderer) Render(frame types.Frame, scale types.Scale) {
	s := processing.FrameStats(frame)
	l.Log.Info().
		Int("rows", frame.Rows).
		Int("cols", frame.Cols).
		Float64("min", s.Min).
		Float64("max", s.Max).
		Float64("mean", s.Mean).
		Float64("scale_min", scale.Min).
		Float64("scale_max", scale.Max).
		Msg("frame")
}

// Fanout renders to every renderer in order.
type Fanout []Renderer

func (f Fanout) Render(frame types.Frame, scale types.Scale) {
	for _, r := range f {
		r.Render(frame, scale)
	}
}
