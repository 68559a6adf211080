package processing

import (
	"math"
	"strconv"

	"thermal-relay-go/internal/types"
)

type Stats struct {
	Min  float64
	Max  float64
	Mean float64
}

func FrameStats(frame types.Frame) Stats {
	if len(frame.Values) == 0 {
		return Stats{}
	}
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range frame.Values {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		sum += v
	}
	s.Mean = sum / float64(len(frame.Values))
	return s
}

// AutoScale fits the colour scale to the frame and returns three tick
// labels (min, middle, max) with one decimal. A flat frame gets a scale
// one degree wide so the renderer never divides by zero.
func AutoScale(frame types.Frame) (types.Scale, []string) {
	s := FrameStats(frame)
	scale := types.Scale{Min: s.Min, Max: s.Max}
	if !(scale.Max > scale.Min) {
		scale = types.Scale{Min: s.Min - 0.5, Max: s.Min + 0.5}
	}
	return scale, Ticks(scale)
}

func Ticks(scale types.Scale) []string {
	mid := (scale.Min + scale.Max) / 2
	ticks := make([]string, 0, 3)
	for _, v := range []float64{scale.Min, mid, scale.Max} {
		ticks = append(ticks, strconv.FormatFloat(v, 'f', 1, 64))
	}
	return ticks
}
