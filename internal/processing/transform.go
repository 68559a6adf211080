// Package processing holds display-side frame transforms. Nothing here runs
// before encoding; stored frames are always the raw sensor grid.
package processing

import (
	"fmt"

	"thermal-relay-go/internal/types"
)

// FlipLR mirrors each row, matching the sensor's camera-facing orientation.
func FlipLR(frame types.Frame) types.Frame {
	out := types.Frame{Rows: frame.Rows, Cols: frame.Cols, Values: make([]float64, len(frame.Values))}
	for r := 0; r < frame.Rows; r++ {
		row := frame.Values[r*frame.Cols : (r+1)*frame.Cols]
		dst := out.Values[r*frame.Cols : (r+1)*frame.Cols]
		for c := range row {
			dst[frame.Cols-1-c] = row[c]
		}
	}
	return out
}

// Zoom upscales by an integer factor. With smooth set, cells are bilinearly
// interpolated between source centres; otherwise each cell becomes a block.
func Zoom(frame types.Frame, factor int, smooth bool) (types.Frame, error) {
	if factor < 1 {
		return types.Frame{}, fmt.Errorf("zoom factor %d must be >= 1", factor)
	}
	if err := frame.Validate(); err != nil {
		return types.Frame{}, err
	}
	if factor == 1 {
		values := make([]float64, len(frame.Values))
		copy(values, frame.Values)
		return types.Frame{Rows: frame.Rows, Cols: frame.Cols, Values: values}, nil
	}

	rows, cols := frame.Rows*factor, frame.Cols*factor
	out := types.Frame{Rows: rows, Cols: cols, Values: make([]float64, rows*cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var v float64
			if smooth {
				v = bilinear(frame, sourceCoord(r, factor, frame.Rows), sourceCoord(c, factor, frame.Cols))
			} else {
				v = frame.At(r/factor, c/factor)
			}
			out.Values[r*cols+c] = v
		}
	}
	return out, nil
}

func sourceCoord(i, factor, n int) float64 {
	x := (float64(i)+0.5)/float64(factor) - 0.5
	if x < 0 {
		return 0
	}
	if hi := float64(n - 1); x > hi {
		return hi
	}
	return x
}

func bilinear(frame types.Frame, y, x float64) float64 {
	r0, c0 := int(y), int(x)
	r1, c1 := r0, c0
	if r0+1 < frame.Rows {
		r1 = r0 + 1
	}
	if c0+1 < frame.Cols {
		c1 = c0 + 1
	}
	fy, fx := y-float64(r0), x-float64(c0)
	top := frame.At(r0, c0)*(1-fx) + frame.At(r0, c1)*fx
	bottom := frame.At(r1, c0)*(1-fx) + frame.At(r1, c1)*fx
	return top*(1-fy) + bottom*fy
}
