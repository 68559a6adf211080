package types

import "fmt"

// Frame is one complete row-major grid of sensor readings.
type Frame struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Values []float64 `json:"values"`
}

func NewFrame(rows, cols int, values []float64) (Frame, error) {
	f := Frame{Rows: rows, Cols: cols, Values: values}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate rejects grids that are not fully populated.
func (f Frame) Validate() error {
	if f.Rows < 1 || f.Cols < 1 {
		return fmt.Errorf("invalid frame shape %dx%d", f.Rows, f.Cols)
	}
	if len(f.Values) != f.Rows*f.Cols {
		return fmt.Errorf("frame has %d cells, want %dx%d=%d", len(f.Values), f.Rows, f.Cols, f.Rows*f.Cols)
	}
	return nil
}

func (f Frame) At(row, col int) float64 {
	return f.Values[row*f.Cols+col]
}

// Grid returns a copy of the frame as rows of columns.
func (f Frame) Grid() [][]float64 {
	out := make([][]float64, f.Rows)
	for r := 0; r < f.Rows; r++ {
		row := make([]float64, f.Cols)
		copy(row, f.Values[r*f.Cols:(r+1)*f.Cols])
		out[r] = row
	}
	return out
}

// FrameFromGrid flattens rows in row-major order. Ragged grids are rejected.
func FrameFromGrid(grid [][]float64) (Frame, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return Frame{}, fmt.Errorf("empty grid")
	}
	cols := len(grid[0])
	values := make([]float64, 0, len(grid)*cols)
	for r, row := range grid {
		if len(row) != cols {
			return Frame{}, fmt.Errorf("row %d has %d cells, want %d", r, len(row), cols)
		}
		values = append(values, row...)
	}
	return Frame{Rows: len(grid), Cols: cols, Values: values}, nil
}

// Scale is the colour mapping range handed to a renderer.
type Scale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
