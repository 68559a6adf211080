package types

import (
	"reflect"
	"testing"
)

func TestFrameGridRoundTrip(t *testing.T) {
	grid := [][]float64{{1, 2, 3}, {4, 5, 6}}
	frame, err := FrameFromGrid(grid)
	if err != nil {
		t.Fatalf("FrameFromGrid: %v", err)
	}
	if frame.Rows != 2 || frame.Cols != 3 {
		t.Fatalf("unexpected shape %dx%d", frame.Rows, frame.Cols)
	}
	if !reflect.DeepEqual(frame.Values, []float64{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("values not row-major: %v", frame.Values)
	}
	if frame.At(1, 0) != 4 {
		t.Fatalf("At(1,0) = %v", frame.At(1, 0))
	}
	if !reflect.DeepEqual(frame.Grid(), grid) {
		t.Fatalf("grid mismatch: %v", frame.Grid())
	}
}

func TestFrameValidate(t *testing.T) {
	if _, err := NewFrame(2, 2, []float64{1, 2, 3}); err == nil {
		t.Fatalf("expected error for partial frame")
	}
	if _, err := NewFrame(0, 2, nil); err == nil {
		t.Fatalf("expected error for empty shape")
	}
	if _, err := FrameFromGrid([][]float64{{1, 2}, {3}}); err == nil {
		t.Fatalf("expected error for ragged grid")
	}
	if _, err := FrameFromGrid(nil); err == nil {
		t.Fatalf("expected error for empty grid")
	}
}
