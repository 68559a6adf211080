package sensor

import (
	"context"
	"errors"
	"testing"

	"thermal-relay-go/internal/types"
)

func TestTransientIsDetectable(t *testing.T) {
	err := Transient("checksum mismatch on page %d", 1)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if IsTransient(errors.New("i2c bus missing")) {
		t.Fatalf("plain error must not be transient")
	}
}

func TestShapedRejectsPartialFrames(t *testing.T) {
	frames := []types.Frame{
		{Rows: 2, Cols: 2, Values: []float64{1, 2, 3}},
		{Rows: 3, Cols: 2, Values: make([]float64, 6)},
		{Rows: 2, Cols: 2, Values: []float64{1, 2, 3, 4}},
	}
	i := 0
	src := Shaped(Func(func(context.Context) (types.Frame, error) {
		f := frames[i]
		i++
		return f, nil
	}), 2, 2)

	for n := 0; n < 2; n++ {
		if _, err := src.ReadFrame(context.Background()); !IsTransient(err) {
			t.Fatalf("read %d: expected transient error, got %v", n, err)
		}
	}
	frame, err := src.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame.Values) != 4 {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestShapedPassesFatalErrors(t *testing.T) {
	fatal := errors.New("device not found")
	src := Shaped(Func(func(context.Context) (types.Frame, error) {
		return types.Frame{}, fatal
	}), 24, 32)
	if _, err := src.ReadFrame(context.Background()); !errors.Is(err, fatal) || IsTransient(err) {
		t.Fatalf("expected fatal error passthrough, got %v", err)
	}
}
