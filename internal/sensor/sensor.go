// Package sensor defines the frame source contract used by the ingestion loop.
package sensor

import (
	"context"
	"errors"
	"fmt"

	"thermal-relay-go/internal/types"
)

// ErrTransient marks a read that failed because of expected sensor noise.
// Callers retry immediately; any other error is fatal.
var ErrTransient = errors.New("transient sensor fault")

type FrameSource interface {
	ReadFrame(ctx context.Context) (types.Frame, error)
}

// Func adapts a plain function into a FrameSource.
type Func func(ctx context.Context) (types.Frame, error)

func (f Func) ReadFrame(ctx context.Context) (types.Frame, error) {
	return f(ctx)
}

func Transient(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Shaped checks every frame from src against the configured shape. A frame
// with the wrong cell count is reported as transient so the read is retried
// and a partial frame never leaves the source.
func Shaped(src FrameSource, rows, cols int) FrameSource {
	return Func(func(ctx context.Context) (types.Frame, error) {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			return types.Frame{}, err
		}
		if frame.Rows != rows || frame.Cols != cols {
			return types.Frame{}, Transient("frame shape %dx%d, want %dx%d", frame.Rows, frame.Cols, rows, cols)
		}
		if err := frame.Validate(); err != nil {
			return types.Frame{}, Transient("%v", err)
		}
		return frame, nil
	})
}
