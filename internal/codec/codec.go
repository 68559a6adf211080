// Package codec turns frames into wire records and back.
//
// Two strategies exist. TextEncoder writes every reading rounded to one
// decimal, joined by commas in row-major order; DecodeText reverses it.
// RasterEncoder maps readings linearly from [Min, Max] onto 8-bit gray
// levels and emits a PNG; it is one-way.
package codec

import (
	"errors"
	"fmt"

	"thermal-relay-go/internal/types"
	"thermal-relay-go/internal/wire"
)

// Encoder is the pluggable encoding strategy used by the ingestion loop.
type Encoder interface {
	Encode(frame types.Frame, identifier int64) (wire.EncodedRecord, error)
}

var ErrNoDecoder = errors.New("no decoder for encoding")

type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return "encode frame: " + e.Reason
}

type DecodeError struct {
	Identifier int64
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record %d: %v", e.Identifier, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode reconstructs the frame carried by a record.
func Decode(record wire.EncodedRecord) (types.Frame, error) {
	switch record.Encoding {
	case wire.EncodingText:
		frame, err := DecodeText(record.Payload, record.Rows, record.Cols)
		if err != nil {
			return types.Frame{}, &DecodeError{Identifier: record.Identifier, Err: err}
		}
		return frame, nil
	default:
		return types.Frame{}, &DecodeError{
			Identifier: record.Identifier,
			Err:        fmt.Errorf("%w %q", ErrNoDecoder, record.Encoding),
		}
	}
}

func New(kind string, minValue, maxValue float64) (Encoder, error) {
	switch kind {
	case "text", "":
		return TextEncoder{}, nil
	case "raster":
		return NewRasterEncoder(minValue, maxValue)
	default:
		return nil, fmt.Errorf("unknown encoding %q", kind)
	}
}
