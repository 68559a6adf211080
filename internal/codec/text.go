package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"thermal-relay-go/internal/types"
	"thermal-relay-go/internal/wire"
)

const Delimiter = ","

type TextEncoder struct{}

func (TextEncoder) Encode(frame types.Frame, identifier int64) (wire.EncodedRecord, error) {
	if err := checkFrame(frame); err != nil {
		return wire.EncodedRecord{}, err
	}

	var b strings.Builder
	b.Grow(len(frame.Values) * 5)
	for i, v := range frame.Values {
		if i > 0 {
			b.WriteString(Delimiter)
		}
		b.WriteString(strconv.FormatFloat(RoundToOneDecimal(v), 'f', 1, 64))
	}

	return wire.EncodedRecord{
		Version:    wire.SchemaVersion,
		Identifier: identifier,
		Encoding:   wire.EncodingText,
		Rows:       frame.Rows,
		Cols:       frame.Cols,
		Payload:    []byte(b.String()),
	}, nil
}

// DecodeText splits a text payload and reshapes it into rows x cols.
func DecodeText(payload []byte, rows, cols int) (types.Frame, error) {
	if rows < 1 || cols < 1 {
		return types.Frame{}, fmt.Errorf("invalid shape %dx%d", rows, cols)
	}
	if len(payload) == 0 {
		return types.Frame{}, fmt.Errorf("empty payload")
	}
	fields := strings.Split(string(payload), Delimiter)
	if len(fields) != rows*cols {
		return types.Frame{}, fmt.Errorf("payload has %d values, want %d", len(fields), rows*cols)
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return types.Frame{}, fmt.Errorf("value %d: %w", i, err)
		}
		values[i] = v
	}
	return types.Frame{Rows: rows, Cols: cols, Values: values}, nil
}

// RoundToOneDecimal is the lossy step shared by both sides of the text codec.
func RoundToOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}

func checkFrame(frame types.Frame) error {
	if len(frame.Values) == 0 {
		return &EncodingError{Reason: "empty grid"}
	}
	if err := frame.Validate(); err != nil {
		return &EncodingError{Reason: err.Error()}
	}
	for i, v := range frame.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &EncodingError{Reason: fmt.Sprintf("non-finite reading at cell %d", i)}
		}
	}
	return nil
}
