package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 tags used by the sensor bridge.
const (
	tagMultiDimArray = 40
	tagUint16LE      = 69
	tagSint16LE      = 77
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

// decodeMultiDimArray returns the row-major values of a tag-40 array.
func decodeMultiDimArray(value any) (rows, cols int, values []float64, err error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return 0, 0, nil, fmt.Errorf("expected multidim tag 40")
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return 0, 0, nil, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) != 2 {
		return 0, 0, nil, fmt.Errorf("invalid multidim dimensions")
	}
	if rows, err = toInt(dimsRaw[0]); err != nil {
		return 0, 0, nil, err
	}
	if cols, err = toInt(dimsRaw[1]); err != nil {
		return 0, 0, nil, err
	}

	values, err = decodeTypedArray(items[1])
	if err != nil {
		return 0, 0, nil, err
	}
	if rows < 1 || cols < 1 || rows*cols != len(values) {
		return 0, 0, nil, errors.New("dimension mismatch")
	}
	return rows, cols, values, nil
}

func decodeTypedArray(value any) ([]float64, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, fmt.Errorf("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint16LE:
		return widen(data, 2, func(b []byte) float64 {
			return float64(binary.LittleEndian.Uint16(b))
		})
	case tagSint16LE:
		return widen(data, 2, func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b)))
		})
	case tagFloat32LE:
		return widen(data, 4, func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		})
	case tagFloat64LE:
		return widen(data, 8, func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		})
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func widen(data []byte, size int, conv func([]byte) float64) ([]float64, error) {
	if len(data)%size != 0 {
		return nil, fmt.Errorf("typed array length %d not a multiple of %d", len(data), size)
	}
	out := make([]float64, len(data)/size)
	for i := range out {
		out[i] = conv(data[i*size : (i+1)*size])
	}
	return out, nil
}
