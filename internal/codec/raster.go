package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"thermal-relay-go/internal/types"
	"thermal-relay-go/internal/wire"
)

type RasterEncoder struct {
	Min float64
	Max float64
}

func NewRasterEncoder(minValue, maxValue float64) (RasterEncoder, error) {
	if !(maxValue > minValue) {
		return RasterEncoder{}, fmt.Errorf("raster range [%v, %v] is empty", minValue, maxValue)
	}
	return RasterEncoder{Min: minValue, Max: maxValue}, nil
}

// Intensity maps v onto [0,255]; values outside [Min, Max] clamp to the ends.
func (r RasterEncoder) Intensity(v float64) uint8 {
	if v <= r.Min {
		return 0
	}
	if v >= r.Max {
		return 255
	}
	return uint8(math.Round((v - r.Min) / (r.Max - r.Min) * 255))
}

func (r RasterEncoder) Raster(frame types.Frame) (*image.Gray, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, frame.Cols, frame.Rows))
	for row := 0; row < frame.Rows; row++ {
		for col := 0; col < frame.Cols; col++ {
			img.SetGray(col, row, color.Gray{Y: r.Intensity(frame.At(row, col))})
		}
	}
	return img, nil
}

func (r RasterEncoder) Encode(frame types.Frame, identifier int64) (wire.EncodedRecord, error) {
	img, err := r.Raster(frame)
	if err != nil {
		return wire.EncodedRecord{}, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return wire.EncodedRecord{}, &EncodingError{Reason: err.Error()}
	}
	return wire.EncodedRecord{
		Version:    wire.SchemaVersion,
		Identifier: identifier,
		Encoding:   wire.EncodingPNG,
		Rows:       frame.Rows,
		Cols:       frame.Cols,
		Payload:    buf.Bytes(),
	}, nil
}
