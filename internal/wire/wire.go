// Package wire defines the record schema carried through the store.
//
// An EncodedRecord is serialized as a CBOR map with small integer keys so
// fields can be added without breaking older readers. Version is bumped
// only for incompatible changes.
package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	// TypeTag identifies EncodedRecord payloads inside an Envelope.
	TypeTag = "ImageData"
	// Table is where the store files TypeTag records.
	Table = "imagedata"
	// IdentifierColumn is the point-lookup column for TypeTag records.
	IdentifierColumn = "identifier"

	SchemaVersion = 1
)

const (
	EncodingText = "text/csv"
	EncodingPNG  = "image/png"
)

var ErrUnsupportedVersion = errors.New("unsupported record schema version")

type EncodedRecord struct {
	Version    uint   `cbor:"1,keyasint"`
	Identifier int64  `cbor:"2,keyasint"`
	Encoding   string `cbor:"3,keyasint"`
	Rows       int    `cbor:"4,keyasint,omitempty"`
	Cols       int    `cbor:"5,keyasint,omitempty"`
	Payload    []byte `cbor:"6,keyasint"`
}

// Envelope is the type-erased wrapper handed to transport. Value is opaque
// to everything between Wrap and Unwrap.
type Envelope struct {
	TypeURL string `cbor:"1,keyasint"`
	Value   []byte `cbor:"2,keyasint"`
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func Marshal(record EncodedRecord) ([]byte, error) {
	if record.Version == 0 {
		record.Version = SchemaVersion
	}
	return encMode.Marshal(record)
}

func Unmarshal(data []byte) (EncodedRecord, error) {
	var record EncodedRecord
	if err := cbor.Unmarshal(data, &record); err != nil {
		return EncodedRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if record.Version != SchemaVersion {
		return EncodedRecord{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, record.Version)
	}
	return record, nil
}

func Wrap(record EncodedRecord) (Envelope, error) {
	raw, err := Marshal(record)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{TypeURL: TypeTag, Value: raw}, nil
}

func Unwrap(env Envelope) (EncodedRecord, error) {
	if env.TypeURL != TypeTag {
		return EncodedRecord{}, fmt.Errorf("unexpected type tag %q", env.TypeURL)
	}
	return Unmarshal(env.Value)
}
