package storerpc

import (
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

const codecName = "cbor"

type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func (cborCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(cborCodec{})
}
