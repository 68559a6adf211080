// Package storerpc is the client and server binding for the generic store
// service. Messages travel over gRPC using the "cbor" content subtype.
package storerpc

import "thermal-relay-go/internal/wire"

const ServiceName = "dbgeneric.DBGeneric"

const (
	insertMethod    = "/" + ServiceName + "/Insert"
	selectMethod    = "/" + ServiceName + "/Select"
	dropTableMethod = "/" + ServiceName + "/DropTable"
)

type InsertRequest struct {
	Keyspace string          `cbor:"1,keyasint"`
	Records  []wire.Envelope `cbor:"2,keyasint"`
}

type InsertResponse struct {
	Errs []string `cbor:"1,keyasint,omitempty"`
}

// SelectRequest is a point lookup: rows of Table whose Column equals Constraint.
type SelectRequest struct {
	Keyspace   string `cbor:"1,keyasint"`
	Table      string `cbor:"2,keyasint"`
	Column     string `cbor:"3,keyasint"`
	Constraint string `cbor:"4,keyasint"`
}

type SelectResponse struct {
	Records [][]byte `cbor:"1,keyasint,omitempty"`
}

type DropTableRequest struct {
	Keyspace string `cbor:"1,keyasint"`
	Table    string `cbor:"2,keyasint"`
}

type DropTableResponse struct {
	Errs []string `cbor:"1,keyasint,omitempty"`
}
