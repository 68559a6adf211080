package store

import (
	"fmt"
	"strconv"
	"strings"

	"thermal-relay-go/internal/wire"
)

// Extractor pulls the value of one indexed column out of a record body.
type Extractor func(value []byte) (string, error)

type Schema struct {
	Table   string
	Columns map[string]Extractor
}

// Registry maps envelope type tags to the table that stores them.
type Registry map[string]Schema

func DefaultRegistry() Registry {
	return Registry{
		wire.TypeTag: {
			Table: wire.Table,
			Columns: map[string]Extractor{
				wire.IdentifierColumn: func(value []byte) (string, error) {
					record, err := wire.Unmarshal(value)
					if err != nil {
						return "", err
					}
					return strconv.FormatInt(record.Identifier, 10), nil
				},
			},
		},
	}
}

func (r Registry) Lookup(typeURL string) (Schema, error) {
	schema, ok := r[typeURL]
	if !ok {
		return Schema{}, fmt.Errorf("unknown type %q", typeURL)
	}
	schema.Table = strings.ToLower(schema.Table)
	return schema, nil
}
