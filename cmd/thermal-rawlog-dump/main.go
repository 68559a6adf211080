package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"

	"thermal-relay-go/internal/codec"
	"thermal-relay-go/internal/output"
	"thermal-relay-go/internal/wire"
)

type dumped struct {
	Index      int         `json:"index"`
	Timestamp  string      `json:"timestamp"`
	TypeURL    string      `json:"type_url"`
	Identifier int64       `json:"identifier,omitempty"`
	Encoding   string      `json:"encoding,omitempty"`
	Rows       int         `json:"rows,omitempty"`
	Cols       int         `json:"cols,omitempty"`
	Bytes      int         `json:"bytes"`
	Grid       [][]float64 `json:"grid,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func main() {
	var (
		path  = flag.String("path", "", "Path to journal .bin file")
		limit = flag.Int("limit", 1, "Number of records to dump (0 for all)")
		grid  = flag.Bool("grid", false, "Decode text payloads into the frame grid")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}

	for count := 0; *limit <= 0 || count < *limit; count++ {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Fatalf("record %d: %v", count, err)
		}

		out := describe(rec, *grid)
		out.Index = count
		pretty, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", count, err)
			continue
		}
		fmt.Println(string(pretty))
	}
}

func describe(rec output.RawLogRecord, withGrid bool) dumped {
	out := dumped{
		Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
		Bytes:     len(rec.Payload),
	}
	var env wire.Envelope
	if err := cbor.Unmarshal(rec.Payload, &env); err != nil {
		out.Error = fmt.Sprintf("envelope: %v", err)
		return out
	}
	out.TypeURL = env.TypeURL

	record, err := wire.Unwrap(env)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Identifier = record.Identifier
	out.Encoding = record.Encoding
	out.Rows = record.Rows
	out.Cols = record.Cols
	if withGrid {
		frame, err := codec.Decode(record)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Grid = frame.Grid()
	}
	return out
}
