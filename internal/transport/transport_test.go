package transport

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"thermal-relay-go/internal/storerpc"
	"thermal-relay-go/internal/wire"
)

type fakeClient struct {
	insertErr  error
	insertErrs []string
	selectErr  error
	block      bool
	got        *storerpc.InsertRequest
}

func (f *fakeClient) Insert(ctx context.Context, in *storerpc.InsertRequest) (*storerpc.InsertResponse, error) {
	f.got = in
	if f.block {
		<-ctx.Done()
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return &storerpc.InsertResponse{Errs: f.insertErrs}, nil
}

func (f *fakeClient) Select(_ context.Context, in *storerpc.SelectRequest) (*storerpc.SelectResponse, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return &storerpc.SelectResponse{Records: [][]byte{[]byte(in.Constraint)}}, nil
}

func (f *fakeClient) DropTable(context.Context, *storerpc.DropTableRequest) (*storerpc.DropTableResponse, error) {
	return &storerpc.DropTableResponse{Errs: []string{"no such table"}}, nil
}

type memJournal struct {
	records [][]byte
}

func (j *memJournal) Record(payload []byte) error {
	j.records = append(j.records, payload)
	return nil
}

func TestInsertPassesEnvelopesUntouched(t *testing.T) {
	client := &fakeClient{}
	journal := &memJournal{}
	tr := New(client, WithJournal(journal))

	env := wire.Envelope{TypeURL: wire.TypeTag, Value: []byte{1, 2, 3}}
	res, err := tr.Insert(context.Background(), "imageKeyspace", []wire.Envelope{env})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !res.OK() {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if client.got.Keyspace != "imageKeyspace" || !reflect.DeepEqual(client.got.Records, []wire.Envelope{env}) {
		t.Fatalf("store saw %+v", client.got)
	}
	if len(journal.records) != 1 {
		t.Fatalf("journal has %d records", len(journal.records))
	}
	var logged wire.Envelope
	if err := cbor.Unmarshal(journal.records[0], &logged); err != nil {
		t.Fatalf("decode journal record: %v", err)
	}
	if !reflect.DeepEqual(logged, env) {
		t.Fatalf("journal record %+v", logged)
	}
}

func TestInsertReturnsApplicationErrors(t *testing.T) {
	tr := New(&fakeClient{insertErrs: []string{"bad row", "bad column"}})
	res, err := tr.Insert(context.Background(), "ks", nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !reflect.DeepEqual(res.Errors, []string{"bad row", "bad column"}) {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
}

func TestUnavailableIsConnectionError(t *testing.T) {
	tr := New(&fakeClient{insertErr: status.Error(codes.Unavailable, "connection refused")})
	_, err := tr.Insert(context.Background(), "ks", nil)
	if !IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestOtherRPCErrorsAreNotConnectionErrors(t *testing.T) {
	tr := New(&fakeClient{selectErr: status.Error(codes.InvalidArgument, "unknown table")})
	_, err := tr.Select(context.Background(), "ks", "t", "c", "1")
	if err == nil || IsConnectionError(err) {
		t.Fatalf("expected plain RPC error, got %v", err)
	}
}

func TestCallDeadlineIsConnectionError(t *testing.T) {
	tr := New(&fakeClient{block: true}, WithCallTimeout(10*time.Millisecond))
	_, err := tr.Insert(context.Background(), "ks", nil)
	if !IsConnectionError(err) {
		t.Fatalf("expected ConnectionError on deadline, got %v", err)
	}
}

func TestCallerCancellationIsNotConnectionError(t *testing.T) {
	tr := New(&fakeClient{block: true}, WithCallTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Insert(ctx, "ks", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDropTableAndSelect(t *testing.T) {
	tr := New(&fakeClient{})
	res, err := tr.DropTable(context.Background(), "ks", "imagedata")
	if err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	records, err := tr.Select(context.Background(), "ks", "imagedata", "identifier", "4")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(records) != 1 || string(records[0]) != "4" {
		t.Fatalf("unexpected records %q", records)
	}
}
