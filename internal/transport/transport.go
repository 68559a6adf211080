// Package transport submits wire envelopes to the remote store.
//
// Transport does not retry. Application errors reported by the store come
// back in Result.Errors; an unreachable store or an expired call deadline
// comes back as *ConnectionError.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"thermal-relay-go/internal/metrics"
	"thermal-relay-go/internal/storerpc"
	"thermal-relay-go/internal/wire"
)

type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// Result carries the store's application-level error descriptors in order.
type Result struct {
	Errors []string
}

func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Journal receives a copy of every envelope before it is sent.
type Journal interface {
	Record(payload []byte) error
}

type Option func(*Transport)

func WithCallTimeout(d time.Duration) Option {
	return func(t *Transport) { t.callTimeout = d }
}

func WithJournal(j Journal) Option {
	return func(t *Transport) { t.journal = j }
}

type Transport struct {
	client      storerpc.StoreClient
	callTimeout time.Duration
	journal     Journal
}

func New(client storerpc.StoreClient, opts ...Option) *Transport {
	t := &Transport{client: client}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Insert(ctx context.Context, keyspace string, records []wire.Envelope) (Result, error) {
	if t.journal != nil {
		for _, env := range records {
			raw, err := cbor.Marshal(env)
			if err != nil {
				return Result{}, fmt.Errorf("journal envelope: %w", err)
			}
			if err := t.journal.Record(raw); err != nil {
				return Result{}, fmt.Errorf("journal envelope: %w", err)
			}
		}
	}

	var resp *storerpc.InsertResponse
	err := t.call(ctx, "insert", func(ctx context.Context) (err error) {
		resp, err = t.client.Insert(ctx, &storerpc.InsertRequest{Keyspace: keyspace, Records: records})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Errors: resp.Errs}, nil
}

func (t *Transport) DropTable(ctx context.Context, keyspace, table string) (Result, error) {
	var resp *storerpc.DropTableResponse
	err := t.call(ctx, "drop_table", func(ctx context.Context) (err error) {
		resp, err = t.client.DropTable(ctx, &storerpc.DropTableRequest{Keyspace: keyspace, Table: table})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Errors: resp.Errs}, nil
}

// Select returns the raw records whose column equals constraint.
func (t *Transport) Select(ctx context.Context, keyspace, table, column, constraint string) ([][]byte, error) {
	var resp *storerpc.SelectResponse
	err := t.call(ctx, "select", func(ctx context.Context) (err error) {
		resp, err = t.client.Select(ctx, &storerpc.SelectRequest{
			Keyspace:   keyspace,
			Table:      table,
			Column:     column,
			Constraint: constraint,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (t *Transport) call(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx := ctx
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)
	metrics.RPCDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	metrics.RPCFailures.WithLabelValues(op, status.Code(err).String()).Inc()
	return classify(ctx, op, err)
}

func classify(ctx context.Context, op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConnectionError{Op: op, Err: err}
	case codes.Canceled:
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
