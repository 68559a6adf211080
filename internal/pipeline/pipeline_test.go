package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"thermal-relay-go/internal/codec"
	"thermal-relay-go/internal/metrics"
	"thermal-relay-go/internal/sensor"
	"thermal-relay-go/internal/transport"
	"thermal-relay-go/internal/types"
	"thermal-relay-go/internal/wire"
)

type fakeStore struct {
	inserted []wire.EncodedRecord
	// results are consumed in order; once exhausted every insert succeeds.
	results []func() (transport.Result, error)
	onInsert func(n int)
}

func (f *fakeStore) Insert(_ context.Context, keyspace string, records []wire.Envelope) (transport.Result, error) {
	if keyspace != "imageKeyspace" {
		return transport.Result{}, fmt.Errorf("unexpected keyspace %q", keyspace)
	}
	for _, env := range records {
		rec, err := wire.Unwrap(env)
		if err != nil {
			return transport.Result{}, err
		}
		f.inserted = append(f.inserted, rec)
	}
	if f.onInsert != nil {
		f.onInsert(len(f.inserted))
	}
	if len(f.results) > 0 {
		next := f.results[0]
		f.results = f.results[1:]
		return next()
	}
	return transport.Result{}, nil
}

func constantFrame(v float64) types.Frame {
	frame, _ := types.NewFrame(2, 2, []float64{v, v, v, v})
	return frame
}

// scripted returns errs in order, then frames forever.
func scripted(errs []error, frame types.Frame) sensor.FrameSource {
	i := 0
	return sensor.Func(func(ctx context.Context) (types.Frame, error) {
		if i < len(errs) {
			err := errs[i]
			i++
			return types.Frame{}, err
		}
		return frame, nil
	})
}

func stopAfter(cancel context.CancelFunc, n int) func(int) {
	return func(count int) {
		if count >= n {
			cancel()
		}
	}
}

func TestTransientFailuresProduceOneInsert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := []error{sensor.Transient("i2c"), sensor.Transient("i2c"), sensor.Transient("i2c")}
	store := &fakeStore{onInsert: stopAfter(cancel, 1)}
	loop := New(scripted(errs, constantFrame(25)), codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace"})

	faults := testutil.ToFloat64(metrics.SensorTransientFaults)
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := testutil.ToFloat64(metrics.SensorTransientFaults) - faults; got != 3 {
		t.Fatalf("transient fault metric moved by %v, want 3", got)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("got %d inserts, want 1", len(store.inserted))
	}
	if store.inserted[0].Identifier != 1 {
		t.Fatalf("identifier %d, want 1", store.inserted[0].Identifier)
	}
}

func TestIdentifiersStrictlyIncrease(t *testing.T) {
	for _, policy := range []string{PolicyCounter, PolicyTimestamp} {
		t.Run(policy, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ids, err := NewIdentifierPolicy(policy, 0)
			if err != nil {
				t.Fatalf("NewIdentifierPolicy: %v", err)
			}
			store := &fakeStore{onInsert: stopAfter(cancel, 20)}
			loop := New(scripted(nil, constantFrame(30)), codec.TextEncoder{}, store, ids, Config{Keyspace: "imageKeyspace"})
			if err := loop.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}
			for i := 1; i < len(store.inserted); i++ {
				if store.inserted[i].Identifier <= store.inserted[i-1].Identifier {
					t.Fatalf("identifier %d after %d", store.inserted[i].Identifier, store.inserted[i-1].Identifier)
				}
			}
			if policy == PolicyCounter && store.inserted[19].Identifier != 20 {
				t.Fatalf("counter ended at %d, want 20", store.inserted[19].Identifier)
			}
		})
	}
}

func TestApplicationErrorsDoNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{
		onInsert: stopAfter(cancel, 3),
		results: []func() (transport.Result, error){
			func() (transport.Result, error) { return transport.Result{Errors: []string{"no such table"}}, nil },
			func() (transport.Result, error) { return transport.Result{}, errors.New("insert: rpc error: code = Internal") },
		},
	}
	loop := New(scripted(nil, constantFrame(30)), codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace"})
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.inserted) != 3 {
		t.Fatalf("got %d inserts, want 3", len(store.inserted))
	}
}

func TestRejectedIdentifierIsReused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{
		onInsert: stopAfter(cancel, 4),
		results: []func() (transport.Result, error){
			func() (transport.Result, error) { return transport.Result{Errors: []string{"no such table"}}, nil },
			func() (transport.Result, error) { return transport.Result{}, nil },
			func() (transport.Result, error) { return transport.Result{}, errors.New("insert: rpc error: code = Internal") },
		},
	}
	loop := New(scripted(nil, constantFrame(30)), codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace"})
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int64{1, 1, 2, 2}
	if len(store.inserted) != len(want) {
		t.Fatalf("got %d inserts, want %d", len(store.inserted), len(want))
	}
	for i, rec := range store.inserted {
		if rec.Identifier != want[i] {
			t.Fatalf("insert %d carried identifier %d, want %d", i, rec.Identifier, want[i])
		}
	}
}

func TestConnectionErrorStopsLoop(t *testing.T) {
	connErr := &transport.ConnectionError{Op: "insert", Err: errors.New("connection refused")}
	store := &fakeStore{
		results: []func() (transport.Result, error){
			func() (transport.Result, error) { return transport.Result{}, nil },
			func() (transport.Result, error) { return transport.Result{}, connErr },
		},
	}
	loop := New(scripted(nil, constantFrame(30)), codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace"})

	err := loop.Run(context.Background())
	if !errors.Is(err, connErr) {
		t.Fatalf("Run returned %v, want connection error", err)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("got %d inserts, want 2", len(store.inserted))
	}
}

func TestEncodingErrorSkipsFrameWithoutConsumingIdentifier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bad, _ := types.NewFrame(1, 2, []float64{1, 2})
	bad.Values[1] = math.NaN()
	good := constantFrame(20)
	reads := 0
	source := sensor.Func(func(context.Context) (types.Frame, error) {
		reads++
		if reads == 2 {
			return bad, nil
		}
		return good, nil
	})

	store := &fakeStore{onInsert: stopAfter(cancel, 2)}
	loop := New(source, codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace"})
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reads != 3 {
		t.Fatalf("sensor read %d times, want 3", reads)
	}
	if store.inserted[0].Identifier != 1 || store.inserted[1].Identifier != 2 {
		t.Fatalf("identifiers %d, %d; want 1, 2", store.inserted[0].Identifier, store.inserted[1].Identifier)
	}
}

func TestFatalSensorErrorStopsLoop(t *testing.T) {
	broken := errors.New("device removed")
	loop := New(scripted([]error{broken}, constantFrame(1)), codec.TextEncoder{}, &fakeStore{}, nil, Config{Keyspace: "imageKeyspace"})
	if err := loop.Run(context.Background()); !errors.Is(err, broken) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestCancelledBeforeStartSendsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeStore{}
	loop := New(scripted(nil, constantFrame(1)), codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace", Interval: time.Second})
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("inserted %d records after cancel", len(store.inserted))
	}
}

func TestIntervalSpacesIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const interval = 20 * time.Millisecond
	var third time.Time
	store := &fakeStore{onInsert: func(n int) {
		if n == 3 {
			third = time.Now()
			cancel()
		}
	}}
	loop := New(scripted(nil, constantFrame(30)), codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace", Interval: interval})

	start := time.Now()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.inserted) != 3 {
		t.Fatalf("got %d inserts, want 3", len(store.inserted))
	}
	// The limiter computes delays in float seconds; allow for rounding.
	if elapsed := third.Sub(start); elapsed < 2*interval-time.Millisecond {
		t.Fatalf("third insert after %v, want at least %v", elapsed, 2*interval)
	}
}

func TestTransientFailuresRetryWithoutPacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const interval = 500 * time.Millisecond
	errs := []error{sensor.Transient("i2c"), sensor.Transient("i2c"), sensor.Transient("i2c"), sensor.Transient("i2c")}
	var first time.Time
	store := &fakeStore{onInsert: func(n int) {
		first = time.Now()
		cancel()
	}}
	loop := New(scripted(errs, constantFrame(30)), codec.TextEncoder{}, store, nil, Config{Keyspace: "imageKeyspace", Interval: interval})

	start := time.Now()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("got %d inserts, want 1", len(store.inserted))
	}
	if elapsed := first.Sub(start); elapsed >= interval/2 {
		t.Fatalf("first insert after %v; transient retries should not wait", elapsed)
	}
}

func TestArtifactsWrittenAndPurged(t *testing.T) {
	for _, purge := range []bool{false, true} {
		t.Run(fmt.Sprintf("purge=%v", purge), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			dir := t.TempDir()
			raster, err := codec.NewRasterEncoder(20, 40)
			if err != nil {
				t.Fatalf("NewRasterEncoder: %v", err)
			}
			store := &fakeStore{onInsert: stopAfter(cancel, 2)}
			loop := New(scripted(nil, constantFrame(30)), codec.TextEncoder{}, store, nil, Config{
				Keyspace:       "imageKeyspace",
				ImageDir:       dir,
				PurgeArtifacts: purge,
				Raster:         &raster,
			})
			if err := loop.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}

			for _, id := range []int64{1, 2} {
				_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("%d.png", id)))
				if purge && !os.IsNotExist(err) {
					t.Fatalf("artifact %d not purged: %v", id, err)
				}
				if !purge && err != nil {
					t.Fatalf("artifact %d missing: %v", id, err)
				}
			}
		})
	}
}

func writePNG(t *testing.T, path string, rows, cols int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, cols, rows))); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestUploadSendsPNGs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		writePNG(t, filepath.Join(dir, name), 24, 32)
	}
	if err := os.WriteFile(filepath.Join(dir, "c.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := &fakeStore{}
	sent, err := Upload(context.Background(), dir, store, "imageKeyspace", NewCounterIdentifiers(10))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if sent != 2 || len(store.inserted) != 2 {
		t.Fatalf("sent %d, inserted %d; want 2", sent, len(store.inserted))
	}
	first := store.inserted[0]
	if first.Identifier != 11 || first.Encoding != wire.EncodingPNG || first.Rows != 24 || first.Cols != 32 {
		t.Fatalf("unexpected record %+v", first)
	}
}

func TestUploadKeepsArtifactOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "2.png"), 1, 3)
	writePNG(t, filepath.Join(dir, "10.png"), 1, 10)

	store := &fakeStore{}
	if _, err := Upload(context.Background(), dir, store, "imageKeyspace", NewCounterIdentifiers(0)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("inserted %d, want 2", len(store.inserted))
	}
	if got := store.inserted[0]; got.Identifier != 1 || got.Cols != 3 {
		t.Fatalf("first upload %d with %d cols, want 2.png as identifier 1", got.Identifier, got.Cols)
	}
	if got := store.inserted[1]; got.Identifier != 2 || got.Cols != 10 {
		t.Fatalf("second upload %d with %d cols, want 10.png as identifier 2", got.Identifier, got.Cols)
	}
}

func TestUploadReusesRejectedIdentifier(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "1.png"), 2, 2)
	writePNG(t, filepath.Join(dir, "2.png"), 2, 2)

	store := &fakeStore{results: []func() (transport.Result, error){
		func() (transport.Result, error) { return transport.Result{Errors: []string{"rejected"}}, nil },
	}}
	sent, err := Upload(context.Background(), dir, store, "imageKeyspace", NewCounterIdentifiers(0))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if sent != 1 || store.inserted[0].Identifier != 1 || store.inserted[1].Identifier != 1 {
		t.Fatalf("sent %d, identifiers %d, %d; want 1 stored as identifier 1", sent, store.inserted[0].Identifier, store.inserted[1].Identifier)
	}
}
