// Package supervisor runs the long-lived parts of a binary under a suture
// tree. Ordinary services are restarted with backoff; critical services
// stop the whole tree on their first failure, and Serve returns that error.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"google.golang.org/grpc"
)

type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

type Tree struct {
	root *suture.Supervisor

	mu    sync.Mutex
	fatal error
}

func New(name string, logger *slog.Logger, cfg TreeConfig) *Tree {
	handler := &sutureslog.Handler{Logger: logger}
	root := suture.New(name, suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
	return &Tree{root: root}
}

func (t *Tree) Add(name string, run func(ctx context.Context) error) suture.ServiceToken {
	return t.root.Add(&service{name: name, run: run, tree: t})
}

// AddCritical registers a service whose failure ends the process.
func (t *Tree) AddCritical(name string, run func(ctx context.Context) error) suture.ServiceToken {
	return t.root.Add(&service{name: name, run: run, tree: t, critical: true})
}

// Serve blocks until ctx is cancelled (nil) or a critical service fails.
func (t *Tree) Serve(ctx context.Context) error {
	err := t.root.Serve(ctx)

	t.mu.Lock()
	fatal := t.fatal
	t.mu.Unlock()
	if fatal != nil {
		return fatal
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (t *Tree) setFatal(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatal == nil {
		t.fatal = err
	}
}

type service struct {
	name     string
	run      func(ctx context.Context) error
	tree     *Tree
	critical bool
}

func (s *service) Serve(ctx context.Context) error {
	err := s.run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = fmt.Errorf("%s exited", s.name)
	}
	if s.critical {
		s.tree.setFatal(fmt.Errorf("%s: %w", s.name, err))
		return suture.ErrTerminateSupervisorTree
	}
	return err
}

func (s *service) String() string {
	return s.name
}

// GRPC serves srv on addr until ctx is cancelled, then stops gracefully.
func GRPC(srv *grpc.Server, addr string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				srv.GracefulStop()
			case <-done:
			}
		}()
		err = srv.Serve(lis)
		close(done)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
