// Package ingest reads frames published by a sensor bridge over ZMQ.
//
// The bridge owns the I2C device and pushes one CBOR message per frame:
//
//	{ "type": "frame", "frame_id": <int>, "data": <tag 40 [rows, cols] typed array> }
//
// Any other message type is ignored.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"thermal-relay-go/internal/sensor"
	"thermal-relay-go/internal/types"
)

type Source struct {
	socket   *zmq4.Socket
	endpoint string
}

var _ sensor.FrameSource = (*Source)(nil)

// Dial connects a PULL socket. A failure here is a configuration or
// connection fault and is returned as-is.
func Dial(endpoint string, recvTimeout time.Duration) (*Source, error) {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if recvTimeout > 0 {
		if err := socket.SetRcvtimeo(recvTimeout); err != nil {
			_ = socket.Close()
			return nil, err
		}
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return &Source{socket: socket, endpoint: endpoint}, nil
}

// ReadFrame blocks for at most the receive timeout. Timeouts and
// undecodable messages are transient; a terminated context is fatal.
func (s *Source) ReadFrame(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	msg, err := s.socket.RecvBytes(0)
	if err != nil {
		errno := zmq4.AsErrno(err)
		if errno == zmq4.Errno(syscall.EAGAIN) || errno == zmq4.Errno(syscall.EINTR) {
			return types.Frame{}, sensor.Transient("no frame from %s", s.endpoint)
		}
		return types.Frame{}, fmt.Errorf("recv from %s: %w", s.endpoint, err)
	}

	frame, err := decodeFrame(msg)
	if err != nil {
		return types.Frame{}, sensor.Transient("%v", err)
	}
	return frame, nil
}

func (s *Source) Close() error {
	return s.socket.Close()
}

var errIgnored = errors.New("ignored message")

func decodeFrame(msg []byte) (types.Frame, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return types.Frame{}, fmt.Errorf("CBOR decode error: %w", err)
	}

	msgType, _ := payload["type"].(string)
	if msgType != "frame" {
		return types.Frame{}, fmt.Errorf("%w: type %q", errIgnored, msgType)
	}

	rows, cols, values, err := decodeMultiDimArray(payload["data"])
	if err != nil {
		return types.Frame{}, fmt.Errorf("invalid data field: %w", err)
	}
	return types.Frame{Rows: rows, Cols: cols, Values: values}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}
