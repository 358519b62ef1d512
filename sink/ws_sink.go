// Package sink provides the consumers fed by the delivery router: one
// buffered sink per live connection, plus permanent in-process sinks.
package sink

import (
	"context"
	"fmt"

	"chat-relay/domain"
	"chat-relay/errors"
)

// ConnectionSink buffers outbound frames for one live connection. Deliver
// is called by the router fan-out and must never block it: when the buffer
// is full the frame is rejected and the router handles the failure.
// The connection's write pump drains Frames.
type ConnectionSink struct {
	Frames chan domain.Payload
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{Frames: make(chan domain.Payload, bufferSize)}
}

func (s *ConnectionSink) Deliver(ctx context.Context, p domain.Payload) error {
	select {
	case s.Frames <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: connection cannot keep up", errors.ErrSinkFull)
	}
}
