// Package rumor is an outbound channel for SendRumors batches, the
// abstract boundary behind which a real fan-out-to-connected-peers
// transport lives.
package rumor

import (
	"context"

	"github.com/calmh/syncit/block"
)

// Sink is the outbound boundary for gossip. The transport layer behind
// it is free to batch, retry, and multiplex.
type Sink interface {
	Send(ctx context.Context, rumors block.SendRumors) error
}

// ChanSink is an in-process Sink backed by a buffered channel, useful
// for wiring a real transport in-process or for tests that assert on
// emitted batches.
type ChanSink struct {
	ch chan block.SendRumors
}

// NewChanSink creates a ChanSink with the given buffer depth.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan block.SendRumors, buffer)}
}

// Send enqueues rumors, blocking if the buffer is full until ctx is done.
func (s *ChanSink) Send(ctx context.Context, rumors block.SendRumors) error {
	select {
	case s.ch <- rumors:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C exposes the receive side for a consumer (e.g. the real transport, or
// a test) to drain.
func (s *ChanSink) C() <-chan block.SendRumors {
	return s.ch
}
