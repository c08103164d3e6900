// ABOUTME: Buffered caller-owned progress pipe with non-blocking fire-and-forget sends
// ABOUTME: Disconnecting the receiver silently stops delivery without affecting the producer

package progress

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default buffer size of a Pipe.
const DefaultCapacity = 256

// Pipe is a one-way channel of progress percentages.
// The caller creates it, hands it to a producer as a Sink, and reads Events.
type Pipe struct {
	mu           sync.RWMutex
	ch           chan float64
	disconnected bool
	closed       bool

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewPipe creates a pipe with the given buffer capacity.
// A capacity below 1 uses DefaultCapacity.
func NewPipe(capacity int) *Pipe {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Pipe{ch: make(chan float64, capacity)}
}

// Send delivers pct if the receiver is connected and the buffer has room.
// Otherwise the event is dropped.
func (p *Pipe) Send(pct float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.disconnected || p.closed {
		p.dropped.Add(1)
		return
	}

	select {
	case p.ch <- pct:
		p.sent.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// Events returns the receive side of the pipe.
func (p *Pipe) Events() <-chan float64 {
	return p.ch
}

// Disconnect marks the receiver as gone. Later sends are dropped.
// Buffered events remain readable until Close.
func (p *Pipe) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
}

// Close closes the event channel so range loops over Events terminate.
// The producer must be done before Close; later sends are dropped.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.ch)
}

// Stats returns the number of delivered and dropped events.
func (p *Pipe) Stats() (sent, dropped int64) {
	return p.sent.Load(), p.dropped.Load()
}
