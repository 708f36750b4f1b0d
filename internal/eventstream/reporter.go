package eventstream

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mrzor/compdb-tracer/internal/codec"
	"github.com/mrzor/compdb-tracer/internal/event"
)

// ErrChannelSend marks an event that could not be delivered to the collector.
var ErrChannelSend = errors.New("event channel send failed")

// DefaultDialTimeout bounds both connecting and writing one event.
const DefaultDialTimeout = time.Second

// Sender delivers events to the collector.
type Sender interface {
	Send(e event.Event) error
	Close() error
}

// Reporter sends events over one lazily dialed connection.
// It is safe for concurrent use.
type Reporter struct {
	address Address
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewReporter creates a Reporter for address. A non-positive timeout selects
// DefaultDialTimeout.
func NewReporter(address Address, timeout time.Duration) *Reporter {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Reporter{address: address, timeout: timeout}
}

// Send writes e to the collector. A broken connection is redialed once.
// Errors wrap ErrChannelSend.
func (r *Reporter) Send(e event.Event) error {
	data, err := event.Encode(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelSend, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if r.conn == nil {
			conn, err := net.DialTimeout(r.address.Network, r.address.Path, r.timeout)
			if err != nil {
				return fmt.Errorf("%w: dialing %s: %v", ErrChannelSend, r.address, err)
			}
			r.conn = conn
		}

		lastErr = r.write(data)
		if lastErr == nil {
			return nil
		}
		_ = r.conn.Close() //nolint:errcheck // Connection is discarded either way
		r.conn = nil
	}
	return fmt.Errorf("%w: writing to %s: %v", ErrChannelSend, r.address, lastErr)
}

func (r *Reporter) write(data []byte) error {
	if err := r.conn.SetWriteDeadline(time.Now().Add(r.timeout)); err != nil {
		return err
	}
	return codec.WriteFrame(r.conn, data)
}

// Close closes the connection, if any.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// Discard is a Sender that drops everything. Wrappers use it when no
// session address was inherited.
type Discard struct{}

// Send drops e.
func (Discard) Send(event.Event) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }

// Local delivers events straight to an in-process handler, for the
// top-level supervisor that shares a process with the collector.
type Local struct {
	Handler Handler
}

// Send hands e to the handler.
func (l Local) Send(e event.Event) error {
	if err := l.Handler.HandleEvent(e); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelSend, err)
	}
	return nil
}

// Close does nothing.
func (Local) Close() error { return nil }
