package eventstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mrzor/compdb-tracer/internal/event"
)

// Handler receives decoded events. It is called concurrently from one
// goroutine per connection.
type Handler interface {
	HandleEvent(e event.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(e event.Event) error

// HandleEvent calls f(e).
func (f HandlerFunc) HandleEvent(e event.Event) error { return f(e) }

// Listener accepts connections from reporters and dispatches their events to
// a handler.
type Listener struct {
	listener net.Listener
	address  Address
	handler  Handler
	log      logrus.FieldLogger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen binds address. For unix sockets a stale socket file is removed
// first. A tcp address with port 0 gets an ephemeral port; Address reports
// the bound one.
func Listen(address Address, handler Handler, log logrus.FieldLogger) (*Listener, error) {
	if address.Network == "unix" {
		if err := os.Remove(address.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket %s: %w", address.Path, err)
		}
	}

	ln, err := net.Listen(address.Network, address.Path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	if address.Network == "tcp" {
		address.Path = ln.Addr().String()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Listener{
		listener: ln,
		address:  address,
		handler:  handler,
		log:      log.WithField("address", address.String()),
		stopCh:   make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Address returns the address reporters should dial.
func (l *Listener) Address() Address {
	return l.address
}

// Start begins accepting connections in a goroutine.
// It returns immediately and serves events in the background until
// the context is cancelled or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	l.wg.Add(1)
	go l.acceptLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = l.Stop() //nolint:errcheck // Stop errors are logged by the caller path
		case <-l.stopCh:
		}
	}()
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to return. Events already read have been handled
// when Stop returns.
func (l *Listener) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopCh)
		err = l.listener.Close()

		l.mu.Lock()
		for conn := range l.conns {
			_ = conn.Close() //nolint:errcheck // Best-effort shutdown
		}
		l.mu.Unlock()

		l.wg.Wait()

		if l.address.Network == "unix" {
			_ = os.Remove(l.address.Path) //nolint:errcheck // Listener close usually unlinks it already
		}
	})
	return err
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.WithError(err).Warn("accepting event connection")
			continue
		}

		if !l.track(conn) {
			_ = conn.Close() //nolint:errcheck // Shutting down
			return
		}
		l.wg.Add(1)
		go l.processEvents(conn)
	}
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stopCh:
		return false
	default:
	}
	l.conns[conn] = struct{}{}
	return true
}

// processEvents is the per-connection loop that reads and dispatches events.
func (l *Listener) processEvents(conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		_ = conn.Close() //nolint:errcheck // Already done reading
	}()

	reader := event.NewReader(conn)
	for {
		e, err := reader.Next()
		if err != nil {
			if errors.Is(err, event.ErrMalformedEvent) {
				l.log.WithError(err).Warn("dropping malformed event")
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.WithError(err).Warn("closing event connection")
			return
		}

		if err := l.handler.HandleEvent(e); err != nil {
			l.log.WithError(err).WithField("event", e.String()).Warn("handling event")
		}
	}
}
