package collector

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
	"github.com/mrzor/compdb-tracer/internal/session"
)

// ErrSessionTimeout is returned alongside a session that was force-closed
// before its top-level exit was observed.
var ErrSessionTimeout = errors.New("session timed out before top-level exit")

// DefaultGracePeriod is how long late events are accepted after the
// top-level exit.
const DefaultGracePeriod = 500 * time.Millisecond

// State is the collector lifecycle state.
type State int

// Lifecycle states, in order.
const (
	StateIdle State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Collector.
type Options struct {
	SessionID string
	// TopLevel is the identity whose Exit closes the session.
	TopLevel    event.ProcessIdentity
	GracePeriod time.Duration
	Logger      logrus.FieldLogger
}

// Collector records events for one session. It implements
// eventprocessor.ProcessEventHandler.
type Collector struct {
	opts    Options
	log     logrus.FieldLogger
	manager *procmeta.Manager

	mu      sync.Mutex
	state   State
	records []session.Record
	seq     uint64
	timer   *time.Timer
	result  *session.Session

	closed chan struct{}
}

// New creates an idle Collector. The manager is shared with the event
// processor and reports invocations still running at close.
func New(opts Options, manager *procmeta.Manager) *Collector {
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Collector{
		opts:    opts,
		log:     log.WithField("session", opts.SessionID),
		manager: manager,
		closed:  make(chan struct{}),
	}
}

// Start opens the session.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		c.state = StateOpen
	}
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Closed is closed once the session is complete.
func (c *Collector) Closed() <-chan struct{} {
	return c.closed
}

// HandleProcessStart records a Start event.
func (c *Collector) HandleProcessStart(e event.Event, _ *procmeta.ProcessMetadata) error {
	return c.append(e)
}

// HandleProcessSignal records a Signal event.
func (c *Collector) HandleProcessSignal(e event.Event) error {
	return c.append(e)
}

// HandleProcessExit records an Exit event. The top-level exit moves the
// collector to Closing.
func (c *Collector) HandleProcessExit(e event.Event, _ *procmeta.ProcessMetadata) error {
	if err := c.append(e); err != nil {
		return err
	}
	if e.Identity == c.opts.TopLevel {
		c.beginClosing()
	}
	return nil
}

func (c *Collector) append(e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		c.log.WithField("event", e.String()).Warn("dropping event received after session close")
		return nil
	case StateIdle:
		c.state = StateOpen
	}

	c.seq++
	c.records = append(c.records, session.Record{Seq: c.seq, Event: e})
	return nil
}

func (c *Collector) beginClosing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosing || c.state == StateClosed {
		return
	}
	c.state = StateClosing
	c.log.WithField("grace_period", c.opts.GracePeriod).Debug("top-level exit observed, draining")
	c.timer = time.AfterFunc(c.opts.GracePeriod, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closeLocked(false)
	})
}

// closeLocked transitions to Closed exactly once. Callers hold c.mu.
func (c *Collector) closeLocked(incomplete bool) {
	if c.state == StateClosed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.state = StateClosed

	s := &session.Session{
		ID:         c.opts.SessionID,
		Records:    c.records,
		Incomplete: incomplete,
	}
	for _, md := range c.manager.Live() {
		s.MissingExit = append(s.MissingExit, md.Identity)
	}
	if issues := c.manager.Issues(); len(issues) > 0 {
		s.Issues = issues
	}
	c.result = s
	close(c.closed)

	log := c.log.WithFields(logrus.Fields{
		"events":       len(s.Records),
		"missing_exit": len(s.MissingExit),
		"issues":       s.IssueCount(),
		"incomplete":   incomplete,
	})
	if s.IssueCount() > 0 {
		log.Warn("session closed with capture issues")
		return
	}
	log.Debug("session closed")
}

// Finalize waits up to timeout for the session to close and returns it.
// If it does not close in time it is force-closed as incomplete and
// ErrSessionTimeout is returned alongside it.
func (c *Collector) Finalize(timeout time.Duration) (*session.Session, error) {
	select {
	case <-c.closed:
	case <-time.After(timeout):
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return c.result, nil
	}
	c.closeLocked(true)
	return c.result, fmt.Errorf("after %s: %w", timeout, ErrSessionTimeout)
}
