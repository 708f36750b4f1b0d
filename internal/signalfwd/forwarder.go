package signalfwd

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	// ErrForwarderActive is returned by Install while another Forwarder
	// has not been released.
	ErrForwarderActive = errors.New("signal forwarder already active")

	// ErrSignalInstall marks a signal that could not be intercepted. It is
	// logged, never returned from Install.
	ErrSignalInstall = errors.New("signal cannot be intercepted")
)

// queueSize bounds signals waiting for relay.
const queueSize = 128

var active atomic.Bool

// Target is the process signals are relayed to.
type Target struct {
	PID int
}

// Captured is one entry of the handler table.
type Captured struct {
	Signal os.Signal
	// WasIgnored is set when the signal was ignored before Install. Such
	// signals stay ignored and are not relayed.
	WasIgnored bool
}

// platform is the OS signal mechanics.
type platform interface {
	// install starts delivering the given signals to ch and returns what
	// was captured. Signals that cannot be intercepted are reported through
	// skipped and left alone.
	install(signals []os.Signal, ch chan<- os.Signal) (captured []Captured, skipped []error)
	forward(pid int, sig os.Signal) error
	restore(captured []Captured, ch chan<- os.Signal)
	// stopSelf suspends this process. It is called after a job control
	// stop has been relayed, so the supervisor stops along with its child.
	stopSelf() error
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithOnForward registers a callback run after each relayed signal. It runs
// on the relay goroutine and must not block.
func WithOnForward(fn func(sig os.Signal)) Option {
	return func(f *Forwarder) { f.onForward = fn }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *Forwarder) { f.log = log }
}

func withPlatform(p platform) Option {
	return func(f *Forwarder) { f.platform = p }
}

// Forwarder relays signals to a target until released.
type Forwarder struct {
	target    Target
	platform  platform
	onForward func(os.Signal)
	log       logrus.FieldLogger

	queue    chan os.Signal
	captured []Captured
	done     chan struct{}

	releaseOnce sync.Once
}

// Install captures signals and starts relaying them to target.
func Install(target Target, signals []os.Signal, opts ...Option) (*Forwarder, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrForwarderActive
	}

	f := &Forwarder{
		target:   target,
		platform: defaultPlatform{},
		log:      logrus.StandardLogger(),
		queue:    make(chan os.Signal, queueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.WithField("target_pid", target.PID)

	captured, skipped := f.platform.install(signals, f.queue)
	for _, err := range skipped {
		f.log.WithError(err).Debug("signal left at original disposition")
	}
	f.captured = captured

	go f.relay()
	return f, nil
}

// Captured returns the handler table.
func (f *Forwarder) Captured() []Captured {
	return append([]Captured(nil), f.captured...)
}

func (f *Forwarder) relay() {
	defer close(f.done)
	for sig := range f.queue {
		if err := f.platform.forward(f.target.PID, sig); err != nil {
			f.log.WithError(err).WithField("signal", sig.String()).Debug("forwarding signal")
			continue
		}
		if f.onForward != nil {
			f.onForward(sig)
		}
		if stopSignals[sig] {
			if err := f.platform.stopSelf(); err != nil {
				f.log.WithError(err).WithField("signal", sig.String()).Debug("stopping after relay")
			}
		}
	}
}

// Release restores every captured disposition and waits for queued signals
// to be relayed. It is idempotent.
func (f *Forwarder) Release() {
	f.releaseOnce.Do(func() {
		f.platform.restore(f.captured, f.queue)
		close(f.queue)
		<-f.done
		active.Store(false)
	})
}

func skipError(sig os.Signal, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrSignalInstall, sig, reason)
}
