package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedEvent marks an event that cannot be attributed or interpreted.
var ErrMalformedEvent = errors.New("malformed event")

// Kind is the event variant.
type Kind uint8

// Event kinds. Values are part of the wire format.
const (
	KindStart  Kind = 1
	KindSignal Kind = 2
	KindExit   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindSignal:
		return "signal"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ProcessIdentity identifies one intercepted invocation within a session.
// ParentPID is the pid of the nearest intercepting ancestor, which is how a
// nested invocation is correlated with the one that spawned it.
type ProcessIdentity struct {
	PID       uint32 `cbor:"pid"`
	ParentPID uint32 `cbor:"parent_pid"`
	SessionID string `cbor:"session_id"`
}

func (id ProcessIdentity) String() string {
	return fmt.Sprintf("%s/%d<-%d", id.SessionID, id.PID, id.ParentPID)
}

// StartPayload records an invocation as it was made.
type StartPayload struct {
	// Command is the argument vector as the caller passed it.
	Command []string `cbor:"command"`
	// Executable is the resolved path of the program actually run.
	Executable  string            `cbor:"executable,omitempty"`
	WorkingDir  string            `cbor:"cwd"`
	Environment map[string]string `cbor:"env,omitempty"`
	// ResponseFiles holds the content of the @file arguments, read before
	// the program ran, keyed by the name as written.
	ResponseFiles map[string]string `cbor:"response_files,omitempty"`
}

// SignalPayload records a signal relayed to the supervised child.
type SignalPayload struct {
	Number int `cbor:"number"`
}

// ExitPayload records how an invocation ended. Exactly one of the three
// outcomes applies: Failed (the process never started), Signal > 0 (killed
// by that signal), or a plain exit Code.
type ExitPayload struct {
	Code   int  `cbor:"code"`
	Signal int  `cbor:"signal,omitempty"`
	Failed bool `cbor:"failed,omitempty"`
}

// Signaled reports whether the process was terminated by a signal.
func (p ExitPayload) Signaled() bool {
	return !p.Failed && p.Signal > 0
}

func (p ExitPayload) String() string {
	switch {
	case p.Failed:
		return fmt.Sprintf("failed to start (code %d)", p.Code)
	case p.Signaled():
		return fmt.Sprintf("terminated by signal %d", p.Signal)
	default:
		return fmt.Sprintf("exited with code %d", p.Code)
	}
}

// Event is one observation. Only the payload matching Kind is set.
type Event struct {
	Kind      Kind
	Identity  ProcessIdentity
	Timestamp time.Time

	Start  *StartPayload
	Signal *SignalPayload
	Exit   *ExitPayload
}

// NewStart creates a Start event.
func NewStart(id ProcessIdentity, ts time.Time, payload StartPayload) Event {
	return Event{Kind: KindStart, Identity: id, Timestamp: ts, Start: &payload}
}

// NewSignal creates a Signal event.
func NewSignal(id ProcessIdentity, ts time.Time, number int) Event {
	return Event{Kind: KindSignal, Identity: id, Timestamp: ts, Signal: &SignalPayload{Number: number}}
}

// NewExit creates an Exit event.
func NewExit(id ProcessIdentity, ts time.Time, payload ExitPayload) Event {
	return Event{Kind: KindExit, Identity: id, Timestamp: ts, Exit: &payload}
}

// Validate checks that the event is attributable and its payload matches
// its kind.
func (e Event) Validate() error {
	if e.Identity.PID == 0 {
		return fmt.Errorf("%w: zero pid", ErrMalformedEvent)
	}
	if e.Identity.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrMalformedEvent)
	}
	switch e.Kind {
	case KindStart:
		if e.Start == nil {
			return fmt.Errorf("%w: start without payload", ErrMalformedEvent)
		}
		if len(e.Start.Command) == 0 {
			return fmt.Errorf("%w: start with empty command", ErrMalformedEvent)
		}
	case KindSignal:
		if e.Signal == nil {
			return fmt.Errorf("%w: signal without payload", ErrMalformedEvent)
		}
	case KindExit:
		if e.Exit == nil {
			return fmt.Errorf("%w: exit without payload", ErrMalformedEvent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedEvent, uint8(e.Kind))
	}
	return nil
}

func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Kind, e.Identity)
	switch {
	case e.Start != nil:
		fmt.Fprintf(&b, " command=[%s]", strings.Join(e.Start.Command, ","))
	case e.Signal != nil:
		fmt.Fprintf(&b, " signal=%d", e.Signal.Number)
	case e.Exit != nil:
		fmt.Fprintf(&b, " %s", e.Exit)
	}
	return b.String()
}
