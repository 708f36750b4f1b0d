package session

import (
	"github.com/mrzor/compdb-tracer/internal/event"
)

// Record is an event tagged with its receipt sequence number.
type Record struct {
	Seq   uint64
	Event event.Event
}

// Session is the immutable result of one collection.
type Session struct {
	ID      string
	Records []Record

	// Incomplete is set when the top-level exit was never observed and the
	// session was force-closed.
	Incomplete bool

	// MissingExit lists invocations that started but never reported an exit.
	MissingExit []event.ProcessIdentity

	// Issues holds the capture anomalies seen while collecting, keyed by
	// PID: a PID reused before its exit, or an exit without a start.
	Issues map[uint32][]string
}

// IssueCount is the number of capture anomalies across all PIDs.
func (s *Session) IssueCount() int {
	n := 0
	for _, list := range s.Issues {
		n += len(list)
	}
	return n
}

// Starts returns the Start events in receipt order.
func (s *Session) Starts() []Record {
	var starts []Record
	for _, r := range s.Records {
		if r.Event.Kind == event.KindStart {
			starts = append(starts, r)
		}
	}
	return starts
}

// Exits indexes Exit payloads by process identity.
func (s *Session) Exits() map[event.ProcessIdentity]*event.ExitPayload {
	exits := make(map[event.ProcessIdentity]*event.ExitPayload)
	for _, r := range s.Records {
		if r.Event.Kind == event.KindExit {
			exits[r.Event.Identity] = r.Event.Exit
		}
	}
	return exits
}
