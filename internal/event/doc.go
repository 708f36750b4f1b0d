// Package event defines the facts reported by intercepted processes and
// their wire representation.
//
// Every intercepted invocation is identified by a ProcessIdentity and reports
// a Start event before its real work, optional Signal events while it runs,
// and one Exit event after. Events are values: nothing mutates an event after
// it is created.
//
// On the wire an event is an envelope
//
//	{kind, pid, parent_pid, session_id, timestamp, payload}
//
// where payload is decoded according to kind. Decode reports anything that
// does not fit this shape as ErrMalformedEvent.
package event
