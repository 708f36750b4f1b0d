package event

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mrzor/compdb-tracer/internal/codec"
)

// cborNull is the encoding of a nil payload.
const cborNull = 0xf6

// envelope is the wire form of an Event.
type envelope struct {
	Kind      Kind             `cbor:"kind"`
	PID       uint32           `cbor:"pid"`
	ParentPID uint32           `cbor:"parent_pid"`
	SessionID string           `cbor:"session_id"`
	Timestamp int64            `cbor:"timestamp"`
	Payload   codec.RawMessage `cbor:"payload"`
}

// Encode returns the wire bytes of e.
func Encode(e Event) ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindStart:
		payload = e.Start
	case KindSignal:
		payload = e.Signal
	case KindExit:
		payload = e.Exit
	default:
		return nil, fmt.Errorf("encoding event: %w: unknown kind %d", ErrMalformedEvent, uint8(e.Kind))
	}

	raw, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", e.Kind, err)
	}

	return codec.Marshal(envelope{
		Kind:      e.Kind,
		PID:       e.Identity.PID,
		ParentPID: e.Identity.ParentPID,
		SessionID: e.Identity.SessionID,
		Timestamp: e.Timestamp.UnixNano(),
		Payload:   raw,
	})
}

// Decode parses wire bytes into a validated Event. Any failure wraps
// ErrMalformedEvent.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	e := Event{
		Kind: env.Kind,
		Identity: ProcessIdentity{
			PID:       env.PID,
			ParentPID: env.ParentPID,
			SessionID: env.SessionID,
		},
		Timestamp: time.Unix(0, env.Timestamp),
	}
	if len(env.Payload) == 0 || (len(env.Payload) == 1 && env.Payload[0] == cborNull) {
		return Event{}, fmt.Errorf("%w: %s without payload", ErrMalformedEvent, env.Kind)
	}

	var err error
	switch env.Kind {
	case KindStart:
		e.Start = &StartPayload{}
		err = codec.Unmarshal(env.Payload, e.Start)
	case KindSignal:
		e.Signal = &SignalPayload{}
		err = codec.Unmarshal(env.Payload, e.Signal)
	case KindExit:
		e.Exit = &ExitPayload{}
		err = codec.Unmarshal(env.Payload, e.Exit)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Kind, err)
	}

	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Write encodes e as one frame on w.
func Write(w io.Writer, e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	return codec.WriteFrame(w, data)
}

// Reader reads framed events from a stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next event. An error wrapping ErrMalformedEvent means one
// frame was skipped and reading may continue; io.EOF means the stream ended
// cleanly; any other error is fatal for the stream.
func (r *Reader) Next() (Event, error) {
	body, err := codec.ReadFrame(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, err
	}
	return Decode(body)
}
