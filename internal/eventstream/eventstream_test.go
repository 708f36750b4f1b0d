package eventstream

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/compdb-tracer/internal/codec"
	"github.com/mrzor/compdb-tracer/internal/event"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) HandleEvent(e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, n int) []event.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.snapshot()) >= n
	}, 10*time.Second, 5*time.Millisecond)
	return r.snapshot()
}

func startListener(t *testing.T, h Handler) *Listener {
	t.Helper()
	addr := Address{Network: "unix", Path: filepath.Join(t.TempDir(), "events.sock")}
	l, err := Listen(addr, h, nil)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{in: "unix:/tmp/s.sock", want: Address{Network: "unix", Path: "/tmp/s.sock"}},
		{in: "/tmp/s.sock", want: Address{Network: "unix", Path: "/tmp/s.sock"}},
		{in: "./s.sock", want: Address{Network: "unix", Path: "./s.sock"}},
		{in: "tcp:127.0.0.1:4000", want: Address{Network: "tcp", Path: "127.0.0.1:4000"}},
		{in: "tcp:127.0.0.1", wantErr: true},
		{in: "unix:", wantErr: true},
		{in: "udp:127.0.0.1:1", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressRoundTrip(t *testing.T) {
	addr := Address{Network: "tcp", Path: "127.0.0.1:9"}
	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)
}

func TestConcurrentSendersPreserveOrder(t *testing.T) {
	const senders = 128
	const perSender = 20

	rec := &recorder{}
	l := startListener(t, rec)

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(pid uint32) {
			defer wg.Done()
			r := NewReporter(l.Address(), time.Second)
			defer r.Close()
			id := event.ProcessIdentity{PID: pid, ParentPID: 1, SessionID: "s"}
			for i := 0; i < perSender; i++ {
				assert.NoError(t, r.Send(event.NewSignal(id, time.Now(), i+1)))
			}
		}(uint32(s + 100))
	}
	wg.Wait()

	events := rec.waitFor(t, senders*perSender)
	require.Len(t, events, senders*perSender)

	next := make(map[uint32]int)
	for _, e := range events {
		next[e.Identity.PID]++
		assert.Equal(t, next[e.Identity.PID], e.Signal.Number, "pid %d out of order", e.Identity.PID)
	}
	assert.Len(t, next, senders)
}

func TestMalformedFrameDoesNotCloseConnection(t *testing.T) {
	rec := &recorder{}
	l := startListener(t, rec)

	conn, err := net.Dial("unix", l.Address().Path)
	require.NoError(t, err)
	defer conn.Close()

	id := event.ProcessIdentity{PID: 5, ParentPID: 1, SessionID: "s"}
	require.NoError(t, codec.WriteFrame(conn, []byte{0xff, 0x00, 0x13}))
	require.NoError(t, event.Write(conn, event.NewExit(id, time.Now(), event.ExitPayload{Code: 3})))

	events := rec.waitFor(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Exit.Code)
}

func TestSendToDeadAddressFailsFast(t *testing.T) {
	addr := Address{Network: "unix", Path: filepath.Join(t.TempDir(), "missing.sock")}
	r := NewReporter(addr, 200*time.Millisecond)
	defer r.Close()

	id := event.ProcessIdentity{PID: 5, ParentPID: 1, SessionID: "s"}
	started := time.Now()
	err := r.Send(event.NewSignal(id, time.Now(), 2))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChannelSend))
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestSendInvalidEvent(t *testing.T) {
	r := NewReporter(Address{Network: "unix", Path: "/nonexistent"}, 0)
	err := r.Send(event.Event{Kind: event.Kind(42)})
	assert.ErrorIs(t, err, ErrChannelSend)
}

func TestTCPListener(t *testing.T) {
	rec := &recorder{}
	l, err := Listen(Address{Network: "tcp", Path: "127.0.0.1:0"}, rec, nil)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	assert.NotEqual(t, "127.0.0.1:0", l.Address().Path)

	r := NewReporter(l.Address(), time.Second)
	defer r.Close()
	id := event.ProcessIdentity{PID: 9, ParentPID: 1, SessionID: "s"}
	require.NoError(t, r.Send(event.NewStart(id, time.Now(), event.StartPayload{Command: []string{"cc"}, WorkingDir: "/"})))

	events := rec.waitFor(t, 1)
	assert.Equal(t, []string{"cc"}, events[0].Start.Command)
}

func TestStopIsIdempotent(t *testing.T) {
	l := startListener(t, &recorder{})
	require.NoError(t, l.Stop())
	assert.NoError(t, l.Stop())
}

func TestDiscard(t *testing.T) {
	var s Sender = Discard{}
	assert.NoError(t, s.Send(event.Event{}))
	assert.NoError(t, s.Close())
}
