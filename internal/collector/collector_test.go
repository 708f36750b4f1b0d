package collector

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/eventprocessor"
	"github.com/mrzor/compdb-tracer/internal/eventstream"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
)

const sessionID = "test-session"

var top = event.ProcessIdentity{PID: 1000, ParentPID: 1, SessionID: sessionID}

type fixture struct {
	collector *Collector
	processor *eventprocessor.Processor
}

func newFixture(grace time.Duration) *fixture {
	manager := procmeta.NewManager()
	c := New(Options{SessionID: sessionID, TopLevel: top, GracePeriod: grace}, manager)
	return &fixture{collector: c, processor: eventprocessor.NewProcessor(sessionID, manager, c)}
}

func start(id event.ProcessIdentity, args ...string) event.Event {
	return event.NewStart(id, time.Now(), event.StartPayload{Command: args, WorkingDir: "/src"})
}

func exit(id event.ProcessIdentity, code int) event.Event {
	return event.NewExit(id, time.Now(), event.ExitPayload{Code: code})
}

func TestLifecycle(t *testing.T) {
	f := newFixture(20 * time.Millisecond)
	c := f.collector

	assert.Equal(t, StateIdle, c.State())
	c.Start()
	assert.Equal(t, StateOpen, c.State())

	require.NoError(t, f.processor.HandleEvent(start(top, "make")))
	require.NoError(t, f.processor.HandleEvent(exit(top, 0)))
	assert.Equal(t, StateClosing, c.State())

	select {
	case <-c.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not close after grace period")
	}
	assert.Equal(t, StateClosed, c.State())

	s, err := c.Finalize(time.Second)
	require.NoError(t, err)
	assert.False(t, s.Incomplete)
	assert.Nil(t, s.Issues)
	require.Len(t, s.Records, 2)
	assert.Equal(t, uint64(1), s.Records[0].Seq)
	assert.Equal(t, uint64(2), s.Records[1].Seq)
}

func TestFirstEventOpens(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.processor.HandleEvent(start(top, "make")))
	assert.Equal(t, StateOpen, f.collector.State())
}

func TestLateEventsWithinGraceAreKept(t *testing.T) {
	f := newFixture(200 * time.Millisecond)
	child := event.ProcessIdentity{PID: 1001, ParentPID: top.PID, SessionID: sessionID}

	require.NoError(t, f.processor.HandleEvent(start(top, "make")))
	require.NoError(t, f.processor.HandleEvent(exit(top, 0)))
	require.NoError(t, f.processor.HandleEvent(start(child, "cc", "-c", "a.c")))
	require.NoError(t, f.processor.HandleEvent(exit(child, 0)))

	s, err := f.collector.Finalize(5 * time.Second)
	require.NoError(t, err)
	assert.Len(t, s.Records, 4)
	assert.Empty(t, s.MissingExit)
}

func TestEventsAfterCloseAreDropped(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.processor.HandleEvent(exit(top, 0)))
	s, err := f.collector.Finalize(5 * time.Second)
	require.NoError(t, err)

	late := event.ProcessIdentity{PID: 1002, ParentPID: top.PID, SessionID: sessionID}
	require.NoError(t, f.processor.HandleEvent(start(late, "cc")))
	assert.Len(t, s.Records, 1)

	again, err := f.collector.Finalize(time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, again.Records, 1)
}

func TestFinalizeTimeout(t *testing.T) {
	f := newFixture(0)
	child := event.ProcessIdentity{PID: 1003, ParentPID: top.PID, SessionID: sessionID}
	require.NoError(t, f.processor.HandleEvent(start(top, "make")))
	require.NoError(t, f.processor.HandleEvent(start(child, "cc")))

	s, err := f.collector.Finalize(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrSessionTimeout)
	require.NotNil(t, s)
	assert.True(t, s.Incomplete)
	assert.Equal(t, []event.ProcessIdentity{top, child}, s.MissingExit)
	assert.Equal(t, StateClosed, f.collector.State())
}

func TestCaptureIssuesReachSession(t *testing.T) {
	f := newFixture(0)
	stray := event.ProcessIdentity{PID: 1004, ParentPID: top.PID, SessionID: sessionID}
	reused := event.ProcessIdentity{PID: 1005, ParentPID: top.PID, SessionID: sessionID}

	require.NoError(t, f.processor.HandleEvent(start(top, "make")))
	require.NoError(t, f.processor.HandleEvent(exit(stray, 0)))
	require.NoError(t, f.processor.HandleEvent(start(reused, "cc", "-c", "a.c")))
	require.NoError(t, f.processor.HandleEvent(start(reused, "cc", "-c", "b.c")))
	require.NoError(t, f.processor.HandleEvent(exit(reused, 0)))
	require.NoError(t, f.processor.HandleEvent(exit(top, 0)))

	s, err := f.collector.Finalize(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, map[uint32][]string{
		stray.PID:  {"exit without start"},
		reused.PID: {`pid reused before exit of "cc -c a.c"`},
	}, s.Issues)
	assert.Empty(t, s.MissingExit)
}

func TestNestedStartExitPairing(t *testing.T) {
	f := newFixture(0)
	outer := event.ProcessIdentity{PID: 2000, ParentPID: top.PID, SessionID: sessionID}
	inner := event.ProcessIdentity{PID: 2001, ParentPID: outer.PID, SessionID: sessionID}

	for _, e := range []event.Event{
		start(top, "make"),
		start(outer, "gcc", "a.c"),
		start(inner, "cc1", "a.c"),
		exit(inner, 0),
		exit(outer, 0),
		exit(top, 0),
	} {
		require.NoError(t, f.processor.HandleEvent(e))
	}

	s, err := f.collector.Finalize(5 * time.Second)
	require.NoError(t, err)
	assert.Empty(t, s.MissingExit)

	starts := 0
	exits := s.Exits()
	for _, r := range s.Starts() {
		starts++
		assert.Contains(t, exits, r.Event.Identity)
	}
	assert.Equal(t, 3, starts)
}

func TestConcurrentReporters(t *testing.T) {
	const senders = 120

	f := newFixture(100 * time.Millisecond)
	f.collector.Start()

	addr := eventstream.Address{Network: "unix", Path: filepath.Join(t.TempDir(), "s.sock")}
	l, err := eventstream.Listen(addr, f.processor, nil)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(pid uint32) {
			defer wg.Done()
			r := eventstream.NewReporter(l.Address(), 2*time.Second)
			defer r.Close()
			id := event.ProcessIdentity{PID: pid, ParentPID: top.PID, SessionID: sessionID}
			assert.NoError(t, r.Send(start(id, "cc", "-c", "x.c")))
			assert.NoError(t, r.Send(event.NewSignal(id, time.Now(), 15)))
			assert.NoError(t, r.Send(exit(id, 0)))
		}(uint32(5000 + i))
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		f.collector.mu.Lock()
		defer f.collector.mu.Unlock()
		return len(f.collector.records) == senders*3
	}, 10*time.Second, 5*time.Millisecond)

	require.NoError(t, f.processor.HandleEvent(exit(top, 0)))
	s, err := f.collector.Finalize(5 * time.Second)
	require.NoError(t, err)
	require.Len(t, s.Records, senders*3+1)
	assert.Empty(t, s.MissingExit)

	order := make(map[uint32][]event.Kind)
	for i, r := range s.Records {
		assert.Equal(t, uint64(i+1), r.Seq)
		order[r.Event.Identity.PID] = append(order[r.Event.Identity.PID], r.Event.Kind)
	}
	for pid, kinds := range order {
		if pid == top.PID {
			continue
		}
		assert.Equal(t, []event.Kind{event.KindStart, event.KindSignal, event.KindExit}, kinds, "pid %d", pid)
	}
}
