package eventprocessor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
)

type mockHandler struct {
	starts  []event.Event
	signals []event.Event
	exits   []event.Event
	exitMD  []*procmeta.ProcessMetadata
}

func (m *mockHandler) HandleProcessStart(e event.Event, _ *procmeta.ProcessMetadata) error {
	m.starts = append(m.starts, e)
	return nil
}

func (m *mockHandler) HandleProcessSignal(e event.Event) error {
	m.signals = append(m.signals, e)
	return nil
}

func (m *mockHandler) HandleProcessExit(e event.Event, md *procmeta.ProcessMetadata) error {
	m.exits = append(m.exits, e)
	m.exitMD = append(m.exitMD, md)
	return nil
}

func newTestProcessor() (*Processor, *procmeta.Manager, *mockHandler) {
	manager := procmeta.NewManager()
	handler := &mockHandler{}
	return NewProcessor("session", manager, handler), manager, handler
}

var id = event.ProcessIdentity{PID: 42, ParentPID: 1, SessionID: "session"}

func startEvent(identity event.ProcessIdentity) event.Event {
	return event.NewStart(identity, time.Now(), event.StartPayload{
		Command:    []string{"cc", "-c", "a.c"},
		WorkingDir: "/src",
	})
}

func TestProcessor_StartExit(t *testing.T) {
	p, manager, handler := newTestProcessor()

	require.NoError(t, p.HandleEvent(startEvent(id)))
	require.NotNil(t, manager.Get(42))
	assert.Len(t, handler.starts, 1)

	require.NoError(t, p.HandleEvent(event.NewSignal(id, time.Now(), 2)))
	assert.Len(t, handler.signals, 1)

	require.NoError(t, p.HandleEvent(event.NewExit(id, time.Now(), event.ExitPayload{Code: 0})))
	assert.Nil(t, manager.Get(42))
	require.Len(t, handler.exits, 1)
	require.NotNil(t, handler.exitMD[0])
	assert.Equal(t, "cc -c a.c", handler.exitMD[0].CmdlineFull)
	assert.Empty(t, manager.Issues())
}

func TestProcessor_ExitWithoutStart(t *testing.T) {
	p, manager, handler := newTestProcessor()

	require.NoError(t, p.HandleEvent(event.NewExit(id, time.Now(), event.ExitPayload{Code: 1})))
	assert.Len(t, handler.exits, 1)
	assert.Nil(t, handler.exitMD[0])
	assert.Equal(t, []string{"exit without start"}, manager.Issues()[42])
}

func TestProcessor_PIDReuse(t *testing.T) {
	p, manager, _ := newTestProcessor()

	require.NoError(t, p.HandleEvent(startEvent(id)))
	require.NoError(t, p.HandleEvent(startEvent(id)))
	assert.Len(t, manager.Issues()[42], 1)
}

func TestProcessor_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		event event.Event
	}{
		{name: "wrong session", event: startEvent(event.ProcessIdentity{PID: 1, SessionID: "other"})},
		{name: "zero pid", event: startEvent(event.ProcessIdentity{SessionID: "session"})},
		{name: "missing payload", event: event.Event{Kind: event.KindExit, Identity: id}},
		{name: "unknown kind", event: event.Event{Kind: event.Kind(9), Identity: id}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, manager, handler := newTestProcessor()
			err := p.HandleEvent(tt.event)
			assert.ErrorIs(t, err, event.ErrMalformedEvent)
			assert.Empty(t, handler.starts)
			assert.Empty(t, handler.exits)
			assert.Empty(t, manager.Live())
		})
	}
}
