package session

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/compdb-tracer/internal/codec"
	"github.com/mrzor/compdb-tracer/internal/event"
)

func sampleSession() *Session {
	id := event.ProcessIdentity{PID: 10, ParentPID: 1, SessionID: "abc"}
	orphan := event.ProcessIdentity{PID: 11, ParentPID: 10, SessionID: "abc"}
	ts := time.Unix(1700000000, 123)
	return &Session{
		ID: "abc",
		Records: []Record{
			{Seq: 1, Event: event.NewStart(id, ts, event.StartPayload{
				Command:       []string{"cc", "-c", "a.c"},
				Executable:    "/usr/bin/cc",
				WorkingDir:    "/src",
				Environment:   map[string]string{"PATH": "/usr/bin"},
				ResponseFiles: map[string]string{"objs.rsp": "-c a.c"},
			})},
			{Seq: 2, Event: event.NewStart(orphan, ts, event.StartPayload{Command: []string{"as"}, WorkingDir: "/src"})},
			{Seq: 3, Event: event.NewSignal(id, ts, 2)},
			{Seq: 4, Event: event.NewExit(id, ts, event.ExitPayload{Signal: 2})},
		},
		MissingExit: []event.ProcessIdentity{orphan},
		Issues:      map[uint32][]string{42: {"exit without start"}},
	}
}

func assertSameSession(t *testing.T, want, got *Session) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Incomplete, got.Incomplete)
	assert.Equal(t, want.MissingExit, got.MissingExit)
	assert.Equal(t, want.Issues, got.Issues)
	assert.Equal(t, want.IssueCount(), got.IssueCount())
	require.Len(t, got.Records, len(want.Records))
	for i := range want.Records {
		assert.Equal(t, want.Records[i].Seq, got.Records[i].Seq)
		assert.Equal(t, want.Records[i].Event.String(), got.Records[i].Event.String())
		assert.True(t, want.Records[i].Event.Timestamp.Equal(got.Records[i].Event.Timestamp))
	}
	assert.Equal(t, want.Records[0].Event.Start, got.Records[0].Event.Start)
}

func TestWriteRead(t *testing.T) {
	s := sampleSession()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	got, err := Read(&buf)
	require.NoError(t, err)
	assertSameSession(t, s, got)
}

func TestWriteReadFile(t *testing.T) {
	for _, name := range []string{"events.cbor", "events.cbor.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s := sampleSession()
			s.Incomplete = true
			require.NoError(t, WriteFile(path, s))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assertSameSession(t, s, got)
		})
	}
}

func TestCompressedFileIsZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.zst")
	require.NoError(t, WriteFile(path, sampleSession()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, data[:4])
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	data, err := codec.Marshal(header{Version: 99, SessionID: "x"})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, codec.WriteFrame(&buf, data))

	_, err = Read(&buf)
	assert.ErrorContains(t, err, "unsupported event log version")
}

func TestReadSkipsMalformedEvents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Session{ID: "abc"}))
	require.NoError(t, codec.WriteFrame(&buf, []byte{0xa0}))
	id := event.ProcessIdentity{PID: 3, SessionID: "abc"}
	require.NoError(t, event.Write(&buf, event.NewExit(id, time.Now(), event.ExitPayload{})))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, uint64(1), got.Records[0].Seq)
}

func TestStartsAndExits(t *testing.T) {
	s := sampleSession()
	assert.Len(t, s.Starts(), 2)
	exits := s.Exits()
	require.Len(t, exits, 1)
	assert.True(t, exits[s.Records[0].Event.Identity].Signaled())
}
