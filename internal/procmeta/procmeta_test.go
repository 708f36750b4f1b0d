package procmeta

import (
	"testing"
	"time"

	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnviron_Basic(t *testing.T) {
	raw := []string{
		"PATH=/usr/bin:/bin",
		"HOME=/home/user",
		"CC=clang",
	}

	result := ParseEnviron(raw)

	expected := map[string]string{
		"PATH": "/usr/bin:/bin",
		"HOME": "/home/user",
		"CC":   "clang",
	}

	assert.Equal(t, expected, result)
}

func TestParseEnviron_EmptyValue(t *testing.T) {
	result := ParseEnviron([]string{"EMPTY_VAR=", "NORMAL_VAR=value"})

	assert.Len(t, result, 2)
	assert.Equal(t, "", result["EMPTY_VAR"])
	assert.Equal(t, "value", result["NORMAL_VAR"])
}

func TestParseEnviron_MultipleEquals(t *testing.T) {
	result := ParseEnviron([]string{"CFLAGS=-DFOO=1 -DBAR=2", "EQUATION=x=y=z"})

	assert.Equal(t, "-DFOO=1 -DBAR=2", result["CFLAGS"])
	assert.Equal(t, "x=y=z", result["EQUATION"])
}

func TestParseEnviron_DuplicateKeys(t *testing.T) {
	result := ParseEnviron([]string{"KEY=value1", "KEY=value2", "KEY=value3"})

	assert.Len(t, result, 1)
	assert.Equal(t, "value3", result["KEY"], "last value should win")
}

func TestParseEnviron_MalformedEntries(t *testing.T) {
	raw := []string{
		"NOEQUALS",
		"=VALUE",
		"VALID=value",
		"",
		"ANOTHER_VALID=test",
	}

	result := ParseEnviron(raw)

	assert.Len(t, result, 2, "only valid entries should be parsed")
	assert.Contains(t, result, "VALID")
	assert.Contains(t, result, "ANOTHER_VALID")
	assert.NotContains(t, result, "NOEQUALS")
	assert.NotContains(t, result, "")
}

func TestParseCmdline_WithSpaces(t *testing.T) {
	raw := []string{"cc", "-DMSG=\"hello world\"", "-c", "a.c"}

	args, fullCmd := parseCmdline(raw)

	require.Len(t, args, 4)
	assert.Equal(t, "-DMSG=\"hello world\"", args[1])
	assert.Equal(t, "cc -DMSG=\"hello world\" -c a.c", fullCmd)
}

func TestParseCmdline_CopiesInput(t *testing.T) {
	raw := []string{"cc", "a.c"}

	args, _ := parseCmdline(raw)
	args[0] = "changed"

	assert.Equal(t, "cc", raw[0])
}

func TestFromStart(t *testing.T) {
	id := event.ProcessIdentity{PID: 7, ParentPID: 3, SessionID: "s"}
	ts := time.Unix(100, 0)
	e := event.NewStart(id, ts, event.StartPayload{
		Command:     []string{"gcc", "-c", "x.c"},
		Executable:  "/usr/bin/gcc",
		WorkingDir:  "/src",
		Environment: map[string]string{"A": "1"},
	})

	md := FromStart(e)
	require.NotNil(t, md)
	assert.Equal(t, id, md.Identity)
	assert.Equal(t, "gcc -c x.c", md.CmdlineFull)
	assert.Equal(t, "/src", md.WorkingDir)
	assert.Equal(t, "/usr/bin/gcc", md.Executable)
	assert.True(t, ts.Equal(md.Started))

	assert.Nil(t, FromStart(event.NewExit(id, ts, event.ExitPayload{})))
}
