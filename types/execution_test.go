package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateExecutionID(t *testing.T) {
	id := GenerateExecutionID(time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC))
	assert.Equal(t, "exec_20250601_143005", id)
	assert.NoError(t, ValidateExecutionID(id))
}

func TestValidateExecutionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "generated format", id: "exec_20250601_143005"},
		{name: "caller supplied", id: "nightly-run-17"},
		{name: "empty", id: "", wantErr: true},
		{name: "path separator", id: "exec/evil", wantErr: true},
		{name: "backslash", id: `exec\evil`, wantErr: true},
		{name: "whitespace", id: "exec 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExecution_IsSuccessful(t *testing.T) {
	exec, err := NewExecution("exec_20250601_143005")
	require.NoError(t, err)
	assert.True(t, exec.IsSuccessful())

	passing, err := exec.AddScenario("works", "Feature A", nil)
	require.NoError(t, err)
	require.NoError(t, passing.Start())
	passing.Complete()
	assert.True(t, exec.IsSuccessful())

	failing, err := exec.AddScenario("breaks", "Feature A", nil)
	require.NoError(t, err)
	require.NoError(t, failing.Start())
	failing.Fail("Intentional failure")

	// Computed on demand: the late-added failing scenario flips the result.
	assert.False(t, exec.IsSuccessful())

	stats := exec.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
}

func TestExecution_AddScenarioAfterComplete(t *testing.T) {
	exec, err := NewExecution("exec_20250601_143005")
	require.NoError(t, err)

	exec.Complete()
	_, end := exec.EndTime()
	assert.True(t, end)

	_, err = exec.AddScenario("late", "Feature", nil)
	require.Error(t, err)
	var stateErr *InvalidStateError
	assert.True(t, errors.As(err, &stateErr))
}

func TestExecution_CompleteStampsOnce(t *testing.T) {
	clock := fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	exec, err := newExecution("exec_once", clock)
	require.NoError(t, err)

	exec.Complete()
	first, _ := exec.EndTime()
	exec.Complete()
	second, _ := exec.EndTime()
	assert.Equal(t, first, second)
}

func TestExecution_Attachments(t *testing.T) {
	exec, err := NewExecution("exec_att")
	require.NoError(t, err)
	assert.Empty(t, exec.Attachments())

	exec.AddAttachment(Attachment{Path: "/tmp/run.webm", Type: AttachmentVideo})

	atts := exec.Attachments()
	require.Len(t, atts, 1)

	// Mutating the returned slice must not leak into the execution.
	atts[0].Path = "/tmp/other.webm"
	assert.Equal(t, "/tmp/run.webm", exec.Attachments()[0].Path)
}

func TestExecution_Metadata(t *testing.T) {
	exec, err := NewExecution("exec_meta")
	require.NoError(t, err)

	exec.SetMetadata("browser", "chromium")
	exec.SetMetadata("browser", "firefox")

	meta := exec.Metadata()
	assert.Equal(t, map[string]string{"browser": "firefox"}, meta)

	// Mutating the returned map must not leak into the execution.
	meta["browser"] = "webkit"
	assert.Equal(t, "firefox", exec.Metadata()["browser"])
}
