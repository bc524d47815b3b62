package agent

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceAccumulatesStepsInOrder(t *testing.T) {
	tr := NewTrace()
	require.NotEmpty(t, tr.RunID())

	tr.appendThinking("considering the query")
	tr.appendToolCall("search", json.RawMessage(`{"q":"go"}`), "result text", "")
	tr.appendFinal("final answer")

	steps := tr.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, StepThinking, steps[0].Kind)
	assert.Equal(t, StepToolCall, steps[1].Kind)
	assert.Equal(t, "search", steps[1].ToolName)
	assert.Equal(t, StepFinal, steps[2].Kind)
	assert.Equal(t, "final answer", steps[2].Content)
}

func TestTraceStepsSnapshotIsIndependent(t *testing.T) {
	tr := NewTrace()
	tr.appendThinking("one")

	snapshot := tr.Steps()
	require.Len(t, snapshot, 1)

	tr.appendThinking("two")
	assert.Len(t, snapshot, 1, "earlier snapshot must not see later appends")
	assert.Len(t, tr.Steps(), 2)
}

func TestRecorderWritesJSONLToWriter(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	rec.Write(TraceStep{Kind: StepThinking, Content: "hello"})
	rec.Write(TraceStep{Kind: StepFinal, Content: "done"})

	lines := splitNonEmptyLines(buf.String())
	require.Len(t, lines, 2)

	var first TraceStep
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, StepThinking, first.Kind)
	assert.Equal(t, "hello", first.Content)
}

func TestFileRecorderPersistsAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	rec.Write(TraceStep{Kind: StepToolCall, ToolName: "search"})
	require.NoError(t, rec.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitNonEmptyLines(string(data))
	require.Len(t, lines, 1)

	var step TraceStep
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &step))
	assert.Equal(t, "search", step.ToolName)
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range bytes.Split([]byte(s), []byte("\n")) {
		if len(line) > 0 {
			out = append(out, string(line))
		}
	}
	return out
}
