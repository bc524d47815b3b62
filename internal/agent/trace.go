package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StepKind tags one entry of an agent trace, per §3: thinking, tool_call,
// or final.
type StepKind string

const (
	StepThinking StepKind = "thinking"
	StepToolCall StepKind = "tool_call"
	StepFinal    StepKind = "final"
)

// TraceStep is one ordered entry of the ephemeral, per-query agent trace.
type TraceStep struct {
	Kind      StepKind        `json:"kind"`
	At        time.Time       `json:"at"`
	Content   string          `json:"content,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolArgs  json.RawMessage `json:"tool_args,omitempty"`
	ToolError string          `json:"tool_error,omitempty"`
}

// Trace accumulates the steps of a single query, guarded by a mutex since
// step-streamed and token-streamed modes append from the same goroutine
// that runs the loop but callers may read a snapshot concurrently (e.g. a
// status handler).
type Trace struct {
	mu    sync.Mutex
	runID string
	steps []TraceStep
}

// NewTrace starts an empty trace for one query.
func NewTrace() *Trace {
	return &Trace{runID: uuid.New().String()}
}

// RunID identifies this trace for correlation with logs.
func (t *Trace) RunID() string { return t.runID }

func (t *Trace) appendThinking(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, TraceStep{Kind: StepThinking, At: time.Now(), Content: content})
}

func (t *Trace) appendToolCall(name string, args json.RawMessage, result string, toolErr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, TraceStep{
		Kind: StepToolCall, At: time.Now(),
		ToolName: name, ToolArgs: args, Content: result, ToolError: toolErr,
	})
}

func (t *Trace) appendFinal(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, TraceStep{Kind: StepFinal, At: time.Now(), Content: content})
}

// Steps returns a snapshot of the trace so far, safe to range over
// without holding the trace's lock.
func (t *Trace) Steps() []TraceStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// Recorder writes a trace's steps as JSONL, one line per step, flushed
// immediately — grounded on the teacher's crash-safe JSONL trace writer,
// trimmed to the three-step-kind shape this driver actually produces
// (no replay harness: a per-query trace is consumed once, by whichever
// caller set react_enable_trace, not replayed later).
type Recorder struct {
	mu     sync.Mutex
	writer io.Writer
	file   *os.File
}

// NewRecorder wraps w as a trace destination.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{writer: w}
}

// NewFileRecorder creates (or truncates) path and records to it. The
// caller must Close() when done.
func NewFileRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	return &Recorder{writer: f, file: f}, nil
}

// Write appends one step as a JSON line.
func (r *Recorder) Write(step TraceStep) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(step)
	if err != nil {
		return
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return
	}
	if r.file != nil {
		_ = r.file.Sync()
	}
}

// Close closes the underlying file if one was opened by NewFileRecorder.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
