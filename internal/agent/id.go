package agent

import "github.com/google/uuid"

// newID mints a correlation id for a model-call or tool-call step, per
// the teacher's convention of using uuid.New().String() throughout
// internal/agent rather than hand-rolled counters.
func newID() string {
	return uuid.New().String()
}
