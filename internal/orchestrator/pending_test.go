package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingSetAddRemoveContains(t *testing.T) {
	p := newPendingSet()
	assert.False(t, p.Contains("http://a"))

	p.Add("http://a")
	assert.True(t, p.Contains("http://a"))
	assert.ElementsMatch(t, []string{"http://a"}, p.Snapshot())

	p.Remove("http://a")
	assert.False(t, p.Contains("http://a"))
	assert.Empty(t, p.Snapshot())
}

func TestPendingSetRemoveIsIdempotent(t *testing.T) {
	p := newPendingSet()
	p.Remove("http://never-added") // must not panic
}
