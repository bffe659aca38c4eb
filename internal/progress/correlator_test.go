package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindAndResolve(t *testing.T) {
	c := NewCorrelator()
	c.Bind("sess-1", "entry-1")

	entryID, ok := c.Resolve("sess-1")
	assert.True(t, ok)
	assert.Equal(t, "entry-1", entryID)

	sessionID, ok := c.SessionFor("entry-1")
	assert.True(t, ok)
	assert.Equal(t, "sess-1", sessionID)
}

func TestResolveUnknownSession(t *testing.T) {
	c := NewCorrelator()
	_, ok := c.Resolve("ghost")
	assert.False(t, ok)
}

func TestDropMakesRedeliveryNoOp(t *testing.T) {
	c := NewCorrelator()
	c.Bind("sess-1", "entry-1")

	c.Drop("sess-1")

	_, ok := c.Resolve("sess-1")
	assert.False(t, ok, "terminal redelivery must not resolve after Drop")
	_, ok = c.SessionFor("entry-1")
	assert.False(t, ok)

	// Dropping again is harmless
	c.Drop("sess-1")
}

func TestRebindReplacesOldSession(t *testing.T) {
	c := NewCorrelator()
	c.Bind("sess-1", "entry-1")
	// Retry after failure binds a fresh session to the same entry
	c.Bind("sess-2", "entry-1")

	_, ok := c.Resolve("sess-1")
	assert.False(t, ok, "old session must no longer resolve")

	entryID, ok := c.Resolve("sess-2")
	assert.True(t, ok)
	assert.Equal(t, "entry-1", entryID)
}

func TestDropEntry(t *testing.T) {
	c := NewCorrelator()
	c.Bind("sess-1", "entry-1")

	sessionID, ok := c.DropEntry("entry-1")
	assert.True(t, ok)
	assert.Equal(t, "sess-1", sessionID)

	_, ok = c.Resolve("sess-1")
	assert.False(t, ok)

	_, ok = c.DropEntry("entry-1")
	assert.False(t, ok)
}
