package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/models"
)

func TestGetUnknownAgentFails(t *testing.T) {
	r := New()
	_, err := r.Get("ghost")
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindUnknownAgent, kind)
}

func TestGetDefaultWithExactlyOneRuntime(t *testing.T) {
	r := New()
	r.Register(&Runtime{AgentID: "alpha"})
	rt, err := r.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, "alpha", rt.AgentID)
}

func TestGetDefaultFallsBackToSentinel(t *testing.T) {
	r := New()
	r.Register(&Runtime{AgentID: "alpha"})
	r.Register(&Runtime{AgentID: "beta"})
	r.Register(&Runtime{AgentID: defaultSentinel})

	rt, err := r.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, defaultSentinel, rt.AgentID)
}

func TestGetDefaultFailsWithAmbiguousRuntimes(t *testing.T) {
	r := New()
	r.Register(&Runtime{AgentID: "alpha"})
	r.Register(&Runtime{AgentID: "beta"})

	_, err := r.GetDefault()
	require.Error(t, err)
	kind, _ := models.KindOf(err)
	assert.Equal(t, models.ErrorKindUnknownAgent, kind)
}

func TestResetClearsRegistry(t *testing.T) {
	r := New()
	r.Register(&Runtime{AgentID: "alpha"})
	r.Reset()
	_, err := r.Get("alpha")
	assert.Error(t, err)
}
