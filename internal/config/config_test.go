package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/models"
)

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve()
	require.NoError(t, err)
	assert.Equal(t, DefaultContextWindowTokens, cfg.ContextWindowTokens)
	assert.Equal(t, DefaultWarningThreshold, cfg.WarningThreshold)
	assert.Equal(t, DefaultCompactionThreshold, cfg.CompactionThreshold)
	assert.Equal(t, DefaultKeepRecent, cfg.KeepRecent)
	assert.Equal(t, "default", cfg.Agent)
}

func TestResolveOverridesFromEnv(t *testing.T) {
	t.Setenv("AUTOPOIESIS_AGENT", "alpha")
	t.Setenv("CONTEXT_WINDOW_TOKENS", "50000")
	t.Setenv("CONTEXT_WARNING_THRESHOLD", "0.5")
	t.Setenv("COMPACTION_THRESHOLD", "0.7")
	t.Setenv("COMPACTION_KEEP_RECENT", "8")

	cfg, err := Resolve()
	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.Agent)
	assert.Equal(t, 50000, cfg.ContextWindowTokens)
	assert.Equal(t, 0.5, cfg.WarningThreshold)
	assert.Equal(t, 0.7, cfg.CompactionThreshold)
	assert.Equal(t, 8, cfg.KeepRecent)
}

func TestResolveRejectsMalformedContextWindow(t *testing.T) {
	t.Setenv("CONTEXT_WINDOW_TOKENS", "not-a-number")
	_, err := Resolve()
	require.Error(t, err)
	kind, ok := models.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrorKindMissingEnv, kind)
}

func TestResolveRejectsWarningAboveCompaction(t *testing.T) {
	t.Setenv("CONTEXT_WARNING_THRESHOLD", "0.95")
	t.Setenv("COMPACTION_THRESHOLD", "0.90")
	_, err := Resolve()
	require.Error(t, err)
}

func TestResolveRejectsNegativeKeepRecent(t *testing.T) {
	t.Setenv("COMPACTION_KEEP_RECENT", "-1")
	_, err := Resolve()
	require.Error(t, err)
}
