package history

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/checkpoint"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

func TestTruncateOversizedToolReturnsBoundary(t *testing.T) {
	tmp := t.TempDir()
	exactly := models.ConversationItem{Type: models.ItemTypeToolResult, ToolCallID: "a", ToolOutput: strings.Repeat("x", 10)}
	oneOver := models.ConversationItem{Type: models.ItemTypeToolResult, ToolCallID: "b", ToolOutput: strings.Repeat("x", 11)}

	out, err := TruncateOversizedToolReturns([]models.ConversationItem{exactly, oneOver}, 10, tmp)
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("x", 10), out[0].ToolOutput, "exactly at the limit must not truncate")
	assert.Contains(t, out[1].ToolOutput, "[Truncated — full output (11 bytes) saved to")
}

func TestCompactionTriggerScenario(t *testing.T) {
	items := make([]models.ConversationItem, 50)
	for i := range items {
		items[i] = models.ConversationItem{Type: models.ItemTypeUserMessage, Content: strings.Repeat("a", 4000)}
	}
	cfg := CompactConfig{ContextWindowTokens: 10000, WarningThreshold: 0.80, CompactionThreshold: 0.5, KeepRecent: 5}

	out, res := CompactOnTokenPressure(items, cfg)
	require.True(t, res.Compacted)
	require.Len(t, out, 6)
	assert.True(t, strings.HasPrefix(out[0].Content, "[Compacted 45 earlier messages]"))
}

func TestWarningPrecedesCompaction(t *testing.T) {
	items := make([]models.ConversationItem, 10)
	for i := range items {
		items[i] = models.ConversationItem{Type: models.ItemTypeUserMessage, Content: strings.Repeat("a", 3300)}
	}
	// usage sits between warning (0.80) and compaction (0.90).
	cfg := CompactConfig{ContextWindowTokens: 10000, WarningThreshold: 0.80, CompactionThreshold: 0.90, KeepRecent: 5}
	_, res := CompactOnTokenPressure(items, cfg)
	assert.True(t, res.Warned)
	assert.False(t, res.Compacted)
}

func TestMaterializeSubscriptionsRejectsEscapingPath(t *testing.T) {
	ws, err := workspace.Resolve(t.TempDir(), "alpha")
	require.NoError(t, err)
	require.NoError(t, ws.MkdirAll())

	subs := []Subscription{{Kind: SubscriptionFile, Path: "/etc/passwd"}}
	out := MaterializeSubscriptions(nil, subs, ws)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Content, "escapes workspace root")
}

func TestMaterializeSubscriptionsStripsPriorMessage(t *testing.T) {
	ws, err := workspace.Resolve(t.TempDir(), "alpha")
	require.NoError(t, err)
	require.NoError(t, ws.MkdirAll())

	prior := models.ConversationItem{Type: models.ItemTypeUserMessage, Content: materializationMarker + "\nstale"}
	other := models.ConversationItem{Type: models.ItemTypeAssistantMessage, Content: "hi"}
	out := MaterializeSubscriptions([]models.ConversationItem{prior, other}, nil, ws)
	require.Len(t, out, 1)
	assert.Equal(t, "hi", out[0].Content)
}

func TestInjectTopicContextOrdersByPriority(t *testing.T) {
	topics := []Topic{
		{Name: "low", Priority: models.TopicLow, Instructions: "L"},
		{Name: "critical", Priority: models.TopicCritical, Instructions: "C"},
		{Name: "normal", Priority: models.TopicNormal, Instructions: "N"},
	}
	out := InjectTopicContext(nil, topics)
	require.Len(t, out, 1)
	text := out[0].Content
	assert.True(t, strings.Index(text, "[topic:critical]") < strings.Index(text, "[topic:normal]"))
	assert.True(t, strings.Index(text, "[topic:normal]") < strings.Index(text, "[topic:low]"))
}

func TestCheckpointStageNoopWithoutBoundScope(t *testing.T) {
	err := CheckpointStage(context.Background(), nil, 0)
	assert.NoError(t, err)
}

func TestRunWritesCheckpointWhenScopeBound(t *testing.T) {
	db, err := checkpoint.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := checkpoint.NewStore(db)
	ctx := checkpoint.WithScope(context.Background(), store, "w1")

	ws, err := workspace.Resolve(t.TempDir(), "alpha")
	require.NoError(t, err)
	require.NoError(t, ws.MkdirAll())

	opts := Options{
		MaxToolReturnBytes: DefaultMaxToolReturnBytes,
		TmpDir:             ws.Tmp,
		CompactConfig:      CompactConfig{ContextWindowTokens: 100000, WarningThreshold: 0.8, CompactionThreshold: 0.9, KeepRecent: 10},
		Workspace:          ws,
		RoundCount:         1,
	}
	items := []models.ConversationItem{{Type: models.ItemTypeUserMessage, Content: "hi"}}
	_, _, err = Run(ctx, items, opts)
	require.NoError(t, err)

	saved, ok, err := store.Load("w1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, saved, "hi")
}
