package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autopoiesis-dev/agentcore/internal/checkpoint"
	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

// DefaultMaxToolReturnBytes matches spec.md §4.5's default.
const DefaultMaxToolReturnBytes = 5 * 1024

// TruncateOversizedToolReturns rewrites any tool-return item whose content
// exceeds maxBytes, spilling the full content under tmpDir and replacing it
// with a head slice plus a pointer message. A single-byte-over triggers
// truncation; one byte under does not.
func TruncateOversizedToolReturns(items []models.ConversationItem, maxBytes int, tmpDir string) ([]models.ConversationItem, error) {
	out := make([]models.ConversationItem, len(items))
	copy(out, items)
	for i, item := range out {
		if item.Type != models.ItemTypeToolResult {
			continue
		}
		if len(item.ToolOutput) <= maxBytes {
			continue
		}
		spillPath, err := spillToolOutput(tmpDir, item.ToolCallID, item.ToolOutput)
		if err != nil {
			return nil, err
		}
		item.ToolOutput = fmt.Sprintf("%s\n[Truncated — full output (%d bytes) saved to %s]",
			item.ToolOutput[:maxBytes], len(item.ToolOutput), spillPath)
		out[i] = item
	}
	return out, nil
}

func spillToolOutput(tmpDir, toolCallID, content string) (string, error) {
	day := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(tmpDir, day)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: spill dir: %w", err)
	}
	name := toolCallID
	if name == "" {
		name = uuid.NewString()
	}
	path := filepath.Join(dir, name+".log")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("history: spill write: %w", err)
	}
	return path, nil
}

// CompactConfig parameterizes stage 2.
type CompactConfig struct {
	ContextWindowTokens int
	WarningThreshold    float64
	CompactionThreshold float64
	KeepRecent          int
}

// CompactResult reports what stage 2 decided, for logging and tests.
type CompactResult struct {
	EstimatedTokens int
	Warned          bool
	Compacted       bool
}

// CompactOnTokenPressure estimates total tokens; warns at WarningThreshold,
// compacts (strictly) above CompactionThreshold by collapsing everything
// but the last KeepRecent messages into one synthetic summary message.
// Compaction triggers iff usage/window > compaction_threshold AND
// len(messages) > keep_recent; warning triggers iff usage/window >=
// warning_threshold. Warning always precedes or coincides with compaction.
func CompactOnTokenPressure(items []models.ConversationItem, cfg CompactConfig) ([]models.ConversationItem, CompactResult) {
	texts := make([]string, 0, len(items))
	for _, it := range items {
		texts = append(texts, renderForEstimate(it))
	}
	total := EstimateTotalTokens(texts)
	res := CompactResult{EstimatedTokens: total}

	if cfg.ContextWindowTokens <= 0 {
		return items, res
	}
	usage := float64(total) / float64(cfg.ContextWindowTokens)
	res.Warned = usage >= cfg.WarningThreshold

	if usage <= cfg.CompactionThreshold || len(items) <= cfg.KeepRecent {
		return items, res
	}

	res.Compacted = true
	compactedCount := len(items) - cfg.KeepRecent
	var b strings.Builder
	fmt.Fprintf(&b, "[Compacted %d earlier messages]", compactedCount)
	for _, it := range items[:compactedCount] {
		prefix := string(it.Type)
		line := renderForEstimate(it)
		if len(line) > 120 {
			line = line[:120] + "…"
		}
		fmt.Fprintf(&b, "\n%s: %s", prefix, line)
	}
	summary := models.ConversationItem{Type: models.ItemTypeUserMessage, Content: b.String()}
	out := make([]models.ConversationItem, 0, cfg.KeepRecent+1)
	out = append(out, summary)
	out = append(out, items[compactedCount:]...)
	return out, res
}

func renderForEstimate(it models.ConversationItem) string {
	switch it.Type {
	case models.ItemTypeToolResult:
		return it.ToolOutput
	default:
		return it.Content
	}
}

// SubscriptionKind is the kind of live content a subscription materializes.
type SubscriptionKind string

const (
	SubscriptionFile      SubscriptionKind = "file"
	SubscriptionLines     SubscriptionKind = "lines"
	SubscriptionKnowledge SubscriptionKind = "knowledge"
)

// Subscription is one active subscription re-read on every turn.
type Subscription struct {
	Kind    SubscriptionKind
	Path    string
	Pattern string // regex, used by SubscriptionLines
}

const materializationMarker = "__materialization__"

// MaterializeSubscriptions strips any prior materialization message and
// prepends one fresh materialization message built from re-reading every
// active subscription. File reads that escape the workspace root, and
// regex patterns with syntax errors, yield an in-band error string rather
// than an exception.
func MaterializeSubscriptions(items []models.ConversationItem, subs []Subscription, ws workspace.Paths) []models.ConversationItem {
	filtered := make([]models.ConversationItem, 0, len(items))
	for _, it := range items {
		if it.Type == models.ItemTypeUserMessage && strings.HasPrefix(it.Content, materializationMarker) {
			continue
		}
		filtered = append(filtered, it)
	}
	if len(subs) == 0 {
		return filtered
	}

	var b strings.Builder
	b.WriteString(materializationMarker + "\n")
	for _, sub := range subs {
		b.WriteString(materializeOne(sub, ws))
		b.WriteString("\n")
	}
	msg := models.ConversationItem{Type: models.ItemTypeUserMessage, Content: b.String()}
	return append([]models.ConversationItem{msg}, filtered...)
}

func materializeOne(sub Subscription, ws workspace.Paths) string {
	switch sub.Kind {
	case SubscriptionFile:
		abs, ok := ws.UnderWorkspace(sub.Path)
		if !ok {
			return fmt.Sprintf("[subscription error: %s escapes workspace root]", sub.Path)
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Sprintf("[subscription error reading %s: %v]", sub.Path, err)
		}
		return fmt.Sprintf("--- %s ---\n%s", sub.Path, string(content))
	case SubscriptionLines:
		re, err := regexp.Compile(sub.Pattern)
		if err != nil {
			return fmt.Sprintf("[subscription error: invalid pattern %q: %v]", sub.Pattern, err)
		}
		abs, ok := ws.UnderWorkspace(sub.Path)
		if !ok {
			return fmt.Sprintf("[subscription error: %s escapes workspace root]", sub.Path)
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Sprintf("[subscription error reading %s: %v]", sub.Path, err)
		}
		var matched []string
		for _, line := range strings.Split(string(content), "\n") {
			if re.MatchString(line) {
				matched = append(matched, line)
			}
		}
		return fmt.Sprintf("--- %s (lines matching %q) ---\n%s", sub.Path, sub.Pattern, strings.Join(matched, "\n"))
	case SubscriptionKnowledge:
		return fmt.Sprintf("--- knowledge: %s ---", sub.Path)
	default:
		return fmt.Sprintf("[subscription error: unknown kind %q]", sub.Kind)
	}
}

// Topic is one active topic whose instructions are injected into history.
type Topic struct {
	Name         string
	Priority     models.TopicPriority
	Instructions string
}

// InjectTopicContext prepends a message concatenating active topics'
// instructions, ordered critical, normal, low.
func InjectTopicContext(items []models.ConversationItem, topics []Topic) []models.ConversationItem {
	if len(topics) == 0 {
		return items
	}
	ordered := make([]Topic, len(topics))
	copy(ordered, topics)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() > ordered[j].Priority.Rank()
	})
	var b strings.Builder
	for _, t := range ordered {
		fmt.Fprintf(&b, "[topic:%s]\n%s\n", t.Name, t.Instructions)
	}
	msg := models.ConversationItem{Type: models.ItemTypeUserMessage, Content: b.String()}
	return append([]models.ConversationItem{msg}, items...)
}

// CheckpointStage serialises items and writes them to the checkpoint bound
// to ctx. Absence of a bound scope is a no-op pass-through, making the
// pipeline safe to run offline.
func CheckpointStage(ctx context.Context, items []models.ConversationItem, roundCount int) error {
	scope, ok := checkpoint.ScopeFromContext(ctx)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("history: marshal checkpoint: %w", err)
	}
	return scope.Store.Save(scope.WorkItemID, string(raw), roundCount)
}

// Run applies all five stages in the fixed, order-sensitive sequence.
func Run(ctx context.Context, items []models.ConversationItem, opts Options) ([]models.ConversationItem, CompactResult, error) {
	logger := log.For("history")

	truncated, err := TruncateOversizedToolReturns(items, opts.MaxToolReturnBytes, opts.TmpDir)
	if err != nil {
		return nil, CompactResult{}, err
	}

	compacted, compactRes := CompactOnTokenPressure(truncated, opts.CompactConfig)
	if compactRes.Warned {
		logger.Warn("context usage approaching limit", "estimated_tokens", compactRes.EstimatedTokens, "window", opts.CompactConfig.ContextWindowTokens)
	}
	if compactRes.Compacted {
		logger.Info("context compacted", "estimated_tokens_before", compactRes.EstimatedTokens)
	}

	materialized := MaterializeSubscriptions(compacted, opts.Subscriptions, opts.Workspace)
	withTopics := InjectTopicContext(materialized, opts.Topics)

	if err := CheckpointStage(ctx, withTopics, opts.RoundCount); err != nil {
		return nil, compactRes, err
	}

	return withTopics, compactRes, nil
}

// Options bundles every pipeline stage's configuration for one turn.
type Options struct {
	MaxToolReturnBytes int
	TmpDir             string
	CompactConfig      CompactConfig
	Subscriptions      []Subscription
	Workspace          workspace.Paths
	Topics             []Topic
	RoundCount         int
}
