// Package bootstrap assembles one agent's runtime.Runtime from the
// environment: resolves its workspace, opens its checkpoint and approval
// stores, loads or creates its signing keyring, and wires its tool
// executor and LLM client. It exists so cmd/agentworker and cmd/agentctl
// share one wiring path instead of two divergent ones, generalizing the
// teacher's cmd/worker main() (which built a Temporal client, worker and
// tool registry inline) into a reusable step. cmd/approvalkeys does not
// call it; it opens the same keyring file under the agent's keys
// directory directly.
package bootstrap

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/autopoiesis-dev/agentcore/internal/approval"
	"github.com/autopoiesis-dev/agentcore/internal/checkpoint"
	"github.com/autopoiesis-dev/agentcore/internal/config"
	"github.com/autopoiesis-dev/agentcore/internal/llmclient"
	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/mcp"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/runtime"
	"github.com/autopoiesis-dev/agentcore/internal/tools"
	"github.com/autopoiesis-dev/agentcore/internal/toolsetup"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

const keyringFileName = "keyring.json"

// passphraseEnv names the env var carrying the keyring passphrase. A
// missing value is only tolerated when no keyring exists yet, in which
// case an empty passphrase is used for the first key — fine for local
// single-operator use, not for a shared deployment.
const passphraseEnv = "AUTOPOIESIS_KEY_PASSPHRASE"

// ModelOptions selects and configures the LLM client a runtime uses.
type ModelOptions struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

func (o ModelOptions) resolve() models.ModelConfig {
	cfg := models.DefaultModelConfig()
	if o.Provider != "" {
		cfg.Provider = o.Provider
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.Temperature != 0 {
		cfg.Temperature = o.Temperature
	}
	if o.MaxTokens != 0 {
		cfg.MaxTokens = o.MaxTokens
	}
	return cfg
}

var logger = log.For("bootstrap")

// BuildRuntime resolves cfg's agent workspace, opens its stores, unlocks
// its signing key and returns a fully wired runtime.Runtime. selfPath is
// this binary's own executable path, passed through to the sandbox runner
// for the rlimit re-exec trick.
func BuildRuntime(cfg config.Config, model ModelOptions, selfPath string) (*runtime.Runtime, error) {
	paths, err := workspace.Resolve(cfg.Home, cfg.Agent)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resolve workspace: %w", err)
	}
	if err := paths.MkdirAll(); err != nil {
		return nil, fmt.Errorf("bootstrap: create workspace: %w", err)
	}

	checkpointDB, err := checkpoint.Open(filepath.Join(paths.DataDir, "checkpoints.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open checkpoint store: %w", err)
	}
	checkpoints := checkpoint.NewStore(checkpointDB)

	approvalDB, err := approval.Open(filepath.Join(paths.DataDir, "approvals.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open approval store: %w", err)
	}
	approvals := approval.NewStore(approvalDB)

	keys, err := loadOrCreateKeys(paths, os.Getenv(passphraseEnv))
	if err != nil {
		return nil, err
	}

	knowledgeDB, err := sql.Open("sqlite3", paths.KnowledgeDB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open knowledge db: %w", err)
	}
	subscriptionsDB, err := sql.Open("sqlite3", paths.SubscriptionsDB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open subscriptions db: %w", err)
	}

	mcpStore := mcp.NewMcpStore()
	executor := toolsetup.NewExecutor(paths, tools.DefaultClassifier(), mcpStore, selfPath, paths.AgentID)

	toolSpecs := []tools.ToolSpec{
		tools.NewShellToolSpec(),
		tools.NewReadFileToolSpec(),
		tools.NewWriteFileToolSpec(),
		tools.NewListDirToolSpec(),
		tools.NewGrepFilesToolSpec(),
		tools.NewApplyPatchToolSpec(),
		tools.NewRequestUserInputToolSpec(),
	}

	client, err := llmclient.New(model.resolve(), toolSpecs)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build llm client: %w", err)
	}

	logger.Info("runtime built", "agent_id", paths.AgentID, "provider", model.resolve().Provider)

	return &runtime.Runtime{
		AgentID:         paths.AgentID,
		Workspace:       paths,
		Approvals:       approvals,
		Keys:            keys,
		Checkpoints:     checkpoints,
		KnowledgeDB:     knowledgeDB,
		SubscriptionsDB: subscriptionsDB,
		LLMClient:       client,
		Tools:           executor,
		Guards:          turn.DefaultLoopGuards(),
	}, nil
}

// loadOrCreateKeys loads the agent's keyring from disk, creating and
// persisting a fresh one on first run, then unlocks the current key.
func loadOrCreateKeys(paths workspace.Paths, passphrase string) (*approval.KeyManager, error) {
	km := approval.NewKeyManager()
	path := filepath.Join(paths.KeysDir, keyringFileName)

	if _, err := os.Stat(path); err == nil {
		if err := km.LoadKeyring(path); err != nil {
			return nil, fmt.Errorf("bootstrap: load keyring: %w", err)
		}
	} else {
		if _, err := km.CreateInitialKey(passphrase); err != nil {
			return nil, fmt.Errorf("bootstrap: create initial key: %w", err)
		}
		if err := km.SaveKeyring(path); err != nil {
			return nil, fmt.Errorf("bootstrap: save keyring: %w", err)
		}
		logger.Info("created initial signing key", "path", path)
	}

	if err := km.Unlock(passphrase); err != nil {
		return nil, fmt.Errorf("bootstrap: unlock keyring: %w", err)
	}
	return km, nil
}
