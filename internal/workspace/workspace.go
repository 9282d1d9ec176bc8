// Package workspace implements the per-agent workspace resolver (name
// resolution, on-disk layout, name validation) and the tmp-directory
// retention sweep, grounded on original_source/src/autopoiesis/agent/
// workspace.go and validation.py.
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/autopoiesis-dev/agentcore/internal/models"
)

const maxNameLength = 64

// Paths is the deterministic on-disk layout for one agent.
type Paths struct {
	AgentID   string
	Root      string // {home}/agents/{agent_id}
	Memory    string
	Skills    string
	Knowledge string
	Tmp       string
	DataDir   string
	KeysDir   string
	KnowledgeDB    string
	SubscriptionsDB string
}

// ValidateName enforces: non-empty, length <= 64, no "..", "/", "\".
func ValidateName(name string) error {
	if name == "" {
		return models.NewAgentError(models.ErrorKindUnknownAgent, "agent name must not be empty")
	}
	if len(name) > maxNameLength {
		return models.NewAgentError(models.ErrorKindUnknownAgent, "agent name %q exceeds %d characters", name, maxNameLength)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return models.NewAgentError(models.ErrorKindUnknownAgent, "agent name %q contains an illegal path segment", name)
	}
	return nil
}

// ResolveName picks the agent name: explicit parameter > AUTOPOIESIS_AGENT
// env > "default".
func ResolveName(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := os.LookupEnv("AUTOPOIESIS_AGENT"); ok && v != "" {
		return v
	}
	return "default"
}

// ResolveHome picks the home root: AUTOPOIESIS_HOME env > user-home
// convention.
func ResolveHome() string {
	if v, ok := os.LookupEnv("AUTOPOIESIS_HOME"); ok && v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".autopoiesis")
}

// Resolve produces the full Paths for an agent, validating its name first.
// No path of agent A is ever a prefix of agent B's paths because each
// agent's root is keyed on its own validated, separator-free name segment.
func Resolve(home, explicitAgent string) (Paths, error) {
	name := ResolveName(explicitAgent)
	if err := ValidateName(name); err != nil {
		return Paths{}, err
	}
	if home == "" {
		home = ResolveHome()
	}
	root := filepath.Join(home, "agents", name)
	ws := filepath.Join(root, "workspace")
	data := filepath.Join(root, "data")
	return Paths{
		AgentID:         name,
		Root:            root,
		Memory:          filepath.Join(ws, "memory"),
		Skills:          filepath.Join(ws, "skills"),
		Knowledge:       filepath.Join(ws, "knowledge"),
		Tmp:             filepath.Join(ws, "tmp"),
		DataDir:         data,
		KeysDir:         filepath.Join(root, "keys"),
		KnowledgeDB:     filepath.Join(data, "knowledge.sqlite"),
		SubscriptionsDB: filepath.Join(data, "subscriptions.sqlite"),
	}, nil
}

// MkdirAll creates every directory in the layout.
func (p Paths) MkdirAll() error {
	for _, dir := range []string{p.Memory, p.Skills, p.Knowledge, p.Tmp, p.DataDir, p.KeysDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// WorkspaceRoot returns the {AUTOPOIESIS_HOME}/agents/{agent_id}/workspace
// directory that Memory, Skills, Knowledge, and Tmp are rooted under.
func (p Paths) WorkspaceRoot() string {
	return filepath.Dir(p.Memory)
}

// UnderWorkspace reports whether candidate resolves inside the agent's
// workspace root, defending against path-escaping reads.
func (p Paths) UnderWorkspace(candidate string) (string, bool) {
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", false
	}
	wsRoot, err := filepath.Abs(p.WorkspaceRoot())
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(wsRoot, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return abs, true
}
