// Package log wires a structured, leveled logger for every subsystem,
// in place of the Temporal-provided workflow.GetLogger(ctx) the teacher
// harness used inside activities and workflows.
package log

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu      sync.Mutex
	root    hclog.Logger
	namedMu sync.Mutex
	named   = map[string]hclog.Logger{}
)

func rootLogger() hclog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = hclog.New(&hclog.LoggerOptions{
			Name:            "agentcore",
			Level:           hclog.LevelFromString(levelFromEnv()),
			Output:          os.Stderr,
			IncludeLocation: false,
		})
	}
	return root
}

func levelFromEnv() string {
	if v := os.Getenv("AGENTCORE_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}

// For returns the named sub-logger for a subsystem, e.g. log.For("approval"),
// mirroring the per-call-site logger naming the teacher used.
func For(subsystem string) hclog.Logger {
	namedMu.Lock()
	defer namedMu.Unlock()
	if l, ok := named[subsystem]; ok {
		return l
	}
	l := rootLogger().Named(subsystem)
	named[subsystem] = l
	return l
}

// Reset clears cached named loggers; used by tests that flip AGENTCORE_LOG_LEVEL.
func Reset() {
	mu.Lock()
	root = nil
	mu.Unlock()
	namedMu.Lock()
	named = map[string]hclog.Logger{}
	namedMu.Unlock()
}
