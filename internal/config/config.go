// Package config resolves the environment variables consumed by the
// execution core, following the same read-env/fall-back-to-default/validate
// shape the teacher used for Temporal client options (internal/temporalclient
// options.go) and the original Python runtime's threshold resolution
// (agent/context.py): a malformed value is a startup error, never a silent
// fallback.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/autopoiesis-dev/agentcore/internal/models"
)

const (
	DefaultContextWindowTokens = 120000
	DefaultWarningThreshold    = 0.80
	DefaultCompactionThreshold = 0.90
	DefaultKeepRecent          = 20
)

// Config is the fully resolved, validated set of environment-driven knobs.
type Config struct {
	Home                string
	Agent                string
	ContextWindowTokens  int
	WarningThreshold     float64
	CompactionThreshold  float64
	KeepRecent           int
}

// Resolve reads AUTOPOIESIS_HOME, AUTOPOIESIS_AGENT, CONTEXT_WINDOW_TOKENS,
// CONTEXT_WARNING_THRESHOLD, COMPACTION_THRESHOLD and COMPACTION_KEEP_RECENT,
// applying defaults for unset variables and rejecting malformed ones outright.
func Resolve() (Config, error) {
	cfg := Config{
		Home:                resolveHome(),
		Agent:                envOr("AUTOPOIESIS_AGENT", "default"),
		ContextWindowTokens:  DefaultContextWindowTokens,
		WarningThreshold:     DefaultWarningThreshold,
		CompactionThreshold:  DefaultCompactionThreshold,
		KeepRecent:           DefaultKeepRecent,
	}

	if v, ok := os.LookupEnv("CONTEXT_WINDOW_TOKENS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, models.NewAgentError(models.ErrorKindMissingEnv,
				"CONTEXT_WINDOW_TOKENS must be a positive integer, got %q", v)
		}
		cfg.ContextWindowTokens = n
	}

	if v, ok := os.LookupEnv("CONTEXT_WARNING_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			return Config{}, models.NewAgentError(models.ErrorKindMissingEnv,
				"CONTEXT_WARNING_THRESHOLD must be in (0,1), got %q", v)
		}
		cfg.WarningThreshold = f
	}

	if v, ok := os.LookupEnv("COMPACTION_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			return Config{}, models.NewAgentError(models.ErrorKindMissingEnv,
				"COMPACTION_THRESHOLD must be in (0,1), got %q", v)
		}
		cfg.CompactionThreshold = f
	}

	if v, ok := os.LookupEnv("COMPACTION_KEEP_RECENT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, models.NewAgentError(models.ErrorKindMissingEnv,
				"COMPACTION_KEEP_RECENT must be a non-negative integer, got %q", v)
		}
		cfg.KeepRecent = n
	}

	if cfg.WarningThreshold > cfg.CompactionThreshold {
		return Config{}, models.NewAgentError(models.ErrorKindMissingEnv,
			"CONTEXT_WARNING_THRESHOLD (%v) must not exceed COMPACTION_THRESHOLD (%v)",
			cfg.WarningThreshold, cfg.CompactionThreshold)
	}

	return cfg, nil
}

func resolveHome() string {
	if v, ok := os.LookupEnv("AUTOPOIESIS_HOME"); ok && v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".autopoiesis"
	}
	return fmt.Sprintf("%s/.autopoiesis", home)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
