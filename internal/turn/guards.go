// Package turn implements the bounded turn executor (C7): one LLM turn run
// under iteration, token and wall-clock guards, surfacing either a final
// text output or deferred tool requests that need approval.
//
// Grounded on original_source's agent/turn_execution.py (run_turn,
// check_timeout, _warn_usage_thresholds, WorkItemLimitExceededError) for the
// guard semantics, and on the teacher's internal/workflow/turn.go
// (runAgenticTurn) for the Go iteration-loop shape and logging style.
package turn

import "math"

// LoopGuards are the three simultaneous budgets a turn runs under.
type LoopGuards struct {
	ToolLoopMaxIterations  int
	WorkItemTokenBudget    int
	WorkItemTimeoutSeconds float64
}

// DefaultLoopGuards matches spec.md §4.7's defaults.
func DefaultLoopGuards() LoopGuards {
	return LoopGuards{
		ToolLoopMaxIterations:  40,
		WorkItemTokenBudget:    120000,
		WorkItemTimeoutSeconds: 300,
	}
}

const warningRatio = 0.8

// warningThreshold returns the 80% warning point for an integer limit.
func warningThreshold(limit int) int {
	if limit <= 0 {
		return 1
	}
	t := int(math.Ceil(float64(limit) * warningRatio))
	if t < 1 {
		return 1
	}
	return t
}

// warningTimeout returns the 80% warning point for a wall-clock limit.
func warningTimeout(limitSeconds float64) float64 {
	return limitSeconds * warningRatio
}
