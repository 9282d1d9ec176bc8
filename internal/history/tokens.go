// Package history implements the fixed, order-sensitive history processor
// pipeline (C5): truncate oversized tool returns, compact on token
// pressure, materialise subscriptions, inject topic context, checkpoint.
package history

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	charsPerTokenProse = 4.0
	charsPerTokenCode  = 3.5
	codeRatioThreshold = 0.25
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens approximates token count for text: exact cl100k_base
// tokenisation via pkoukk/tiktoken-go when its encoding table is loadable,
// else the character-ratio heuristic from original_source's
// agent/context_tokens.go (4 chars/token prose, 3.5 chars/token when the
// fraction of non-alphanumeric, non-space characters exceeds 0.25). This is
// a deliberate order-of-magnitude approximation: the warning/compaction
// thresholds (0.80/0.90) are generous enough to tolerate it.
func EstimateTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateByCharRatio(text)
}

func estimateByCharRatio(text string) int {
	if text == "" {
		return 0
	}
	nonAlnum := 0
	for _, r := range text {
		if !isAlnumOrSpace(r) {
			nonAlnum++
		}
	}
	ratio := float64(nonAlnum) / float64(len([]rune(text)))
	perToken := charsPerTokenProse
	if ratio > codeRatioThreshold {
		perToken = charsPerTokenCode
	}
	n := float64(len(text)) / perToken
	if n < 1 {
		return 1
	}
	return int(n + 0.5)
}

func isAlnumOrSpace(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		return true
	default:
		return false
	}
}

// EstimateTotalTokens runs EstimateTokens once over the texts joined with
// newlines.
func EstimateTotalTokens(texts []string) int {
	return EstimateTokens(strings.Join(texts, "\n"))
}
