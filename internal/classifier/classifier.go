// Package classifier maps shell command strings to a risk tier, gating
// local execution behind the approval flow (C3).
//
// The chain splitter is a quote-aware single-pass scanner in the style of
// the teacher's internal/command_safety/bash_parser.go word scanner, but
// simplified: where the teacher's parser rejects any command containing a
// redirect outright (it only needs to recognize trivially-safe commands),
// this classifier must still classify commands that redirect, since
// redirection to an absolute path is itself a tier signal (spec.md §4.1).
package classifier

import (
	"strings"

	"github.com/autopoiesis-dev/agentcore/internal/command_safety"
)

// Tier is a coarse shell-command risk classification.
type Tier int

const (
	TierFree Tier = iota
	TierReview
	TierApprove
	TierBlock
)

func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierReview:
		return "review"
	case TierApprove:
		return "approve"
	case TierBlock:
		return "block"
	default:
		return "unknown"
	}
}

// max returns the more dangerous of two tiers; ties resolve upward.
func max(a, b Tier) Tier {
	if b > a {
		return b
	}
	return a
}

var blockedFirstTokens = map[string]bool{
	"sudo": true, "su": true, "doas": true,
}

var freeFirstTokens = map[string]bool{
	"ls": true, "pwd": true, "echo": true, "cat": true, "head": true, "tail": true,
	"wc": true, "grep": true, "find": true, "which": true, "whoami": true, "date": true,
	"env": true, "printenv": true, "file": true, "stat": true, "diff": true, "true": true,
	"false": true, "test": true, "basename": true, "dirname": true, "sleep": true,
}

var freeGitSubcommands = map[string]bool{
	"status": true, "log": true, "diff": true, "show": true, "branch": true, "blame": true,
}

var reviewFirstTokens = map[string]bool{
	"python": true, "python3": true, "pip": true, "pip3": true, "npm": true, "npx": true,
	"node": true, "tmux": true, "screen": true, "bash": true, "sh": true, "zsh": true,
}

var approveFirstTokens = map[string]bool{
	"rm": true, "curl": true, "wget": true, "chmod": true, "chown": true, "mv": true,
	"cp": true, "kill": true, "killall": true, "dd": true, "mkfs": true, "shutdown": true,
	"reboot": true,
}

// approveGitSubcommands covers destructive/networked git subcommands.
var approveGitSubcommands = map[string]bool{
	"push": true, "reset": true, "clean": true, "rebase": true, "checkout": true,
}

// blockedPaths is the unconditional denylist supplemented from
// original_source/src/autopoiesis/tools/shell_tool.go (_BLOCKED_PATHS):
// reads of these paths are blocked regardless of the first-token tier.
var blockedPaths = []string{"/etc/shadow", "/etc/gshadow"}

// operatorSplit is a single chaining/pipe token recognized between
// sub-commands.
type operatorSplit struct {
	op   string
	next int
}

// splitChain splits a command string on ;, &&, ||, | outside of quotes,
// mirroring the teacher's quote-aware scanning approach.
func splitChain(cmd string) []string {
	var parts []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	i := 0
	for i < len(cmd) {
		ch := cmd[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
			cur.WriteByte(ch)
			i++
		case ch == '"' && !inSingle:
			inDouble = !inDouble
			cur.WriteByte(ch)
			i++
		case !inSingle && !inDouble && ch == ';':
			parts = append(parts, cur.String())
			cur.Reset()
			i++
		case !inSingle && !inDouble && ch == '&' && i+1 < len(cmd) && cmd[i+1] == '&':
			parts = append(parts, cur.String())
			cur.Reset()
			i += 2
		case !inSingle && !inDouble && ch == '|' && i+1 < len(cmd) && cmd[i+1] == '|':
			parts = append(parts, cur.String())
			cur.Reset()
			i += 2
		case !inSingle && !inDouble && ch == '|':
			parts = append(parts, cur.String())
			cur.Reset()
			i++
		default:
			cur.WriteByte(ch)
			i++
		}
	}
	if strings.TrimSpace(cur.String()) != "" || len(parts) == 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// hasAbsolutePathRedirect detects output redirection to an absolute path,
// checked before tokenisation per spec.md §4.1.
func hasAbsolutePathRedirect(sub string) bool {
	trimmed := sub
	for _, op := range []string{">>", ">"} {
		idx := strings.Index(trimmed, op)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(trimmed[idx+len(op):])
		rest = strings.TrimPrefix(rest, "&")
		if strings.HasPrefix(rest, "/") {
			return true
		}
	}
	return false
}

func firstToken(sub string) (token string, rest []string) {
	fields := strings.Fields(sub)
	if len(fields) == 0 {
		return "", nil
	}
	tok := fields[0]
	if idx := strings.LastIndex(tok, "/"); idx >= 0 {
		tok = tok[idx+1:]
	}
	return tok, fields[1:]
}

func containsBlockedPath(sub string) bool {
	for _, p := range blockedPaths {
		if strings.Contains(sub, p) {
			return true
		}
	}
	return false
}

// xargsWrappedCommand finds the command xargs will invoke per input line,
// skipping xargs's own flags (-n, -I, -P, ...) and their inline values, so
// e.g. "xargs -I{} rm {}" classifies by the tier of "rm {}", not of xargs
// itself (which sits in no tier table and would otherwise default to
// review, understating "ls | xargs rm"'s real risk).
func xargsWrappedCommand(args []string) (string, bool) {
	flagsWithValue := map[string]bool{"-I": true, "-i": true, "-n": true, "-P": true, "-s": true, "-L": true, "-d": true, "-E": true}
	i := 0
	for i < len(args) {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			break
		}
		if flagsWithValue[a] && i+1 < len(args) {
			i += 2
			continue
		}
		i++
	}
	if i >= len(args) {
		return "", false
	}
	return strings.Join(args[i:], " "), true
}

func classifySingle(sub string) Tier {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return TierFree
	}
	if containsBlockedPath(sub) {
		return TierBlock
	}
	if hasAbsolutePathRedirect(sub) {
		return TierApprove
	}

	tok, args := firstToken(sub)
	if tok == "" {
		return TierReview
	}
	if blockedFirstTokens[tok] {
		return TierBlock
	}
	if tok == "xargs" {
		if wrapped, ok := xargsWrappedCommand(args); ok {
			return classifySingle(wrapped)
		}
		return TierReview
	}
	argv := append([]string{tok}, args...)
	dangerFloor := TierFree
	if command_safety.CommandMightBeDangerous(argv) {
		// command_safety's codex-rs-derived heuristics catch a few
		// git forms the first-token tables above don't (git rm, a
		// forced branch delete) — used here only as a floor, never to
		// lower a tier the tables above already raised.
		dangerFloor = TierApprove
	}

	if tok == "git" {
		if len(args) == 0 {
			return TierReview
		}
		gitSub := args[0]
		switch {
		case approveGitSubcommands[gitSub]:
			// `git push --force` and friends stay approve; the Starlark
			// amendment hook can raise further but never lower this.
			return TierApprove
		case freeGitSubcommands[gitSub]:
			return max(TierFree, dangerFloor)
		default:
			return max(TierReview, dangerFloor)
		}
	}
	if approveFirstTokens[tok] {
		return TierApprove
	}
	if freeFirstTokens[tok] {
		return max(TierFree, dangerFloor)
	}
	if tok == "bash" || tok == "sh" || tok == "zsh" {
		if tier, ok := classifyShellWrapper(sub); ok {
			return max(tier, dangerFloor)
		}
		return max(TierReview, dangerFloor)
	}
	if reviewFirstTokens[tok] {
		return max(TierReview, dangerFloor)
	}
	// Open Question (spec.md §9): unknown commands default to review rather
	// than approve, trading noise for safety margin per the allowlist design.
	return max(TierReview, dangerFloor)
}

// classifyShellWrapper looks inside a `bash -lc "..."`/`sh -c "..."`/
// `zsh -lc "..."` wrapper using command_safety.ParseShellLcPlainCommands,
// the same word-only scanner the teacher built for codex-rs's bash.rs
// equivalent, and classifies each inner sub-command by recursing into
// classifySingle. Returns ok=false when the wrapper doesn't parse as a
// plain word-only command sequence (redirects, subshells, expansion,
// background jobs) so the caller falls back to the conservative default.
func classifyShellWrapper(sub string) (tier Tier, ok bool) {
	argv := tokenizeArgv(sub)
	if len(argv) != 3 {
		return TierFree, false
	}
	subCommands := command_safety.ParseShellLcPlainCommands(argv)
	if subCommands == nil {
		return TierFree, false
	}
	tier = TierFree
	for _, words := range subCommands {
		tier = max(tier, classifySingle(strings.Join(words, " ")))
	}
	return tier, true
}

// tokenizeArgv splits sub into up to 3 whitespace-separated argv tokens,
// quote-aware so the third token (the embedded script) can itself contain
// spaces and chaining operators without being split apart. Tokens beyond
// the third are folded into the third so `bash -lc "a && b"` yields
// exactly ["bash", "-lc", "a && b"].
func tokenizeArgv(sub string) []string {
	var tokens []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(sub); i++ {
		ch := sub[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case !inSingle && !inDouble && (ch == ' ' || ch == '\t'):
			if len(tokens) >= 2 {
				cur.WriteByte(ch)
				continue
			}
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	if len(tokens) > 3 {
		tokens[2] = strings.Join(tokens[2:], " ")
		tokens = tokens[:3]
	}
	return tokens
}

// Classify splits cmd on chaining/pipe operators and returns the most
// dangerous tier seen across all sub-commands. Tier classification is
// monotone: Classify("A && B") == max(Classify("A"), Classify("B")).
func Classify(cmd string) Tier {
	parts := splitChain(cmd)
	tier := TierFree
	for _, p := range parts {
		tier = max(tier, classifySingle(p))
	}
	return tier
}
