package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/autopoiesis-dev/agentcore/internal/execenv"
	"github.com/autopoiesis-dev/agentcore/internal/execsession"
	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

// Result is the outcome of one sandboxed command execution.
type Result struct {
	Output         string
	ExitCode       int
	Truncated      bool
	FullOutputPath string
	TimedOut       bool
}

// Runner combines filesystem sandboxing, environment purging, resource
// limits, working-directory validation, and output truncation into the
// single entry point shell/exec tools call, matching spec.md §5's
// subprocess sandbox paragraph end to end.
type Runner struct {
	paths     workspace.Paths
	limits    Limits
	envPolicy execenv.Policy
	fsSandbox SandboxManager
	fsPolicy  *SandboxPolicy
	audit     *AuditLog
	selfPath  string
}

// NewRunner builds a Runner rooted at an agent's workspace. selfPath is the
// current executable's path, used to re-invoke it under ReexecMarker so
// resource limits apply before the target command runs.
func NewRunner(paths workspace.Paths, limits Limits, envPolicy execenv.Policy, fsSandbox SandboxManager, fsPolicy *SandboxPolicy, selfPath string) *Runner {
	return &Runner{
		paths:     paths,
		limits:    limits,
		envPolicy: envPolicy,
		fsSandbox: fsSandbox,
		fsPolicy:  fsPolicy,
		audit:     NewAuditLog(paths.Tmp),
		selfPath:  selfPath,
	}
}

// Run executes command under the sandbox and returns its (possibly
// truncated) combined output. toolCallID names the persisted full-output
// file when truncation occurs; tier is recorded in the audit log only.
func (r *Runner) Run(ctx context.Context, toolCallID string, command []string, cwd string, timeout time.Duration, tier string) (*Result, error) {
	resolvedCwd, execPath, argv, wrappedEnv, err := r.prepare(command, cwd)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, execPath, argv[1:]...)
	cmd.Dir = resolvedCwd
	cmd.Env = execenv.ToSlice(wrappedEnv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if !timedOut {
			return nil, runErr
		}
	}

	combined := make([]byte, 0, stdout.Len()+stderr.Len())
	combined = append(combined, stdout.Bytes()...)
	combined = append(combined, stderr.Bytes()...)

	truncatedOutput, truncated := Truncate(combined)
	var fullPath string
	if truncated {
		fullPath, err = PersistFull(r.paths.Tmp, toolCallID, combined, time.Now())
		if err != nil {
			log.For("sandbox").Warn("persist full output failed", "tool_call_id", toolCallID, "error", err)
		}
	}

	if auditErr := r.audit.Append(AuditEntry{
		Timestamp: time.Now(),
		Command:   strings.Join(command, " "),
		Tier:      tier,
		ExitCode:  exitCode,
		Truncated: truncated,
	}); auditErr != nil {
		log.For("sandbox").Warn("audit append failed", "error", auditErr)
	}

	return &Result{
		Output:         string(truncatedOutput),
		ExitCode:       exitCode,
		Truncated:      truncated,
		FullOutputPath: fullPath,
		TimedOut:       timedOut,
	}, nil
}

// prepare resolves cwd, runs the command through the fs sandbox transform,
// builds the purged environment, and wraps the result for ReexecCommand.
// Shared by Run and RunInteractive so both obey the same sandbox boundary.
func (r *Runner) prepare(command []string, cwd string) (resolvedCwd, execPath string, argv []string, env map[string]string, err error) {
	if len(command) == 0 {
		return "", "", nil, nil, fmt.Errorf("sandbox: empty command")
	}

	resolvedCwd, err = r.resolveCwd(cwd)
	if err != nil {
		return "", "", nil, nil, err
	}

	spec := CommandSpec{Program: command[0], Args: command[1:], Cwd: resolvedCwd}
	transformed, err := r.fsSandbox.Transform(spec, r.fsPolicy)
	if err != nil {
		return "", "", nil, nil, err
	}

	builtEnv := execenv.Build(r.envPolicy)
	for k, v := range transformed.Env {
		builtEnv[k] = v
	}

	execPath, argv, wrappedEnv := ReexecCommand(r.selfPath, transformed.Command[0], transformed.Command[1:], r.limits, builtEnv)
	return resolvedCwd, execPath, argv, wrappedEnv, nil
}

// RunInteractive runs command under a pseudo-terminal via execsession,
// waiting up to timeout for output before the session is torn down. Unlike
// Run, exit code is best-effort: the session is killed at the deadline
// regardless of whether the child has exited.
func (r *Runner) RunInteractive(ctx context.Context, toolCallID string, command []string, cwd string, timeout time.Duration, tier string) (*Result, error) {
	resolvedCwd, execPath, argv, wrappedEnv, err := r.prepare(command, cwd)
	if err != nil {
		return nil, err
	}

	sess, err := execsession.StartSession(execsession.SessionOpts{
		ProcessID: toolCallID,
		Command:   append([]string{execPath}, argv[1:]...),
		Cwd:       resolvedCwd,
		Env:       execenv.ToSlice(wrappedEnv),
		TTY:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: start interactive session: %w", err)
	}
	defer sess.Close()

	output := sess.CollectOutput(time.Now().Add(timeout), nil)
	timedOut := !sess.HasExited()

	exitCode := 0
	if code := sess.ExitCode(); code != nil {
		exitCode = *code
	}

	truncatedOutput, truncated := Truncate(output)
	var fullPath string
	if truncated {
		fullPath, err = PersistFull(r.paths.Tmp, toolCallID, output, time.Now())
		if err != nil {
			log.For("sandbox").Warn("persist full output failed", "tool_call_id", toolCallID, "error", err)
		}
	}

	if auditErr := r.audit.Append(AuditEntry{
		Timestamp: time.Now(),
		Command:   strings.Join(command, " "),
		Tier:      tier,
		ExitCode:  exitCode,
		Truncated: truncated,
	}); auditErr != nil {
		log.For("sandbox").Warn("audit append failed", "error", auditErr)
	}

	return &Result{
		Output:         string(truncatedOutput),
		ExitCode:       exitCode,
		Truncated:      truncated,
		FullOutputPath: fullPath,
		TimedOut:       timedOut,
	}, nil
}

// resolveCwd validates cwd against the agent's workspace, defaulting to the
// workspace root when cwd is empty.
func (r *Runner) resolveCwd(cwd string) (string, error) {
	if cwd == "" {
		return r.paths.WorkspaceRoot(), nil
	}
	abs, ok := r.paths.UnderWorkspace(cwd)
	if !ok {
		return "", fmt.Errorf("sandbox: working directory %q escapes the agent workspace", cwd)
	}
	return abs, nil
}
