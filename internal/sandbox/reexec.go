package sandbox

import (
	"fmt"
	"os"
	"strconv"
)

// ReexecMarker is the hidden first argument that turns an ordinary
// cmd/ binary invocation into the resource-limited exec step of a
// sandboxed command. os/exec gives Go no way to run code between fork
// and exec (Python's preexec_fn), so the limits are applied by this
// process re-executing itself: the parent launches
// "<binary> ReexecMarker <program> <args...>" with the limits carried in
// the environment, and this function — called first thing in every
// cmd/ main — applies them and execs the real program in place.
const ReexecMarker = "__agentcore_sandbox_exec__"

const (
	envRlimitNProc = "AGENTCORE_RLIMIT_NPROC"
	envRlimitFsize = "AGENTCORE_RLIMIT_FSIZE"
	envRlimitCPU   = "AGENTCORE_RLIMIT_CPU"
)

// MaybeReexec inspects os.Args for the ReexecMarker and, if present,
// applies rlimits and execs the target command without returning. It
// returns false for an ordinary invocation so callers can fall through
// to their normal startup path.
func MaybeReexec() bool {
	if len(os.Args) < 3 || os.Args[1] != ReexecMarker {
		return false
	}
	limits := Limits{
		MaxProcesses:     atoiEnv(envRlimitNProc),
		MaxFileSizeBytes: int64(atoiEnv(envRlimitFsize)),
		MaxCPUSeconds:    atoiEnv(envRlimitCPU),
	}
	if err := applyRlimits(limits); err != nil {
		fmt.Fprintf(os.Stderr, "sandbox: apply rlimits: %v\n", err)
		os.Exit(126)
	}
	program := os.Args[2]
	argv := os.Args[2:]
	if err := execReplace(program, argv, currentEnviron()); err != nil {
		fmt.Fprintf(os.Stderr, "sandbox: exec %s: %v\n", program, err)
		os.Exit(127)
	}
	return true // unreachable on success; execReplace never returns
}

// ReexecCommand builds the argv/env a caller should launch in place of the
// original command so that MaybeReexec applies limits before the target
// program runs.
func ReexecCommand(selfPath string, program string, args []string, limits Limits, env map[string]string) (string, []string, map[string]string) {
	argv := make([]string, 0, len(args)+3)
	argv = append(argv, selfPath, ReexecMarker, program)
	argv = append(argv, args...)

	wrapped := make(map[string]string, len(env)+3)
	for k, v := range env {
		wrapped[k] = v
	}
	wrapped[envRlimitNProc] = strconv.Itoa(limits.MaxProcesses)
	wrapped[envRlimitFsize] = strconv.FormatInt(limits.MaxFileSizeBytes, 10)
	wrapped[envRlimitCPU] = strconv.Itoa(limits.MaxCPUSeconds)
	return selfPath, argv, wrapped
}

func atoiEnv(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}
