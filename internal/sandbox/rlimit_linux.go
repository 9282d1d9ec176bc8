//go:build linux

package sandbox

import "syscall"

// applyRlimits sets the three caps named in spec.md §5 on the calling
// process, never raising a limit above its current hard ceiling.
func applyRlimits(limits Limits) error {
	if err := boundedSetrlimit(syscall.RLIMIT_NPROC, uint64(limits.MaxProcesses)); err != nil {
		return err
	}
	if err := boundedSetrlimit(syscall.RLIMIT_FSIZE, uint64(limits.MaxFileSizeBytes)); err != nil {
		return err
	}
	if err := boundedSetrlimit(syscall.RLIMIT_CPU, uint64(limits.MaxCPUSeconds)); err != nil {
		return err
	}
	return nil
}

func boundedSetrlimit(resource int, target uint64) error {
	var cur syscall.Rlimit
	if err := syscall.Getrlimit(resource, &cur); err != nil {
		return err
	}
	soft := target
	if cur.Max != infinityRlimit && soft > cur.Max {
		soft = cur.Max
	}
	return syscall.Setrlimit(resource, &syscall.Rlimit{Cur: soft, Max: cur.Max})
}

const infinityRlimit = ^uint64(0)
