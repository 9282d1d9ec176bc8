//go:build unix && !linux

package sandbox

import "syscall"

// applyRlimits applies the CPU and file-size caps on BSD-family unixes.
// RLIMIT_NPROC semantics vary enough across these platforms that this
// package only asserts it on Linux, where the behaviour is well-defined
// for the bwrap-based sandbox this module targets.
func applyRlimits(limits Limits) error {
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
