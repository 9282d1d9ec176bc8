//go:build unix

package sandbox

import (
	"os"
	"os/exec"
	"syscall"
)

// execReplace replaces the current process image with program, argv, and
// env, the way a pre-exec hook would hand off control after applying
// limits. It only returns on failure.
func execReplace(program string, argv []string, env []string) error {
	resolved, err := exec.LookPath(program)
	if err != nil {
		return err
	}
	return syscall.Exec(resolved, argv, env)
}

func currentEnviron() []string {
	return os.Environ()
}
