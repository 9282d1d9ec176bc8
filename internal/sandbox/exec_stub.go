//go:build !unix

package sandbox

import (
	"fmt"
	"os"
)

func execReplace(program string, argv []string, env []string) error {
	return fmt.Errorf("sandbox: process replacement is unsupported on this platform")
}

func currentEnviron() []string {
	return os.Environ()
}
