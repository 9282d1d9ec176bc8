//go:build !unix

package sandbox

import "fmt"

func applyRlimits(limits Limits) error {
	return fmt.Errorf("sandbox: resource limits are unsupported on this platform")
}
