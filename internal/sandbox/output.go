package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TruncateThreshold is the size at or above which sandboxed command output
// is truncated, per spec.md §5.
const TruncateThreshold = 10 * 1024

// Truncate keeps the head and tail halves of output once it reaches
// TruncateThreshold, noting how many bytes were elided in between.
func Truncate(output []byte) (result []byte, truncated bool) {
	if len(output) < TruncateThreshold {
		return output, false
	}
	half := TruncateThreshold / 2
	head := output[:half]
	tail := output[len(output)-half:]
	elided := len(output) - TruncateThreshold
	marker := []byte(fmt.Sprintf("\n...[%d bytes elided]...\n", elided))

	out := make([]byte, 0, len(head)+len(marker)+len(tail))
	out = append(out, head...)
	out = append(out, marker...)
	out = append(out, tail...)
	return out, true
}

// PersistFull writes the untruncated output under tmpDir's current
// date-directory so the full record survives even when the in-band result
// is truncated, matching spec.md §5's "full output is persisted to the
// agent's tmp area".
func PersistFull(tmpDir, toolCallID string, output []byte, now time.Time) (string, error) {
	dateDir := filepath.Join(tmpDir, now.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dateDir, toolCallID+".log")
	if err := os.WriteFile(path, output, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
