package sandbox

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateLeavesSmallOutputUntouched(t *testing.T) {
	small := bytes.Repeat([]byte("a"), TruncateThreshold-1)
	out, truncated := Truncate(small)
	assert.False(t, truncated)
	assert.Equal(t, small, out)
}

func TestTruncateKeepsHeadAndTailHalves(t *testing.T) {
	head := bytes.Repeat([]byte("h"), TruncateThreshold/2)
	middle := bytes.Repeat([]byte("m"), 4096)
	tail := bytes.Repeat([]byte("t"), TruncateThreshold/2)
	full := append(append(append([]byte{}, head...), middle...), tail...)

	out, truncated := Truncate(full)
	require.True(t, truncated)
	assert.True(t, bytes.HasPrefix(out, head))
	assert.True(t, bytes.HasSuffix(out, tail))
	assert.NotContains(t, string(out), "mmmm")
}

func TestPersistFullWritesUnderDateDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := PersistFull(tmpDir, "call-1", []byte("full output"), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "2026-03-01", "call-1.log"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "full output", string(data))
}
