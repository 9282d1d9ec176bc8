package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mkDateDir(t *testing.T, tmpDir, name string, age time.Duration, sizeBytes int) {
	t.Helper()
	dir := filepath.Join(tmpDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	f := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(f, make([]byte, sizeBytes), 0o600))
	modTime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, modTime, modTime))
}

func TestSweepRemovesOlderThanRetention(t *testing.T) {
	tmpDir := t.TempDir()
	mkDateDir(t, tmpDir, "2020-01-01", 30*24*time.Hour, 10)
	mkDateDir(t, tmpDir, "2099-01-01", time.Hour, 10)

	removed, err := Sweep(tmpDir, RetentionPolicy{RetentionDays: 14, MaxSizeMB: 500}, time.Now())
	require.NoError(t, err)
	require.Len(t, removed, 1)

	_, err = os.Stat(filepath.Join(tmpDir, "2020-01-01"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(tmpDir, "2099-01-01"))
	require.NoError(t, err)
}

func TestSweepEvictsOldestFirstOverSizeBudget(t *testing.T) {
	tmpDir := t.TempDir()
	mkDateDir(t, tmpDir, "day1", time.Hour, 2*1024*1024)
	mkDateDir(t, tmpDir, "day2", 30*time.Minute, 2*1024*1024)

	removed, err := Sweep(tmpDir, RetentionPolicy{RetentionDays: 14, MaxSizeMB: 3}, time.Now())
	require.NoError(t, err)
	require.Len(t, removed, 1)
	require.Contains(t, removed[0], "day1")
}
