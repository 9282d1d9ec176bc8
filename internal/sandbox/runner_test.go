package sandbox

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/execenv"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

// TestMain lets the test binary itself stand in for a cmd/ entrypoint: the
// same re-exec marker a production binary checks at the top of main() is
// checked here first, so Runner.Run can launch "this test binary" as its
// own sandboxed target the way cmd/agentworker launches itself.
func TestMain(m *testing.M) {
	if MaybeReexec() {
		return
	}
	os.Exit(m.Run())
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("sandbox re-exec requires a unix platform")
	}
	home := t.TempDir()
	paths, err := workspace.Resolve(home, "runner-test")
	require.NoError(t, err)
	require.NoError(t, paths.MkdirAll())

	self, err := os.Executable()
	require.NoError(t, err)

	return NewRunner(paths, DefaultLimits(), execenv.Default(), NewNoopSandboxManager(), nil, self)
}

func TestRunExecutesCommandAndCapturesOutput(t *testing.T) {
	r := newTestRunner(t)
	result, err := r.Run(context.Background(), "call-1", []string{"/bin/echo", "hello"}, "", 5*time.Second, "free")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "hello")
	assert.False(t, result.Truncated)
}

func TestRunRejectsCwdOutsideWorkspace(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), "call-2", []string{"/bin/echo", "hi"}, "/etc", 5*time.Second, "free")
	assert.Error(t, err)
}

func TestRunTruncatesLargeOutputAndPersistsFull(t *testing.T) {
	r := newTestRunner(t)
	// yes(1) piped through head produces well over the truncation threshold.
	result, err := r.Run(context.Background(), "call-3", []string{"/bin/sh", "-c", "yes x | head -c 50000"}, "", 5*time.Second, "free")
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.NotEmpty(t, result.FullOutputPath)

	data, err := os.ReadFile(result.FullOutputPath)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(data), 50000)
}

func TestRunAppendsAuditEntry(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), "call-4", []string{"/bin/echo", "audited"}, "", 5*time.Second, "review")
	require.NoError(t, err)

	data, err := os.ReadFile(r.audit.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tier":"review"`)
}
