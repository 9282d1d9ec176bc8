package sandbox

// Limits are the resource caps applied to every sandboxed subprocess,
// grounded on original_source's SandboxLimits: max concurrent processes,
// max output file size, max CPU seconds.
type Limits struct {
	MaxProcesses     int
	MaxFileSizeBytes int64
	MaxCPUSeconds    int
}

// DefaultLimits matches original_source's _DEFAULT_MAX_* constants.
func DefaultLimits() Limits {
	return Limits{
		MaxProcesses:     64,
		MaxFileSizeBytes: 16 * 1024 * 1024,
		MaxCPUSeconds:    30,
	}
}
