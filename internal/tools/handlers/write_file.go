package handlers

import (
	"context"
	"os"
	"path/filepath"

	"github.com/autopoiesis-dev/agentcore/internal/tools"
)

// WriteFileTool creates or overwrites a file with the given content.
type WriteFileTool struct{}

// NewWriteFileTool creates a new write_file tool handler.
func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{}
}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating always returns true: write_file always touches the filesystem.
func (t *WriteFileTool) IsMutating(invocation *tools.ToolInvocation) bool {
	return true
}

func (t *WriteFileTool) Handle(_ context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	pathArg, ok := invocation.Arguments["path"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: path")
	}
	path, ok := pathArg.(string)
	if !ok || path == "" {
		return nil, tools.NewValidationError("path must be a non-empty string")
	}

	contentArg, ok := invocation.Arguments["content"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: content")
	}
	content, ok := contentArg.(string)
	if !ok {
		return nil, tools.NewValidationError("content must be a string")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		success := false
		return &tools.ToolOutput{Content: "Failed to create parent directory: " + err.Error(), Success: &success}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		success := false
		return &tools.ToolOutput{Content: "Failed to write file: " + err.Error(), Success: &success}, nil
	}

	success := true
	return &tools.ToolOutput{Content: "Wrote " + path, Success: &success}, nil
}
