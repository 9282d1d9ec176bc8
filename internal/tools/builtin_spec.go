package tools

func init() {
	RegisterSpec(SpecEntry{Name: "shell", Constructor: NewShellToolSpec})
	RegisterSpec(SpecEntry{Name: "shell_command", Constructor: NewShellToolSpec})
	RegisterSpec(SpecEntry{Name: "read_file", Constructor: NewReadFileToolSpec})
	RegisterSpec(SpecEntry{Name: "write_file", Constructor: NewWriteFileToolSpec})
	RegisterSpec(SpecEntry{Name: "list_dir", Constructor: NewListDirToolSpec})
	RegisterSpec(SpecEntry{Name: "grep_files", Constructor: NewGrepFilesToolSpec})
	RegisterSpec(SpecEntry{Name: "apply_patch", Constructor: NewApplyPatchToolSpec})
	RegisterSpec(SpecEntry{Name: "request_user_input", Constructor: NewRequestUserInputToolSpec})

	RegisterSpec(SpecEntry{Name: "spawn_agent", Constructor: NewSpawnAgentToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "send_input", Constructor: NewSendInputToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "wait", Constructor: NewWaitToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "close_agent", Constructor: NewCloseAgentToolSpec, Group: "collab"})
	RegisterSpec(SpecEntry{Name: "resume_agent", Constructor: NewResumeAgentToolSpec, Group: "collab"})
}
