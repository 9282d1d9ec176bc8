package approvalui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	argsStyle   = lipgloss.NewStyle().Faint(true)
)

// Render produces one line per request with pretty-printed args, matching
// spec.md §4.10 step 2's rendering contract.
func Render(payload DeferredRequestsPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(fmt.Sprintf("Approval requested (plan %s…):", payload.PlanHashPrefix)))
	for i, req := range payload.Requests {
		fmt.Fprintf(&b, "  %d. %s %s\n", i+1, nameStyle.Render(req.ToolName), argsStyle.Render(renderArgs(req.Args)))
	}
	return b.String()
}

func renderArgs(args any) string {
	raw, err := json.MarshalIndent(args, "     ", "  ")
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(raw)
}
