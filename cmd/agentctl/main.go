// Command agentctl is the submitter CLI: it enqueues work items against an
// agent's runtime, renders pending approval requests, and collects and
// signs an approver's decisions.
//
// Analogous to the teacher's cmd/cli, which opened a Temporal client and
// drove a REPL against a running workflow; agentctl has no server to
// attach to, so each subcommand builds its own runtime.Runtime against the
// same on-disk workspace a running cmd/agentworker uses — the two
// processes coordinate only through the shared checkpoint, approval and
// keyring files, never a direct connection.
//
// Usage:
//
//	agentctl submit -m "add a test for the parser"
//	agentctl submit -deferred-results '{"nonce":"...","decisions":[...]}' -approval-context <id>
//	agentctl approve -request request.json            approve every pending call
//	agentctl approve -request request.json -deny -message "no"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/autopoiesis-dev/agentcore/internal/agentworker"
	"github.com/autopoiesis-dev/agentcore/internal/approval"
	"github.com/autopoiesis-dev/agentcore/internal/bootstrap"
	"github.com/autopoiesis-dev/agentcore/internal/config"
	"github.com/autopoiesis-dev/agentcore/internal/history"
	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/queue"
	"github.com/autopoiesis-dev/agentcore/internal/runtime"
	"github.com/autopoiesis-dev/agentcore/internal/sandbox"
)

func main() {
	if sandbox.MaybeReexec() {
		return
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "submit":
		runSubmit(os.Args[2:])
	case "approve":
		runApprove(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agentctl <submit|approve> [flags]")
}

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	agent := fs.String("agent", "", "agent id")
	home := fs.String("home", "", "workspace home root")
	provider := fs.String("provider", "", "LLM provider override")
	model := fs.String("model", "", "model id override")
	message := fs.String("m", "", "prompt text")
	priority := fs.String("priority", "normal", "critical, normal or low")
	deferredResults := fs.String("deferred-results", "", "submission json {nonce, decisions} from a prior agentctl approve")
	approvalContext := fs.String("approval-context", "", "work item id this continuation resumes")
	fs.Parse(args)

	if *message == "" && *deferredResults == "" {
		fmt.Fprintln(os.Stderr, "agentctl submit: one of -m or -deferred-results is required")
		os.Exit(2)
	}

	rt, dispatcher := mustBuildDispatcher(*home, *agent, *provider, *model)

	input := models.WorkItemInput{}
	if *message != "" {
		input.Prompt = message
	} else {
		if *approvalContext == "" {
			fmt.Fprintln(os.Stderr, "agentctl submit: -approval-context is required with -deferred-results")
			os.Exit(2)
		}
		input.DeferredToolResultsJSON = deferredResults
		input.ApprovalContextID = approvalContext
	}

	item := models.WorkItem{
		ID:       workItemID(*approvalContext),
		Type:     models.WorkItemChat,
		Priority: models.WorkItemPriority(*priority),
		AgentID:  rt.AgentID,
		Input:    input,
	}

	output, err := dispatcher.EnqueueAndWait(context.Background(), item)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}

	if output.IsDeferred() {
		fmt.Println(*output.DeferredToolRequestsJSON)
		return
	}
	if output.Text != nil {
		fmt.Println(*output.Text)
	}
}

// workItemID reuses the approval context as the continuation's work item id
// so a resumed turn's checkpoint lookup finds the interrupted attempt; a
// fresh submission gets a new random id.
func workItemID(approvalContext string) string {
	if approvalContext != "" {
		return approvalContext
	}
	return "wi-" + uuid.NewString()
}

func runApprove(args []string) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	agent := fs.String("agent", "", "agent id")
	home := fs.String("home", "", "workspace home root")
	requestPath := fs.String("request", "-", "path to the ApprovalRequest json, or - for stdin")
	deny := fs.Bool("deny", false, "deny every pending call instead of approving")
	message := fs.String("message", "", "denial message, only used with -deny")
	fs.Parse(args)

	cfg, err := config.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	if *home != "" {
		cfg.Home = *home
	}
	if *agent != "" {
		cfg.Agent = *agent
	}

	selfPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	rt, err := bootstrap.BuildRuntime(cfg, bootstrap.ModelOptions{}, selfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}

	raw, err := readRequest(*requestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	var req agentworker.ApprovalRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: malformed approval request: %v\n", err)
		os.Exit(1)
	}

	var denialMessage *string
	if *deny && *message != "" {
		denialMessage = message
	}
	decisions := make([]approval.Decision, len(req.ToolCalls))
	for i, call := range req.ToolCalls {
		decisions[i] = approval.Decision{ToolCallID: call.ToolCallID, Approved: !*deny, DenialMessage: denialMessage}
	}

	if err := rt.Approvals.StoreSignedApproval(req.Nonce, decisions, rt.Keys); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}

	submission := struct {
		Nonce     string              `json:"nonce"`
		Decisions []approval.Decision `json:"decisions"`
	}{Nonce: req.Nonce, Decisions: decisions}
	out, err := json.Marshal(submission)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func readRequest(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func mustBuildDispatcher(home, agent, provider, model string) (*runtime.Runtime, *queue.Dispatcher) {
	cfg, err := config.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	if home != "" {
		cfg.Home = home
	}
	if agent != "" {
		cfg.Agent = agent
	}

	selfPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	rt, err := bootstrap.BuildRuntime(cfg, bootstrap.ModelOptions{Provider: provider, Model: model}, selfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}

	registry := runtime.New()
	registry.Register(rt)

	worker := agentworker.NewWorker(registry, history.DefaultMaxToolReturnBytes, history.CompactConfig{
		ContextWindowTokens: cfg.ContextWindowTokens,
		WarningThreshold:    cfg.WarningThreshold,
		CompactionThreshold: cfg.CompactionThreshold,
		KeepRecent:          cfg.KeepRecent,
	})
	return rt, queue.NewDispatcher(worker.Handle)
}
