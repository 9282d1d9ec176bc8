// Command agentworker runs the dispatcher and per-agent worker goroutines
// (C6+C8+C7 wired together): it builds one runtime.Registry, registers one
// agent's runtime.Runtime with it, wraps internal/agentworker.Worker in a
// queue.Dispatcher and drains work items from stdin or a single -m prompt.
//
// Analogous to the teacher's cmd/worker, which dialed a Temporal client
// and ran w.Run(worker.InterruptCh()) until signaled; this binary has no
// external server to dial, so it blocks on its own dispatcher instead.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/autopoiesis-dev/agentcore/internal/agentworker"
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

	agent := flag.String("agent", "", "agent id (default: AUTOPOIESIS_AGENT env or \"default\")")
	home := flag.String("home", "", "workspace home root (default: AUTOPOIESIS_HOME env)")
	provider := flag.String("provider", "", "LLM provider: anthropic or openai (default: anthropic)")
	model := flag.String("model", "", "model id override")
	message := flag.String("m", "", "submit one prompt, print the result, and exit instead of serving the queue")
	priority := flag.String("priority", "normal", "priority for -m: critical, normal or low")
	flag.Parse()

	cfg, err := config.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentworker: %v\n", err)
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
		fmt.Fprintf(os.Stderr, "agentworker: resolve executable path: %v\n", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildRuntime(cfg, bootstrap.ModelOptions{Provider: *provider, Model: *model}, selfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentworker: %v\n", err)
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
	dispatcher := queue.NewDispatcher(worker.Handle)

	if *message != "" {
		runOnce(dispatcher, rt.AgentID, *message, models.WorkItemPriority(*priority))
		return
	}

	fmt.Fprintf(os.Stderr, "agentworker: serving agent %q (read prompts from stdin, one per line; Ctrl-D to exit)\n", rt.AgentID)
	serveStdin(dispatcher, rt.AgentID, models.WorkItemPriority(*priority))
}

func runOnce(dispatcher *queue.Dispatcher, agentID, prompt string, priority models.WorkItemPriority) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	item := models.WorkItem{
		ID:       newWorkItemID(),
		Type:     models.WorkItemChat,
		Priority: priority,
		AgentID:  agentID,
		Input:    models.WorkItemInput{Prompt: &prompt},
	}
	output, err := dispatcher.EnqueueAndWait(ctx, item)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentworker: %v\n", err)
		os.Exit(1)
	}
	printOutput(output)
}

// serveStdin reads one prompt per line until EOF or an interrupt signal,
// enqueueing each as a chat work item at the given priority and printing its
// result before reading the next line.
func serveStdin(dispatcher *queue.Dispatcher, agentID string, priority models.WorkItemPriority) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		item := models.WorkItem{
			ID:       newWorkItemID(),
			Type:     models.WorkItemChat,
			Priority: priority,
			AgentID:  agentID,
			Input:    models.WorkItemInput{Prompt: &line},
		}
		output, err := dispatcher.EnqueueAndWait(ctx, item)
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentworker: %v\n", err)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		printOutput(output)
	}
}

func printOutput(output models.WorkItemOutput) {
	if output.IsDeferred() {
		fmt.Printf("[awaiting approval] %s\n", *output.DeferredToolRequestsJSON)
		return
	}
	if output.Text != nil {
		fmt.Println(*output.Text)
	}
}

func newWorkItemID() string {
	return "wi-" + uuid.NewString()
}
