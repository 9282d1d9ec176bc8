// Package queue implements the work queue and dispatcher (C6): a
// process-wide map agent_id -> priority queue, with exactly one goroutine
// draining each agent's queue (concurrency = 1 per agent), preserving
// per-agent history ordering. Cross-agent work proceeds in parallel.
//
// Grounded on the teacher's generic rendezvous-slot pattern
// (internal/workflow/control.go's ResponseSlot[T]/LoopControl) for the
// enqueue-and-wait handshake, and on original_source's DBOS-flavoured
// infra/work_queue.go (Queue(priority_enabled=True, concurrency=1)) for the
// per-agent single-writer semantics — reimplemented with container/heap and
// native goroutines since the distributed Temporal/DBOS runtime is out of
// scope (see SPEC_FULL.md §5).
package queue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/autopoiesis-dev/agentcore/internal/log"
	"github.com/autopoiesis-dev/agentcore/internal/models"
)

// Handler executes one WorkItem to completion, or returns an error if the
// turn itself failed outright (not merely deferred or partial).
type Handler func(ctx context.Context, item models.WorkItem) (models.WorkItemOutput, error)

type job struct {
	item   models.WorkItem
	seq    int64
	result chan jobResult
}

type jobResult struct {
	output models.WorkItemOutput
	err    error
}

// priorityHeap orders by priority rank desc, then FIFO (lower seq first).
type priorityHeap []*job

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	ri, rj := h[i].item.Priority.Rank(), h[j].item.Priority.Rank()
	if ri != rj {
		return ri > rj
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)         { *h = append(*h, x.(*job)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// AgentQueue is one agent's priority queue, drained by exactly one
// goroutine.
type AgentQueue struct {
	agentID string
	handler Handler

	mu      sync.Mutex
	heap    priorityHeap
	seq     int64
	notify  chan struct{}
	cancel  map[string]bool
}

func newAgentQueue(agentID string, handler Handler) *AgentQueue {
	aq := &AgentQueue{
		agentID: agentID,
		handler: handler,
		notify:  make(chan struct{}, 1),
		cancel:  map[string]bool{},
	}
	go aq.run()
	return aq
}

func (aq *AgentQueue) run() {
	logger := log.For("queue")
	for range aq.notify {
		for {
			aq.mu.Lock()
			if len(aq.heap) == 0 {
				aq.mu.Unlock()
				break
			}
			j := heap.Pop(&aq.heap).(*job)
			cancelled := aq.cancel[j.item.ID]
			delete(aq.cancel, j.item.ID)
			aq.mu.Unlock()

			if cancelled {
				j.result <- jobResult{err: models.NewAgentError(models.ErrorKindUnknownAgent, "work item cancelled before start")}
				close(j.result)
				continue
			}

			out, err := aq.handler(context.Background(), j.item)
			logger.Info("work item processed", "agent_id", aq.agentID, "work_item_id", j.item.ID, "deferred", out.IsDeferred(), "error", err != nil)
			j.result <- jobResult{output: out, err: err}
			close(j.result)
		}
	}
}

// enqueue pushes a job and wakes the worker; non-blocking for the caller.
func (aq *AgentQueue) enqueue(item models.WorkItem) *job {
	aq.mu.Lock()
	aq.seq++
	j := &job{item: item, seq: aq.seq, result: make(chan jobResult, 1)}
	heap.Push(&aq.heap, j)
	aq.mu.Unlock()
	select {
	case aq.notify <- struct{}{}:
	default:
	}
	return j
}

// markCancelled marks a not-yet-started item as cancelled. Best-effort: if the
// item already started, cancellation has no effect here (spec.md §5 says
// it arrives at the next suspension point inside the turn executor).
func (aq *AgentQueue) markCancelled(workItemID string) {
	aq.mu.Lock()
	aq.cancel[workItemID] = true
	aq.mu.Unlock()
}

// Dispatcher is the process-wide agent_id -> AgentQueue map.
type Dispatcher struct {
	mu       sync.Mutex
	queues   map[string]*AgentQueue
	handler  Handler
}

// NewDispatcher builds a dispatcher that runs handler for every dequeued
// work item, one at a time per agent_id.
func NewDispatcher(handler Handler) *Dispatcher {
	return &Dispatcher{queues: map[string]*AgentQueue{}, handler: handler}
}

func (d *Dispatcher) queueFor(agentID string) *AgentQueue {
	d.mu.Lock()
	defer d.mu.Unlock()
	aq, ok := d.queues[agentID]
	if !ok {
		aq = newAgentQueue(agentID, d.handler)
		d.queues[agentID] = aq
	}
	return aq
}

// Enqueue routes item to its agent's queue. Unknown agent_ids auto-create a
// queue. Non-blocking.
func (d *Dispatcher) Enqueue(item models.WorkItem) {
	d.queueFor(item.AgentID).enqueue(item)
}

// EnqueueAndWait routes item and blocks the caller until the worker returns
// an output or propagates a failure.
func (d *Dispatcher) EnqueueAndWait(ctx context.Context, item models.WorkItem) (models.WorkItemOutput, error) {
	j := d.queueFor(item.AgentID).enqueue(item)
	select {
	case r := <-j.result:
		return r.output, r.err
	case <-ctx.Done():
		return models.WorkItemOutput{}, ctx.Err()
	}
}

// Cancel marks a queued (not yet started) item as cancelled.
func (d *Dispatcher) Cancel(agentID, workItemID string) {
	d.queueFor(agentID).markCancelled(workItemID)
}
