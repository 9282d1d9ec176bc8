package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopoiesis-dev/agentcore/internal/models"
)

func item(id, agent string, priority models.WorkItemPriority) models.WorkItem {
	prompt := "go"
	return models.WorkItem{ID: id, AgentID: agent, Priority: priority, Type: models.WorkItemChat, Input: models.WorkItemInput{Prompt: &prompt}}
}

func TestEnqueueAndWaitReturnsOutput(t *testing.T) {
	d := NewDispatcher(func(ctx context.Context, it models.WorkItem) (models.WorkItemOutput, error) {
		return models.NewTextOutput("done:"+it.ID, "[]"), nil
	})
	out, err := d.EnqueueAndWait(context.Background(), item("w1", "alpha", models.PriorityNormal))
	require.NoError(t, err)
	require.NotNil(t, out.Text)
	assert.Equal(t, "done:w1", *out.Text)
}

func TestPriorityOrderingWithinAgent(t *testing.T) {
	var mu sync.Mutex
	var order []string
	started := make(chan struct{})
	proceed := make(chan struct{})

	d := NewDispatcher(func(ctx context.Context, it models.WorkItem) (models.WorkItemOutput, error) {
		if it.ID == "hold" {
			close(started)
			<-proceed
		}
		mu.Lock()
		order = append(order, it.ID)
		mu.Unlock()
		return models.NewTextOutput("ok", "[]"), nil
	})

	// Occupy the single worker goroutine so the next two enqueues queue up.
	holdResult := make(chan struct{})
	go func() {
		_, _ = d.EnqueueAndWait(context.Background(), item("hold", "alpha", models.PriorityNormal))
		close(holdResult)
	}()
	<-started

	d.Enqueue(item("low", "alpha", models.PriorityLow))
	d.Enqueue(item("critical", "alpha", models.PriorityCritical))
	close(proceed)
	<-holdResult

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hold", "critical", "low"}, order)
}

func TestCrossAgentWorkIsParallel(t *testing.T) {
	var inFlight int32
	var maxInFlight int32
	release := make(chan struct{})

	d := NewDispatcher(func(ctx context.Context, it models.WorkItem) (models.WorkItemOutput, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return models.NewTextOutput("ok", "[]"), nil
	})

	var wg sync.WaitGroup
	for _, agent := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			_, _ = d.EnqueueAndWait(context.Background(), item("w-"+agent, agent, models.PriorityNormal))
		}(agent)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&inFlight) == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&maxInFlight))
}

func TestCancelBeforeStart(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(func(ctx context.Context, it models.WorkItem) (models.WorkItemOutput, error) {
		if it.ID == "blocker" {
			<-block
		}
		return models.NewTextOutput("ok", "[]"), nil
	})

	go func() { _, _ = d.EnqueueAndWait(context.Background(), item("blocker", "alpha", models.PriorityNormal)) }()
	time.Sleep(10 * time.Millisecond)

	d.Enqueue(item("cancel-me", "alpha", models.PriorityNormal))
	d.Cancel("alpha", "cancel-me")
	close(block)
}
