package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toora-ai/be-approvals/internal/gate"
	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/notify"
	"github.com/toora-ai/be-approvals/internal/queue"
	"github.com/toora-ai/be-approvals/internal/repository"
)

// scriptedGate returns decisions in order, one per call.
type scriptedGate struct {
	mu        sync.Mutex
	decisions []gate.Decision
	err       error
	requests  []string
}

func (g *scriptedGate) RequestApproval(_ context.Context, _ int64, description string, _ map[string]any) (gate.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, description)
	if g.err != nil {
		return "", g.err
	}
	decision := g.decisions[0]
	g.decisions = g.decisions[1:]
	return decision, nil
}

type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []queue.Action
	err        error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ int64, action queue.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, action)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []notify.Event
}

func (b *recordingBus) PublishEvent(_ context.Context, event notify.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) statuses() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var statuses []string
	for _, event := range b.events {
		data := event.Data.(map[string]any)
		statuses = append(statuses, data["status"].(string))
	}
	return statuses
}

func newTestWorker(g *scriptedGate, d *recordingDispatcher) (*Worker, *repository.MemoryRunStore, *recordingBus) {
	runs := repository.NewMemoryRunStore()
	bus := &recordingBus{}
	w := New(nil, runs, g, d, bus, logger.Nop())
	return w, runs, bus
}

func TestProcessJobDispatchesApprovedActions(t *testing.T) {
	g := &scriptedGate{decisions: []gate.Decision{gate.DecisionApproved, gate.DecisionRejected, gate.DecisionExpired}}
	d := &recordingDispatcher{}
	w, runs, bus := newTestWorker(g, d)

	job := &queue.Job{
		TriggeredBy: "manual",
		Actions: []queue.Action{
			{Type: "send_email", Description: "Reply to the client", Payload: map[string]any{"to": "a@b.c"}},
			{Type: "create_notion_task", Description: "File the follow-up"},
			{Type: "send_email", Description: "Nobody answered this one"},
		},
	}
	w.ProcessJob(context.Background(), job)

	// Every action was gated, only the approved one was dispatched.
	assert.Len(t, g.requests, 3)
	require.Len(t, d.dispatched, 1)
	assert.Equal(t, "send_email", d.dispatched[0].Type)
	assert.Equal(t, "Reply to the client", d.dispatched[0].Description)

	run, err := runs.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed", run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, "3 action(s): 1 approved and dispatched, 1 rejected, 1 expired", *run.Summary)

	assert.Equal(t, []string{"running", "completed"}, bus.statuses())
}

func TestProcessJobWithNoActions(t *testing.T) {
	g := &scriptedGate{}
	d := &recordingDispatcher{}
	w, runs, bus := newTestWorker(g, d)

	w.ProcessJob(context.Background(), &queue.Job{TriggeredBy: "schedule"})

	assert.Empty(t, g.requests)
	assert.Empty(t, d.dispatched)

	run, err := runs.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, []string{"running", "completed"}, bus.statuses())
}

func TestProcessJobGateFailureFailsRun(t *testing.T) {
	g := &scriptedGate{err: errors.New("store unavailable")}
	d := &recordingDispatcher{}
	w, runs, bus := newTestWorker(g, d)

	job := &queue.Job{
		TriggeredBy: "manual",
		Actions:     []queue.Action{{Type: "send_email", Description: "doomed"}},
	}
	w.ProcessJob(context.Background(), job)

	run, err := runs.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "failed", run.Status)
	require.NotNil(t, run.Summary)
	assert.Contains(t, *run.Summary, "store unavailable")

	assert.Equal(t, []string{"running", "failed"}, bus.statuses())
}

func TestProcessJobDispatchFailureFailsRun(t *testing.T) {
	g := &scriptedGate{decisions: []gate.Decision{gate.DecisionApproved}}
	d := &recordingDispatcher{err: errors.New("nats unreachable")}
	w, runs, _ := newTestWorker(g, d)

	job := &queue.Job{
		TriggeredBy: "manual",
		Actions:     []queue.Action{{Type: "send_email", Description: "approved but lost"}},
	}
	w.ProcessJob(context.Background(), job)

	run, err := runs.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "failed", run.Status)
}

func TestActionContextMergesTypeAndPayload(t *testing.T) {
	action := queue.Action{
		Type:    "send_email",
		Payload: map[string]any{"to": "a@b.c", "subject": "hi"},
	}
	contextData := actionContext(action)

	assert.Equal(t, "send_email", contextData["action_type"])
	assert.Equal(t, "a@b.c", contextData["to"])
	assert.Equal(t, "hi", contextData["subject"])
}
