package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/notify"
	"github.com/toora-ai/be-approvals/internal/queue"
	"github.com/toora-ai/be-approvals/internal/repository"
	"github.com/toora-ai/be-approvals/internal/service"
)

// nopChannel satisfies the pub/sub interfaces without a transport.
type nopChannel struct{}

func (nopChannel) PublishDecision(context.Context, int64, bool) error { return nil }
func (nopChannel) SubscribeDecision(context.Context, int64) (notify.DecisionSub, error) {
	panic("handler tests never subscribe")
}
func (nopChannel) PublishEvent(context.Context, notify.Event) error { return nil }

type fixture struct {
	handler *HTTPHandler
	store   *repository.MemoryApprovalStore
	runs    *repository.MemoryRunStore
	queue   *queue.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := repository.NewMemoryApprovalStore()
	runs := repository.NewMemoryRunStore()
	q := queue.New(client)
	svc := service.NewApprovalService(store, nopChannel{}, nopChannel{}, logger.Nop())

	return &fixture{
		handler: NewHTTPHandler(svc, q, runs, logger.Nop()),
		store:   store,
		runs:    runs,
		queue:   q,
	}
}

func (f *fixture) createPending(t *testing.T) *repository.ApprovalRequest {
	t.Helper()
	approval, err := f.store.Create(context.Background(), 1, "Send the reply", nil, 600*time.Second)
	require.NoError(t, err)
	return approval
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestApproveTransitions(t *testing.T) {
	f := newFixture(t)
	approval := f.createPending(t)

	rec := postJSON(t, f.handler.ApproveApproval, "/api/v1/approvals/approve", map[string]int64{"id": approval.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	var result service.ResolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Transitioned)
	assert.Equal(t, repository.StatusApproved, result.Approval.Status)
}

func TestRejectThenApproveIsNoOp(t *testing.T) {
	f := newFixture(t)
	approval := f.createPending(t)

	rec := postJSON(t, f.handler.RejectApproval, "/api/v1/approvals/reject", map[string]int64{"id": approval.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	// Double-tap in the other direction: still 200, no transition.
	rec = postJSON(t, f.handler.ApproveApproval, "/api/v1/approvals/approve", map[string]int64{"id": approval.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	var result service.ResolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Transitioned)
	assert.Equal(t, repository.StatusRejected, result.Approval.Status)
}

func TestResolveUnknownIDIs404(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(t, f.handler.ApproveApproval, "/api/v1/approvals/approve", map[string]int64{"id": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveValidation(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(t, f.handler.ApproveApproval, "/api/v1/approvals/approve", map[string]int64{"id": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals/approve", nil)
	rec2 := httptest.NewRecorder()
	f.handler.ApproveApproval(rec2, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec2.Code)
}

func TestGetApproval(t *testing.T) {
	f := newFixture(t)
	approval := f.createPending(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals/get?id=1", nil)
	rec := httptest.NewRecorder()
	f.handler.GetApproval(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got repository.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, approval.ID, got.ID)
	assert.Equal(t, repository.StatusPending, got.Status)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/approvals/get?id=999", nil)
	rec = httptest.NewRecorder()
	f.handler.GetApproval(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/approvals/get?id=abc", nil)
	rec = httptest.NewRecorder()
	f.handler.GetApproval(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListApprovalsWithFilter(t *testing.T) {
	f := newFixture(t)
	first := f.createPending(t)
	f.createPending(t)

	_, err := f.store.TryResolve(context.Background(), first.ID, true)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals?status=pending", nil)
	rec := httptest.NewRecorder()
	f.handler.ListApprovals(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var approvals []*repository.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approvals))
	require.Len(t, approvals, 1)
	assert.Equal(t, repository.StatusPending, approvals[0].Status)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/approvals?status=bogus", nil)
	rec = httptest.NewRecorder()
	f.handler.ListApprovals(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListApprovalsEmptyIsArray(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals", nil)
	rec := httptest.NewRecorder()
	f.handler.ListApprovals(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRunAgentEnqueuesJob(t *testing.T) {
	f := newFixture(t)

	rec := postJSON(t, f.handler.RunAgent, "/api/v1/agent/run", queue.Job{
		TriggeredBy: "chat",
		Input:       "handle the inbox",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"message":"Agent job queued."}`, rec.Body.String())

	job, err := f.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "chat", job.TriggeredBy)
	assert.Equal(t, "handle the inbox", job.Input)
}

func TestRunAgentDefaultsTrigger(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/run", nil)
	rec := httptest.NewRecorder()
	f.handler.RunAgent(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	job, err := f.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "manual", job.TriggeredBy)
}

func TestAgentStatus(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/status", nil)
	rec := httptest.NewRecorder()
	f.handler.AgentStatus(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"idle"}`, rec.Body.String())

	run, err := f.runs.Create(context.Background(), "manual")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	f.handler.AgentStatus(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got repository.AgentRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "running", got.Status)
}
