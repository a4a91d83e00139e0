package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/toora-ai/be-approvals/internal/errors"
	"github.com/toora-ai/be-approvals/internal/logger"
	"github.com/toora-ai/be-approvals/internal/queue"
	"github.com/toora-ai/be-approvals/internal/repository"
	"github.com/toora-ai/be-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	queue     *queue.Queue
	runs      repository.RunStore
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(approvals *service.ApprovalService, q *queue.Queue, runs repository.RunStore, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		queue:     q,
		runs:      runs,
		log:       log,
	}
}

// resolveRequest is the body for the approve/reject endpoints.
type resolveRequest struct {
	ID int64 `json:"id"`
}

// ListApprovals handles list approvals HTTP requests
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var statusPtr *repository.ApprovalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := repository.ApprovalStatus(raw)
		switch status {
		case repository.StatusPending, repository.StatusApproved, repository.StatusRejected, repository.StatusExpired:
			statusPtr = &status
		default:
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
	}

	approvals, err := h.approvals.List(r.Context(), statusPtr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if approvals == nil {
		approvals = []*repository.ApprovalRequest{}
	}

	writeJSON(w, http.StatusOK, approvals)
}

// GetApproval handles get approval HTTP requests
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := parseID(w, r.URL.Query().Get("id"))
	if !ok {
		return
	}

	approval, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, approval)
}

// ApproveApproval handles approve HTTP requests
func (h *HTTPHandler) ApproveApproval(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, true)
}

// RejectApproval handles reject HTTP requests
func (h *HTTPHandler) RejectApproval(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, false)
}

// resolve runs the shared approve/reject path. A request that loses the race
// (already decided, expired) is answered 200 with transitioned=false so
// double-taps from flaky UIs stay harmless; unknown ids are 404.
func (h *HTTPHandler) resolve(w http.ResponseWriter, r *http.Request, approved bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID <= 0 {
		http.Error(w, "Approval ID is required", http.StatusBadRequest)
		return
	}

	result, err := h.approvals.Resolve(r.Context(), req.ID, approved)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RunAgent handles agent run trigger HTTP requests
func (h *HTTPHandler) RunAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job := &queue.Job{TriggeredBy: "manual"}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(job); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if job.TriggeredBy == "" {
		job.TriggeredBy = "manual"
	}

	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Agent job queued."})
}

// AgentStatus handles agent status HTTP requests
func (h *HTTPHandler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	run, err := h.runs.Latest(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.ErrCodeInvalid:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.ErrCodeConflict:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	if raw == "" {
		http.Error(w, "Approval ID is required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid approval ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
