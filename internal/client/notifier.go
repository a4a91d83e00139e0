package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/toora-ai/be-approvals/internal/repository"
)

// Notifier publishes approval notification requests to NATS for delivery by
// the chat-bot service (Telegram today; the bot owns the wire format).
//
// Subject: notifications.approvals.requested
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never block the gate.
// A human can still resolve the approval from the dashboard.
type Notifier struct {
	nats *Nats
	log  zerolog.Logger
}

// contextPreviewLimit caps the context bytes forwarded to the chat channel.
// The store keeps the full context; only the preview is size-capped.
const contextPreviewLimit = 500

const approvalRequestedSubject = "notifications.approvals.requested"

// ApprovalNotification is the JSON schema published to NATS.
type ApprovalNotification struct {
	Ref            string          `json:"ref"`
	ApprovalID     int64           `json:"approval_id"`
	RunID          int64           `json:"run_id"`
	Description    string          `json:"description"`
	ContextPreview json.RawMessage `json:"context_preview,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	// Callback payloads for the bot's approve/reject buttons.
	ApproveData string `json:"approve_data"`
	RejectData  string `json:"reject_data"`
}

// NewNotifier creates a notifier backed by the given NATS connection.
func NewNotifier(nats *Nats, log zerolog.Logger) *Notifier {
	return &Notifier{nats: nats, log: log}
}

// NotifyHuman publishes the approval request toward the human channel and
// returns the message ref, or "" when the publish failed or no transport is
// configured.
func (p *Notifier) NotifyHuman(ctx context.Context, approval *repository.ApprovalRequest) string {
	if p.nats == nil {
		return ""
	}

	notification := &ApprovalNotification{
		Ref:            uuid.NewString(),
		ApprovalID:     approval.ID,
		RunID:          approval.RunID,
		Description:    approval.Description,
		ContextPreview: contextPreview(approval.Context),
		ExpiresAt:      approval.ExpiresAt,
		ApproveData:    fmt.Sprintf("approve:%d", approval.ID),
		RejectData:     fmt.Sprintf("reject:%d", approval.ID),
	}

	data, err := json.Marshal(notification)
	if err != nil {
		p.log.Warn().Err(err).Int64("approval_id", approval.ID).Msg("notifier: failed to marshal notification")
		return ""
	}

	if err := p.nats.Publish(ctx, approvalRequestedSubject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", approvalRequestedSubject).
			Int64("approval_id", approval.ID).
			Msg("notifier: failed to publish notification request (non-fatal)")
		return ""
	}

	p.log.Debug().
		Str("subject", approvalRequestedSubject).
		Int64("approval_id", approval.ID).
		Str("ref", notification.Ref).
		Msg("notifier: approval notification published")
	return notification.Ref
}

// contextPreview serializes the context and truncates it to the transport
// cap. Truncation can leave invalid JSON, so the preview is re-wrapped as a
// string when cut.
func contextPreview(contextData map[string]any) json.RawMessage {
	if len(contextData) == 0 {
		return nil
	}
	data, err := json.Marshal(contextData)
	if err != nil {
		return nil
	}
	if len(data) <= contextPreviewLimit {
		return data
	}
	truncated, err := json.Marshal(string(data[:contextPreviewLimit]) + "…")
	if err != nil {
		return nil
	}
	return truncated
}
