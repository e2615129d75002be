package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/flockline/flockline/internal/model"
	"github.com/flockline/flockline/internal/repo"
)

// Tracker owns the conversation lifecycle: the single thread per
// (tenant, handle), its read/close/archive transitions and the periodic
// archival sweep. Counter mutations happen inside the message store's
// transaction, not here.
type Tracker struct {
	convs repo.ConversationRepository
}

func NewTracker(convs repo.ConversationRepository) *Tracker {
	return &Tracker{convs: convs}
}

func (t *Tracker) Upsert(ctx context.Context, tenantID int64, handle string, participantID *int64) (model.Conversation, error) {
	return t.convs.Upsert(ctx, tenantID, handle, participantID)
}

func (t *Tracker) Get(ctx context.Context, id int64) (model.Conversation, error) {
	return t.convs.GetByID(ctx, id)
}

func (t *Tracker) ListByStatus(ctx context.Context, tenantID int64, status model.ConversationStatus, limit, offset int) ([]model.Conversation, error) {
	return t.convs.ListByStatus(ctx, tenantID, status, limit, offset)
}

func (t *Tracker) ListUnread(ctx context.Context, tenantID int64) ([]model.Conversation, error) {
	return t.convs.ListUnread(ctx, tenantID)
}

func (t *Tracker) MarkRead(ctx context.Context, id int64) error {
	if err := t.convs.MarkRead(ctx, id); err != nil {
		return err
	}
	slog.Info("conversation marked read", "conversation_id", id)
	return nil
}

func (t *Tracker) Close(ctx context.Context, id int64) error {
	return t.convs.SetStatus(ctx, id, model.ConversationClosed)
}

func (t *Tracker) Archive(ctx context.Context, id int64) error {
	return t.convs.SetStatus(ctx, id, model.ConversationArchived)
}

// SweepInactive archives the tenant's ACTIVE conversations whose last message
// is older than threshold.
func (t *Tracker) SweepInactive(ctx context.Context, tenantID int64, threshold time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	n, err := t.convs.SweepInactive(ctx, tenantID, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("archived inactive conversations", "tenant_id", tenantID, "count", n)
	}
	return n, nil
}
