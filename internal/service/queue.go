package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flockline/flockline/internal/channel"
	"github.com/flockline/flockline/internal/escalate"
	"github.com/flockline/flockline/internal/model"
	"github.com/flockline/flockline/internal/repo"
)

// Queue is the human work-queue state machine. Items move
// PENDING → ASSIGNED → REPLIED → CLOSED, where ASSIGNED is optional and
// CLOSED is terminal. Transition legality is checked here against the
// current row; the repository additionally refuses to overwrite a CLOSED
// row, so racing staff actions cannot reopen one.
type Queue struct {
	items    repo.QueueRepository
	messages repo.MessageRepository
	out      channel.SendClient
}

func NewQueue(items repo.QueueRepository, messages repo.MessageRepository, out channel.SendClient) *Queue {
	return &Queue{items: items, messages: messages, out: out}
}

// Enqueue creates the queue item for an escalating message. Keyed by message
// identity: an orchestration retry for the same message returns the existing
// item with created=false.
func (q *Queue) Enqueue(ctx context.Context, msg model.Message, d escalate.Decision) (model.QueueItem, bool, error) {
	item, created, err := q.items.EnqueueIfAbsent(ctx, model.QueueItem{
		TenantID:  msg.TenantID,
		MessageID: msg.ID,
		Handle:    msg.Handle,
		Category:  d.Category,
		Priority:  d.Priority,
	})
	if err != nil {
		return model.QueueItem{}, false, err
	}
	if created {
		slog.Info("message escalated to staff queue",
			"queue_id", item.ID, "message_id", msg.ID,
			"category", item.Category, "priority", item.Priority)
	}
	return item, created, nil
}

func (q *Queue) Get(ctx context.Context, id int64) (model.QueueItem, error) {
	return q.items.GetByID(ctx, id)
}

func (q *Queue) ListByStatus(ctx context.Context, tenantID int64, status model.QueueStatus, limit, offset int) ([]model.QueueItem, error) {
	return q.items.ListByStatus(ctx, tenantID, status, limit, offset)
}

func (q *Queue) CountByStatus(ctx context.Context, tenantID int64, status model.QueueStatus) (int64, error) {
	return q.items.CountByStatus(ctx, tenantID, status)
}

// Assign hands the item to a staff member. Re-assigning an ASSIGNED item to
// someone else is allowed; anything past ASSIGNED is not.
func (q *Queue) Assign(ctx context.Context, itemID, assigneeID int64) (model.QueueItem, error) {
	item, err := q.items.GetByID(ctx, itemID)
	if err != nil {
		return model.QueueItem{}, err
	}
	if !item.Status.CanAssign() {
		return model.QueueItem{}, fmt.Errorf("assign from %s: %w", item.Status, model.ErrInvalidTransition)
	}

	item.Status = model.QueueAssigned
	item.AssigneeID = &assigneeID
	if err := q.items.UpdateTransition(ctx, item); err != nil {
		return model.QueueItem{}, err
	}

	slog.Info("queue item assigned", "queue_id", itemID, "assignee_id", assigneeID)
	return item, nil
}

// Reply sends text to the participant, records who replied and when, and
// moves the item to next (REPLIED or CLOSED). The outbound send comes first:
// if the transport fails the item keeps its current status and the caller may
// retry.
func (q *Queue) Reply(ctx context.Context, itemID, assigneeID int64, text string, next model.QueueStatus) (model.QueueItem, error) {
	if next != model.QueueReplied && next != model.QueueClosed {
		return model.QueueItem{}, fmt.Errorf("reply target %s: %w", next, model.ErrInvalidTransition)
	}

	item, err := q.items.GetByID(ctx, itemID)
	if err != nil {
		return model.QueueItem{}, err
	}
	if !item.Status.CanReply() {
		return model.QueueItem{}, fmt.Errorf("reply from %s: %w", item.Status, model.ErrInvalidTransition)
	}

	providerMessageID, err := q.out.Send(ctx, item.Handle, text)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("send staff reply: %w", err)
	}

	if _, _, err := q.messages.Insert(ctx, model.Message{
		TenantID:          item.TenantID,
		Handle:            item.Handle,
		Direction:         model.Outbound,
		Body:              text,
		ProviderMessageID: providerMessageID,
		Status:            model.StatusSent,
	}); err != nil {
		slog.Error("staff reply sent but not recorded", "queue_id", itemID, "error", err)
	}

	now := time.Now().UTC()
	item.Status = next
	item.ReplyText = &text
	item.RepliedAt = &now
	item.RepliedBy = &assigneeID
	if err := q.items.UpdateTransition(ctx, item); err != nil {
		return model.QueueItem{}, err
	}

	slog.Info("staff reply recorded", "queue_id", itemID, "replied_by", assigneeID, "status", next)
	return item, nil
}

// Close terminates the item. Closing an already-CLOSED item is an
// InvalidTransition, not a no-op: CLOSED must never be re-entered through
// this interface.
func (q *Queue) Close(ctx context.Context, itemID int64) error {
	item, err := q.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status.Terminal() {
		return fmt.Errorf("close from %s: %w", item.Status, model.ErrInvalidTransition)
	}

	item.Status = model.QueueClosed
	if err := q.items.UpdateTransition(ctx, item); err != nil {
		return err
	}

	slog.Info("queue item closed", "queue_id", itemID)
	return nil
}
