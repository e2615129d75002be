// Package repo defines the persistence interfaces of the pipeline and their
// Postgres implementations. The concurrency-critical invariants (one
// conversation per (tenant, handle), one message per provider message id, one
// queue item per message) are enforced here, by unique constraints and
// single-transaction mutations.
package repo

import (
	"context"
	"time"

	"github.com/flockline/flockline/internal/model"
)

type TenantRepository interface {
	// ResolveByChannelNumber maps the receiving channel number of an inbound
	// delivery to its tenant. Returns model.ErrNotFound for unknown numbers.
	ResolveByChannelNumber(ctx context.Context, channelNumber string) (model.Tenant, error)
	List(ctx context.Context) ([]model.Tenant, error)
}

type ParticipantRepository interface {
	FindByHandle(ctx context.Context, tenantID int64, handle string) (model.Participant, error)
	// Register creates the participant or, if the handle already exists,
	// reactivates it with the given name.
	Register(ctx context.Context, tenantID int64, handle, fullName string) (model.Participant, error)
	SetStatus(ctx context.Context, id int64, status model.ParticipantStatus) error
	TouchLastActive(ctx context.Context, id int64) error
}

type ConversationRepository interface {
	// Upsert returns the single conversation for (tenantID, handle), creating
	// it if absent. Safe under concurrent calls for the same key: exactly one
	// row ever exists.
	Upsert(ctx context.Context, tenantID int64, handle string, participantID *int64) (model.Conversation, error)
	GetByID(ctx context.Context, id int64) (model.Conversation, error)
	ListByStatus(ctx context.Context, tenantID int64, status model.ConversationStatus, limit, offset int) ([]model.Conversation, error)
	ListUnread(ctx context.Context, tenantID int64) ([]model.Conversation, error)
	// MarkRead resets the unread counter. Idempotent.
	MarkRead(ctx context.Context, id int64) error
	// SetStatus moves an ACTIVE conversation to CLOSED or ARCHIVED. Applying
	// it to an already-terminal conversation is a no-op, not an error.
	SetStatus(ctx context.Context, id int64, status model.ConversationStatus) error
	// SweepInactive archives ACTIVE conversations whose last message is older
	// than cutoff and returns how many were archived.
	SweepInactive(ctx context.Context, tenantID int64, cutoff time.Time) (int64, error)
}

type MessageRepository interface {
	// Insert stores m, attaching it to (and lazily creating) the conversation
	// for (m.TenantID, m.Handle), and bumps the conversation counters in the
	// same transaction. When m.ProviderMessageID was already stored, the
	// existing message is returned with created=false and nothing is written.
	Insert(ctx context.Context, m model.Message) (stored model.Message, created bool, err error)
	GetByID(ctx context.Context, id int64) (model.Message, error)
	GetByProviderID(ctx context.Context, providerMessageID string) (model.Message, error)
	// MarkProcessed records the classification outcome on an inbound message.
	MarkProcessed(ctx context.Context, id int64, label *model.CommandLabel, escalated bool) error
	UpdateStatus(ctx context.Context, providerMessageID string, status model.DeliveryStatus) error
	ListByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]model.Message, error)
}

type QueueRepository interface {
	// EnqueueIfAbsent creates a PENDING queue item for item.MessageID unless
	// one already exists, in which case the existing item is returned with
	// created=false.
	EnqueueIfAbsent(ctx context.Context, item model.QueueItem) (stored model.QueueItem, created bool, err error)
	GetByID(ctx context.Context, id int64) (model.QueueItem, error)
	ListByStatus(ctx context.Context, tenantID int64, status model.QueueStatus, limit, offset int) ([]model.QueueItem, error)
	CountByStatus(ctx context.Context, tenantID int64, status model.QueueStatus) (int64, error)
	// UpdateTransition persists the mutable fields of item. A CLOSED row is
	// never overwritten: the update reports model.ErrInvalidTransition
	// instead.
	UpdateTransition(ctx context.Context, item model.QueueItem) error
}

type AuditRepository interface {
	Insert(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error)
	ListRecent(ctx context.Context, tenantID int64, limit, offset int) ([]model.AuditEntry, error)
}
