package model

import "time"

type QueueCategory string

const (
	CategoryPrayer     QueueCategory = "PRAYER"
	CategoryCounseling QueueCategory = "COUNSELING"
	CategoryInquiry    QueueCategory = "INQUIRY"
	CategoryComplaint  QueueCategory = "COMPLAINT"
	CategoryOther      QueueCategory = "OTHER"
)

type QueuePriority string

const (
	PriorityHigh   QueuePriority = "HIGH"
	PriorityMedium QueuePriority = "MEDIUM"
	PriorityLow    QueuePriority = "LOW"
)

type QueueStatus string

const (
	QueuePending  QueueStatus = "PENDING"
	QueueAssigned QueueStatus = "ASSIGNED"
	QueueReplied  QueueStatus = "REPLIED"
	QueueClosed   QueueStatus = "CLOSED"
)

// Terminal reports whether no further transition is allowed from s.
func (s QueueStatus) Terminal() bool { return s == QueueClosed }

// CanAssign reports whether an item in status s may be (re)assigned.
// Re-assignment of an already ASSIGNED item is allowed; anything past
// ASSIGNED is not.
func (s QueueStatus) CanAssign() bool {
	return s == QueuePending || s == QueueAssigned
}

// CanReply reports whether an item in status s accepts a staff reply.
func (s QueueStatus) CanReply() bool { return !s.Terminal() }

// QueueItem is one unit of human work. It references the inbound message that
// triggered escalation and carries its own lifecycle, independent of the
// originating conversation.
type QueueItem struct {
	ID         int64
	TenantID   int64
	MessageID  int64
	Handle     string
	Category   QueueCategory
	Priority   QueuePriority
	Status     QueueStatus
	AssigneeID *int64
	ReplyText  *string
	RepliedAt  *time.Time
	RepliedBy  *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
