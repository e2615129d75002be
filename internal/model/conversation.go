package model

import "time"

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationClosed   ConversationStatus = "CLOSED"
	ConversationArchived ConversationStatus = "ARCHIVED"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationClosed, ConversationArchived:
		return true
	}
	return false
}

// Conversation is the single thread per (tenant, handle). At most one row
// exists for that pair for the lifetime of the participant; state is mutated,
// never re-created. MessageCount grows on every append, UnreadCount only on
// inbound and resets on mark-read.
type Conversation struct {
	ID            int64
	TenantID      int64
	ParticipantID *int64
	Handle        string
	Status        ConversationStatus
	LastMessage   string
	LastMessageAt time.Time
	MessageCount  int64
	UnreadCount   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
