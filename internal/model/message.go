package model

import "time"

type Direction string

const (
	Inbound  Direction = "INBOUND"
	Outbound Direction = "OUTBOUND"
)

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
	StatusFailed    DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// Message is immutable once stored except for its delivery status and the
// command/escalation flags set by the pipeline. ProviderMessageID is the
// idempotency key: the transport delivers at-least-once, so a second insert
// with the same id must return the stored row untouched.
type Message struct {
	ID                int64
	TenantID          int64
	ConversationID    int64
	ParticipantID     *int64
	Handle            string
	Direction         Direction
	Body              string
	ProviderMessageID string
	Status            DeliveryStatus
	Command           *CommandLabel
	Escalated         bool
	Processed         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
