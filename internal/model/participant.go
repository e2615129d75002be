package model

import "time"

type ParticipantStatus string

const (
	ParticipantActive   ParticipantStatus = "ACTIVE"
	ParticipantInactive ParticipantStatus = "INACTIVE"
)

// Participant is a contact identified by a normalized handle, unique within a
// tenant. Participants are never hard-deleted; unsubscribing flips the status
// to INACTIVE.
type Participant struct {
	ID           int64
	TenantID     int64
	Handle       string
	FullName     string
	Status       ParticipantStatus
	JoinedAt     time.Time
	LastActiveAt time.Time
}

// Tenant is the isolation boundary. Every receiving channel number maps to
// exactly one tenant, which is how inbound deliveries are routed.
type Tenant struct {
	ID            int64
	Name          string
	ChannelNumber string
	Location      string
	ContactPhone  string
	CreatedAt     time.Time
}
