package model

import "time"

// CommandLabel is the intent assigned by the classifier. A message with no
// matching rule carries no label at all; that is a normal outcome, not an
// error.
type CommandLabel string

const (
	LabelRegister CommandLabel = "REGISTER"
	LabelGive     CommandLabel = "GIVE"
	LabelBalance  CommandLabel = "BALANCE"
	LabelPrayer   CommandLabel = "PRAYER"
	LabelInfo     CommandLabel = "INFO"
	LabelHelp     CommandLabel = "HELP"
)

// AuditEntry records one classified inbound message: what the pipeline
// decided, what it replied, and how long the whole pass took. Entries are
// append-only and never mutated.
type AuditEntry struct {
	ID           int64
	TenantID     int64
	Handle       string
	Command      *CommandLabel
	CommandText  string
	Success      bool
	ErrorDetail  *string
	ResponseSent string
	LatencyMS    int64
	CreatedAt    time.Time
}
