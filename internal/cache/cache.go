package cache

import "context"

// DedupeCache is the fast path in front of the messages table's unique index
// on provider_message_id. A hit lets the pipeline skip the insert attempt for
// a retried delivery; a miss (or an unavailable cache) just falls through to
// the authoritative database check.
type DedupeCache interface {
	Seen(ctx context.Context, providerMessageID string) (bool, error)
	MarkSeen(ctx context.Context, providerMessageID string) error
}
