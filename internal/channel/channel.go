package channel

import "context"

// SendClient is the outbound messaging transport. Send returns the provider
// message id assigned to the delivery, which the message store uses as its
// idempotency key for outbound records.
type SendClient interface {
	Send(ctx context.Context, handle, text string) (providerMessageID string, err error)
	SendWithMedia(ctx context.Context, handle, text, mediaURL string) (providerMessageID string, err error)
}

// StaffDirectory resolves staff assignee ids to display names for the
// queue-facing surface.
type StaffDirectory interface {
	ResolveAssigneeName(ctx context.Context, assigneeID int64) (string, error)
}

// StaticDirectory is a fixed id-to-name staff roster. Unknown ids resolve to
// an empty name rather than an error, so a stale assignment never breaks a
// queue listing.
type StaticDirectory map[int64]string

func (d StaticDirectory) ResolveAssigneeName(_ context.Context, assigneeID int64) (string, error) {
	return d[assigneeID], nil
}
