package queue

import "context"

// Job handles one message type.
type Job interface {
	// Type returns the message type the job consumes.
	Type() string

	// Handle processes the raw JSON payload.
	Handle(ctx context.Context, payload []byte) error
}
