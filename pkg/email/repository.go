package email

import "context"

// Repository stores message records and their lifecycle state. Retention
// and deletion are the repository's concern; the pipeline never deletes.
type Repository interface {
	// SaveMessage persists a new message and its recipients, assigning ids.
	SaveMessage(ctx context.Context, msg *Message) error

	// UpdateMessageStatus writes the message's current status and sent date.
	UpdateMessageStatus(ctx context.Context, msg *Message) error

	// GetMessage fetches a message with its recipients.
	GetMessage(ctx context.Context, id int64) (*Message, error)
}
