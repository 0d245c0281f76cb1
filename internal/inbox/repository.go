package inbox

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("inbox: not found")

// Repository persists conversations and messages.
//
// FindOrCreate and UpsertMessage must each be a single atomic operation so
// concurrent webhooks for the same counterparty or correlation id converge on
// one row.
type Repository interface {
	FindOrCreate(ctx context.Context, orgID, phone, contactName string, now time.Time) (Conversation, error)
	// UpsertMessage inserts m or, when (ConversationID, ExternalID) exists,
	// updates it in place. created reports whether a new row was inserted.
	UpsertMessage(ctx context.Context, m Message) (out Message, created bool, err error)
	// Touch records m as the conversation's latest activity and bumps the
	// unread counter when incrementUnread is set. Older activity never
	// replaces newer last-message metadata.
	Touch(ctx context.Context, conversationID string, m Message, incrementUnread bool) error

	Conversation(ctx context.Context, id string) (Conversation, error)
	MessageByExternalID(ctx context.Context, conversationID, externalID string) (Message, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}
