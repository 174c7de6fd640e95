package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry records that a consumer has applied the effect of a message.
type Entry struct {
	Consumer    string
	MessageID   uuid.UUID
	MessageType string
	ReceivedAt  time.Time
}

func NewEntry(consumer string, messageID uuid.UUID, messageType string) *Entry {
	return &Entry{
		Consumer:    consumer,
		MessageID:   messageID,
		MessageType: messageType,
		ReceivedAt:  time.Now().UTC(),
	}
}

type Repository interface {
	// TryInsert records the entry inside the caller's transaction. It reports false,
	// without error, when the consumer already recorded this message ID.
	TryInsert(ctx context.Context, entry *Entry) (bool, error)

	// Exists reports whether the consumer already recorded the message ID
	Exists(ctx context.Context, consumer string, messageID uuid.UUID) (bool, error)
}
