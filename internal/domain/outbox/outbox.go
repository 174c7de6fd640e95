package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/google/uuid"
)

// Entry is an event staged for delivery. SentAt is nil until the relay has handed it to the broker.
type Entry struct {
	Sequence    int64
	MessageID   uuid.UUID
	MessageType event.Kind
	AggregateID uuid.UUID
	Destination string
	Payload     []byte
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	SentAt      *time.Time
}

// NewEntry serializes e into an undelivered entry. Sequence is assigned by the store.
func NewEntry(e event.Event) (*Entry, error) {
	payload, err := event.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Kind(), err)
	}
	dest, err := event.Destination(e.Kind())
	if err != nil {
		return nil, err
	}

	return &Entry{
		MessageID:   e.Meta().ID,
		MessageType: e.Kind(),
		AggregateID: e.AggregateID(),
		Destination: dest,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (e *Entry) Delivered() bool {
	return e.SentAt != nil
}

// Stager writes raised events to the outbox. It must run inside the local transaction
// that persists the aggregate that raised them.
type Stager struct {
	repo Repository
}

func NewStager(repo Repository) *Stager {
	return &Stager{repo: repo}
}

// Stage converts and inserts events in the order they were raised.
func (s *Stager) Stage(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*Entry, 0, len(events))
	for _, e := range events {
		entry, err := NewEntry(e)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	return s.repo.Insert(ctx, entries...)
}
