package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cassiomorais/checkout/internal/messaging"
)

type brokerRecord struct {
	msg      messaging.Message
	acked    map[string]bool
	inFlight map[string]bool
}

// Broker is an in-memory at-least-once broker. Every consumer group sees every message
// published to the destinations it subscribed to. A delivery stays in flight until it is
// acked; Redeliver makes un-acked deliveries visible again, as a broker does after a
// consumer crash.
type Broker struct {
	mu      sync.Mutex
	records []*brokerRecord
	notify  chan struct{}

	// PublishFunc, if set, runs first; a non-nil error rejects the message.
	PublishFunc func(ctx context.Context, msg messaging.Message) error
}

func NewBroker() *Broker {
	return &Broker{notify: make(chan struct{})}
}

func (b *Broker) Publish(ctx context.Context, msg messaging.Message) error {
	if b.PublishFunc != nil {
		if err := b.PublishFunc(ctx, msg); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.records = append(b.records, &brokerRecord{
		msg:      msg,
		acked:    map[string]bool{},
		inFlight: map[string]bool{},
	})
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
	return nil
}

// Published returns every accepted message in publish order, duplicates included.
func (b *Broker) Published() []messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]messaging.Message, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r.msg)
	}
	return out
}

// Redeliver releases every un-acked in-flight delivery of the group.
func (b *Broker) Redeliver(group string) {
	b.mu.Lock()
	for _, r := range b.records {
		if !r.acked[group] {
			delete(r.inFlight, group)
		}
	}
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
}

// Subscribe returns a subscriber for the group. Fetch waits at most block for new messages.
func (b *Broker) Subscribe(group string, block time.Duration, destinations ...string) *BrokerSubscriber {
	return &BrokerSubscriber{b: b, group: group, block: block, destinations: destinations}
}

type BrokerSubscriber struct {
	b            *Broker
	group        string
	block        time.Duration
	destinations []string
}

func (s *BrokerSubscriber) Fetch(ctx context.Context) ([]messaging.Delivery, error) {
	deliveries, wait := s.take()
	if len(deliveries) > 0 {
		return deliveries, nil
	}

	timer := time.NewTimer(s.block)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case <-wait:
		deliveries, _ = s.take()
		return deliveries, nil
	}
}

func (s *BrokerSubscriber) take() ([]messaging.Delivery, <-chan struct{}) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	var out []messaging.Delivery
	for _, r := range s.b.records {
		if r.acked[s.group] || r.inFlight[s.group] {
			continue
		}
		if len(s.destinations) > 0 && !slices.Contains(s.destinations, r.msg.Destination) {
			continue
		}
		r.inFlight[s.group] = true
		rec := r
		out = append(out, messaging.NewDelivery(r.msg, func(context.Context) error {
			s.b.mu.Lock()
			defer s.b.mu.Unlock()
			rec.acked[s.group] = true
			delete(rec.inFlight, s.group)
			return nil
		}))
	}
	return out, s.b.notify
}

// DeadLetters records dead-lettered messages.
type DeadLetters struct {
	mu    sync.Mutex
	items []messaging.DeadLetter

	// DeadLetterFunc, if set, runs first; a non-nil error rejects the record.
	DeadLetterFunc func(ctx context.Context, dl messaging.DeadLetter) error
}

func (d *DeadLetters) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	if d.DeadLetterFunc != nil {
		if err := d.DeadLetterFunc(ctx, dl); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, dl)
	return nil
}

func (d *DeadLetters) Items() []messaging.DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.items)
}
