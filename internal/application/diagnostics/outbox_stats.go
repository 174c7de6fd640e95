package diagnostics

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/outbox"
)

const (
	hintBacklog = "Messages are waiting in the outbox. Check the worker logs for publish errors and the broker's availability."
	hintEmpty   = "Outbox is empty. If a downstream service missed an event, check its consumer group and dead-letter sink."
)

// OutboxStats is a read-only view of the relay backlog.
type OutboxStats struct {
	Pending int64
	Recent  []*outbox.Entry
	Hint    string
}

type OutboxStatsUseCase struct {
	repo        outbox.Repository
	recentLimit int
}

func NewOutboxStatsUseCase(repo outbox.Repository, recentLimit int) *OutboxStatsUseCase {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &OutboxStatsUseCase{repo: repo, recentLimit: recentLimit}
}

func (uc *OutboxStatsUseCase) Execute(ctx context.Context) (*OutboxStats, error) {
	pending, err := uc.repo.CountUndelivered(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := uc.repo.RecentUndelivered(ctx, uc.recentLimit)
	if err != nil {
		return nil, err
	}

	stats := &OutboxStats{Pending: pending, Recent: recent, Hint: hintEmpty}
	if pending > 0 {
		stats.Hint = hintBacklog
	}
	return stats, nil
}
