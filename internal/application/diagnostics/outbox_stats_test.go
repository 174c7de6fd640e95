package diagnostics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/checkout/internal/application/diagnostics"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(t *testing.T, store *testutil.Store, n int) {
	t.Helper()
	stager := outbox.NewStager(store.Outbox())
	for range n {
		require.NoError(t, stager.Stage(context.Background(), event.TransactionSubmitted{
			Metadata:      event.NewMetadata(),
			TransactionID: uuid.New(),
			CustomerID:    uuid.New(),
			TotalAmount:   decimal.NewFromInt(1),
		}))
	}
}

func TestOutboxStats_Empty(t *testing.T) {
	stats, err := diagnostics.NewOutboxStatsUseCase(testutil.NewStore().Outbox(), 10).Execute(context.Background())

	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Empty(t, stats.Recent)
	assert.Contains(t, stats.Hint, "Outbox is empty")
}

func TestOutboxStats_Backlog(t *testing.T) {
	store := testutil.NewStore()
	stage(t, store, 5)
	entries := store.OutboxEntries()
	require.NoError(t, store.Outbox().MarkSent(context.Background(), entries[0].Sequence, time.Now()))

	stats, err := diagnostics.NewOutboxStatsUseCase(store.Outbox(), 3).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Pending)
	require.Len(t, stats.Recent, 3)
	assert.Equal(t, entries[4].Sequence, stats.Recent[0].Sequence, "newest first")
	assert.Equal(t, entries[2].Sequence, stats.Recent[2].Sequence)
	assert.Contains(t, stats.Hint, "waiting in the outbox")
}

type brokenRepo struct {
	outbox.Repository
}

func (brokenRepo) CountUndelivered(context.Context) (int64, error) {
	return 0, errors.New("relation does not exist")
}

func TestOutboxStats_StoreError(t *testing.T) {
	_, err := diagnostics.NewOutboxStatsUseCase(brokenRepo{}, 10).Execute(context.Background())

	assert.Error(t, err)
}
