package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertCorrelation(t *testing.T, st store.Store, eventID string, outcome model.OutcomeType) *model.Correlation {
	t.Helper()
	c, err := st.InsertCorrelation(context.Background(), model.Correlation{
		ID:             uuid.NewString(),
		PaymentEventID: eventID,
		ClientID:       42,
		OutcomeType:    outcome,
		PaymentMethod:  "card",
		Amount:         5000,
		Currency:       "USD",
		Fingerprint:    "fp-" + eventID,
		CorrelatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	return c
}

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	insertCorrelation(t, st, "evt_1", model.OutcomePaid)
	insertCorrelation(t, st, "evt_2", model.OutcomePaid)
	insertCorrelation(t, st, "evt_3", model.OutcomeFailed)
	insertCorrelation(t, st, "evt_4", model.OutcomePending)

	c := insertCorrelation(t, st, "evt_5", model.OutcomeFailed)
	_, err := st.OverrideCorrelation(ctx, c.ID, model.OutcomePaid, "confirmed", "ops")
	require.NoError(t, err)

	require.NoError(t, st.InsertConflict(ctx, model.ConflictRecord{
		ID:         uuid.NewString(),
		EventID:    "evt_1",
		Payload:    "{}",
		ReceivedAt: time.Now().UTC(),
	}))

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.WindowEvents)
	assert.Equal(t, 3, snap.WindowPaid, "the overridden row counts as paid")
	assert.Equal(t, 1, snap.WindowFailed)
	assert.InDelta(t, 0.25, snap.WindowFailRate, 1e-9)
	assert.Equal(t, 1, snap.WindowOverrides)
	assert.Equal(t, 5, snap.Correlations)
	assert.Equal(t, 1, snap.ConflictDepth)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_CollectEmpty(t *testing.T) {
	st := newTestStore(t)

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.WindowEvents)
	assert.Zero(t, snap.WindowFailRate)
	assert.Zero(t, snap.ConflictDepth)
}
