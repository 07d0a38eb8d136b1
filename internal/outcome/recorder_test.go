package outcome

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

func newTestRecorder(t *testing.T) (*Recorder, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func TestRecordAndGet(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	revenue := int64(250000)
	o, err := rec.Record(ctx, 42, model.JourneyPaid, "signed after the second call", &revenue)
	require.NoError(t, err)
	assert.Equal(t, model.JourneyPaid, o.JourneyOutcome)
	require.NotNil(t, o.RevenueAmount)
	assert.Equal(t, revenue, *o.RevenueAmount)

	got, err := rec.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.JourneyPaid, got.JourneyOutcome)
}

func TestRecordReplaces(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, 42, model.JourneyNegotiating, "", nil)
	require.NoError(t, err)
	_, err = rec.Record(ctx, 42, model.JourneyGhosted, "went quiet", nil)
	require.NoError(t, err)

	got, err := rec.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.JourneyGhosted, got.JourneyOutcome)
	assert.Equal(t, "went quiet", got.Notes)
}

func TestRecordValidation(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, 0, model.JourneyPaid, "", nil)
	assert.True(t, apperr.IsValidation(err))

	_, err = rec.Record(ctx, 42, "won", "", nil)
	assert.True(t, apperr.IsValidation(err))

	zero := int64(0)
	_, err = rec.Record(ctx, 42, model.JourneyPaid, "", &zero)
	assert.True(t, apperr.IsValidation(err))

	negative := int64(-100)
	_, err = rec.Record(ctx, 42, model.JourneyNegotiating, "", &negative)
	assert.True(t, apperr.IsValidation(err))
}

func TestRecordRevenueOnNonPaidOutcome(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	// A partial payment can land while the client is still negotiating.
	deposit := int64(50000)
	o, err := rec.Record(ctx, 42, model.JourneyNegotiating, "deposit received", &deposit)
	require.NoError(t, err)
	require.NotNil(t, o.RevenueAmount)
	assert.Equal(t, deposit, *o.RevenueAmount)
}

func TestGetNone(t *testing.T) {
	rec, _ := newTestRecorder(t)

	got, err := rec.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPageAccuracy(t *testing.T) {
	rec, st := newTestRecorder(t)
	ctx := context.Background()

	pages, err := st.SeedJourney(ctx, 42, nil)
	require.NoError(t, err)
	pageID := pages[0].ID

	mk := func(predicted, actual string) {
		h, err := st.CreateHypothesis(ctx, model.Hypothesis{
			PageID:           pageID,
			Statement:        "shorter form lifts conversion",
			ChangeType:       model.ChangeContent,
			ConfidenceLevel:  7,
			PredictedOutcome: predicted,
		})
		require.NoError(t, err)
		if actual != "" {
			_, err = st.SetHypothesisOutcome(ctx, h.ID, actual)
			require.NoError(t, err)
		}
	}

	mk("paid", "paid")
	mk("paid", "declined")
	mk("responded", "")
	mk("", "") // no prediction, excluded entirely

	acc, err := rec.PageAccuracy(ctx, pageID)
	require.NoError(t, err)
	assert.Equal(t, 3, acc.Total)
	assert.Equal(t, 1, acc.Matched)
	assert.Equal(t, 1, acc.Missed)
	assert.Equal(t, 1, acc.Open)
}
