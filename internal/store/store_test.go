package store

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// seedPage creates a single-client journey and returns its first page id.
func seedPage(t *testing.T, s Store, clientID int64) string {
	t.Helper()
	pages, err := s.SeedJourney(context.Background(), clientID, nil)
	require.NoError(t, err)
	require.Len(t, pages, len(model.DefaultJourney))
	return pages[0].ID
}

func activeHypothesis(t *testing.T, s Store, pageID, statement string) *model.Hypothesis {
	t.Helper()
	h, err := s.CreateHypothesis(context.Background(), model.Hypothesis{
		PageID:          pageID,
		Statement:       statement,
		ChangeType:      model.ChangeContent,
		ConfidenceLevel: 7,
	})
	require.NoError(t, err)
	return h
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("SeedJourneyOrdering", func(t *testing.T) {
		s := newStore(t)

		pages, err := s.SeedJourney(ctx, 42, nil)
		require.NoError(t, err)
		require.Len(t, pages, 4)

		got, err := s.ListJourneyPages(ctx, 42)
		require.NoError(t, err)
		require.Len(t, got, 4)
		for i, p := range got {
			assert.Equal(t, i+1, p.PageOrder)
		}
		assert.Equal(t, model.PageActive, got[0].Status)
		assert.Equal(t, model.PagePending, got[1].Status)
	})

	t.Run("AdvanceJourneyOneActive", func(t *testing.T) {
		s := newStore(t)
		_, err := s.SeedJourney(ctx, 7, nil)
		require.NoError(t, err)

		next, err := s.AdvanceJourney(ctx, 7, false)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, model.PageAgreement, next.PageType)

		pages, err := s.ListJourneyPages(ctx, 7)
		require.NoError(t, err)
		var active int
		for _, p := range pages {
			if p.Status == model.PageActive {
				active++
			}
		}
		assert.Equal(t, 1, active)

		// Skip to the end.
		_, err = s.AdvanceJourney(ctx, 7, true)
		require.NoError(t, err)
		_, err = s.AdvanceJourney(ctx, 7, false)
		require.NoError(t, err)
		last, err := s.AdvanceJourney(ctx, 7, false)
		require.NoError(t, err)
		assert.Nil(t, last, "completed journey has no next page")
	})

	t.Run("AdvanceJourneyUnknownClient", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AdvanceJourney(ctx, 9999, false)
		require.Error(t, err)
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("JourneyStart", func(t *testing.T) {
		s := newStore(t)

		start, err := s.JourneyStart(ctx, 42)
		require.NoError(t, err)
		assert.True(t, start.IsZero())

		before := time.Now().UTC().Add(-time.Second)
		_, err = s.SeedJourney(ctx, 42, nil)
		require.NoError(t, err)

		start, err = s.JourneyStart(ctx, 42)
		require.NoError(t, err)
		assert.False(t, start.IsZero())
		assert.True(t, start.After(before))
	})

	t.Run("CreateHypothesisSupersedes", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)

		first := activeHypothesis(t, s, pageID, "shorter copy converts better")
		assert.Equal(t, model.HypothesisActive, first.Status)

		second := activeHypothesis(t, s, pageID, "a testimonial converts better")

		got, err := s.GetActiveHypothesis(ctx, pageID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, second.ID, got.ID)

		old, err := s.GetHypothesis(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, model.HypothesisCompleted, old.Status)
	})

	t.Run("GetActiveHypothesisNone", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)

		got, err := s.GetActiveHypothesis(ctx, pageID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("GetHypothesisNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetHypothesis(ctx, "missing")
		require.Error(t, err)
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("SetHypothesisOutcomeAfterCompletion", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)

		h := activeHypothesis(t, s, pageID, "first")
		activeHypothesis(t, s, pageID, "second") // completes the first

		// Learning is recorded regardless of status.
		got, err := s.SetHypothesisOutcome(ctx, h.ID, "conversion went up 12%")
		require.NoError(t, err)
		assert.Equal(t, "conversion went up 12%", got.ActualOutcome)
		assert.Equal(t, model.HypothesisCompleted, got.Status)
	})

	t.Run("ListHypothesesNewestFirst", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)

		activeHypothesis(t, s, pageID, "one")
		activeHypothesis(t, s, pageID, "two")
		newest := activeHypothesis(t, s, pageID, "three")

		list, err := s.ListHypothesesByPage(ctx, pageID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, newest.ID, list[0].ID)
	})

	t.Run("OneActivePerPageProperty", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)
		rng := rand.New(rand.NewSource(1))

		// Random create/supersede/cancel sequences must never leave more
		// than one active hypothesis on the page.
		var lastID string
		for i := 0; i < 50; i++ {
			switch rng.Intn(3) {
			case 0, 1:
				h := activeHypothesis(t, s, pageID, "statement")
				lastID = h.ID
			case 2:
				if lastID != "" {
					_ = s.SetHypothesisStatus(ctx, lastID, model.HypothesisCancelled)
				}
			}

			list, err := s.ListHypothesesByPage(ctx, pageID)
			require.NoError(t, err)
			var active int
			for _, h := range list {
				if h.Status == model.HypothesisActive {
					active++
				}
			}
			require.LessOrEqual(t, active, 1, "iteration %d", i)
		}
	})

	t.Run("AppendVersionBindsActiveHypothesis", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)
		h := activeHypothesis(t, s, pageID, "shorter copy converts better")

		v, err := s.AppendVersion(ctx, pageID, "Welcome", "body text", h.ID)
		require.NoError(t, err)
		assert.Equal(t, h.ID, v.HypothesisID)
		assert.Equal(t, "Welcome", v.Title)

		latest, err := s.LatestVersion(ctx, pageID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, v.ID, latest.ID)
	})

	t.Run("AppendVersionStaleHypothesis", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)
		stale := activeHypothesis(t, s, pageID, "first")
		activeHypothesis(t, s, pageID, "second") // supersedes

		_, err := s.AppendVersion(ctx, pageID, "t", "b", stale.ID)
		require.Error(t, err)
		assert.True(t, apperr.IsPrecondition(err))

		// Nothing reached the ledger.
		latest, err := s.LatestVersion(ctx, pageID)
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("AppendVersionUnknownHypothesis", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)

		_, err := s.AppendVersion(ctx, pageID, "t", "b", "missing")
		require.Error(t, err)
		assert.True(t, apperr.IsPrecondition(err))
	})

	t.Run("AppendVersionWrongPage", func(t *testing.T) {
		s := newStore(t)
		pageA := seedPage(t, s, 1)
		pages, err := s.ListJourneyPages(ctx, 1)
		require.NoError(t, err)
		pageB := pages[1].ID

		h := activeHypothesis(t, s, pageA, "statement")
		_, err = s.AppendVersion(ctx, pageB, "t", "b", h.ID)
		require.Error(t, err)
		assert.True(t, apperr.IsPrecondition(err))
	})

	t.Run("VersionHistoryNewestFirst", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)
		h := activeHypothesis(t, s, pageID, "statement")

		for _, title := range []string{"v1", "v2", "v3"} {
			_, err := s.AppendVersion(ctx, pageID, title, "body", h.ID)
			require.NoError(t, err)
		}

		history, err := s.ListVersions(ctx, pageID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "v3", history[0].Title)
		assert.Equal(t, "v1", history[2].Title)
	})

	t.Run("InsertAndGetCorrelation", func(t *testing.T) {
		s := newStore(t)
		d := 2 * time.Hour

		c, err := s.InsertCorrelation(ctx, model.Correlation{
			PaymentEventID:     "evt_1",
			ClientID:           42,
			OutcomeType:        model.OutcomePaid,
			PaymentMethod:      "card",
			Amount:             5000,
			Currency:           "USD",
			ConversionDuration: &d,
			Fingerprint:        "fp1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)

		got, err := s.GetCorrelationByEvent(ctx, "evt_1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, model.OutcomePaid, got.OutcomeType)
		require.NotNil(t, got.ConversionDuration)
		assert.Equal(t, d, *got.ConversionDuration)
		assert.False(t, got.ManualOverride)
	})

	t.Run("GetCorrelationByEventNone", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetCorrelationByEvent(ctx, "evt_missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("NullConversionDuration", func(t *testing.T) {
		s := newStore(t)
		c, err := s.InsertCorrelation(ctx, model.Correlation{
			PaymentEventID: "evt_nodur",
			ClientID:       1,
			OutcomeType:    model.OutcomePending,
			Amount:         100,
			Currency:       "USD",
			Fingerprint:    "fp",
		})
		require.NoError(t, err)

		got, err := s.GetCorrelation(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ConversionDuration)
	})

	t.Run("OverrideWritesAudit", func(t *testing.T) {
		s := newStore(t)
		c, err := s.InsertCorrelation(ctx, model.Correlation{
			PaymentEventID: "evt_2",
			ClientID:       42,
			OutcomeType:    model.OutcomePaid,
			Amount:         5000,
			Currency:       "USD",
			Fingerprint:    "fp",
		})
		require.NoError(t, err)

		got, err := s.OverrideCorrelation(ctx, c.ID, model.OutcomeCancelled, "duplicate charge refunded", "op-1")
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeCancelled, got.OutcomeType)
		assert.True(t, got.ManualOverride)
		assert.Equal(t, "duplicate charge refunded", got.OverrideReason)

		audit, err := s.ListAudit(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, audit, 1)
		assert.Equal(t, model.OutcomePaid, audit[0].OldOutcome)
		assert.Equal(t, model.OutcomeCancelled, audit[0].NewOutcome)
		assert.Equal(t, "op-1", audit[0].ActorID)
	})

	t.Run("OverrideNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.OverrideCorrelation(ctx, "missing", model.OutcomePaid, "reason", "op")
		require.Error(t, err)
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("ListCorrelationsFilter", func(t *testing.T) {
		s := newStore(t)
		for i, clientID := range []int64{1, 1, 2} {
			_, err := s.InsertCorrelation(ctx, model.Correlation{
				PaymentEventID: "evt_f_" + string(rune('a'+i)),
				ClientID:       clientID,
				OutcomeType:    model.OutcomePaid,
				Amount:         100,
				Currency:       "USD",
				Fingerprint:    "fp",
			})
			require.NoError(t, err)
		}

		clientID := int64(1)
		got, err := s.ListCorrelations(ctx, CorrelationFilter{ClientID: &clientID})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		all, err := s.ListCorrelations(ctx, CorrelationFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.ListCorrelations(ctx, CorrelationFilter{Until: time.Now().Add(-time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ConflictQueue", func(t *testing.T) {
		s := newStore(t)
		err := s.InsertConflict(ctx, model.ConflictRecord{
			EventID:     "evt_9",
			Fingerprint: "fp-old",
			Payload:     `{"amount":9999}`,
			Detail:      "amount mismatch",
		})
		require.NoError(t, err)

		conflicts, err := s.ListConflicts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "evt_9", conflicts[0].EventID)
		assert.Equal(t, "amount mismatch", conflicts[0].Detail)
	})

	t.Run("RecordOutcomeUpsert", func(t *testing.T) {
		s := newStore(t)

		rev := int64(250000)
		_, err := s.RecordOutcome(ctx, model.Outcome{
			ClientID:       42,
			JourneyOutcome: model.JourneyNegotiating,
			Notes:          "asked for a revised rate",
		})
		require.NoError(t, err)

		_, err = s.RecordOutcome(ctx, model.Outcome{
			ClientID:       42,
			JourneyOutcome: model.JourneyPaid,
			RevenueAmount:  &rev,
		})
		require.NoError(t, err)

		got, err := s.GetOutcome(ctx, 42)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.JourneyPaid, got.JourneyOutcome)
		require.NotNil(t, got.RevenueAmount)
		assert.Equal(t, rev, *got.RevenueAmount)
		assert.Empty(t, got.Notes)
	})

	t.Run("GetOutcomeNone", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetOutcome(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)
		pageID := seedPage(t, s, 1)
		h := activeHypothesis(t, s, pageID, "statement")
		_, err := s.AppendVersion(ctx, pageID, "t", "b", h.ID)
		require.NoError(t, err)

		c, err := s.InsertCorrelation(ctx, model.Correlation{
			PaymentEventID: "evt_s",
			ClientID:       1,
			OutcomeType:    model.OutcomePaid,
			Amount:         100,
			Currency:       "USD",
			Fingerprint:    "fp",
		})
		require.NoError(t, err)
		_, err = s.OverrideCorrelation(ctx, c.ID, model.OutcomeFailed, "not actually paid", "op")
		require.NoError(t, err)

		_, err = s.RecordOutcome(ctx, model.Outcome{ClientID: 1, JourneyOutcome: model.JourneyDeclined})
		require.NoError(t, err)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.ActiveHypotheses)
		assert.Equal(t, 1, stats.TotalHypotheses)
		assert.Equal(t, 1, stats.ContentVersions)
		assert.Equal(t, 1, stats.Correlations)
		assert.Equal(t, 1, stats.ManualOverrides)
		assert.Equal(t, 0, stats.ConflictDepth)
		assert.Equal(t, 1, stats.OutcomeBreakdown[model.JourneyDeclined])
	})
}
