package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.Store, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	pages, err := st.SeedJourney(context.Background(), 1, nil)
	require.NoError(t, err)
	return New(st), st, pages[0].ID
}

func newActiveHypothesis(t *testing.T, st store.Store, pageID string) *model.Hypothesis {
	t.Helper()
	h, err := st.CreateHypothesis(context.Background(), model.Hypothesis{
		PageID:          pageID,
		Statement:       "statement",
		ChangeType:      model.ChangeContent,
		ConfidenceLevel: 5,
	})
	require.NoError(t, err)
	return h
}

func TestAppendRequiresBoundHypothesis(t *testing.T) {
	l, _, pageID := newTestLedger(t)

	_, err := l.Append(context.Background(), pageID, "t", "b", "")
	require.Error(t, err)
	assert.True(t, apperr.IsPrecondition(err))
}

func TestAppendAndLatest(t *testing.T) {
	l, st, pageID := newTestLedger(t)
	ctx := context.Background()
	h := newActiveHypothesis(t, st, pageID)

	v1, err := l.Append(ctx, pageID, "Welcome", "first body", h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, v1.HypothesisID)

	v2, err := l.Append(ctx, pageID, "Welcome!", "second body", h.ID)
	require.NoError(t, err)

	latest, err := l.Latest(ctx, pageID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, v2.ID, latest.ID)
}

func TestHistoryRestartable(t *testing.T) {
	l, st, pageID := newTestLedger(t)
	ctx := context.Background()
	h := newActiveHypothesis(t, st, pageID)

	for _, title := range []string{"v1", "v2", "v3"} {
		_, err := l.Append(ctx, pageID, title, "body", h.ID)
		require.NoError(t, err)
	}

	seq := l.History(ctx, pageID)

	collect := func() []string {
		var titles []string
		for v, err := range seq {
			require.NoError(t, err)
			titles = append(titles, v.Title)
		}
		return titles
	}

	first := collect()
	assert.Equal(t, []string{"v3", "v2", "v1"}, first)

	// Ranging a second time re-reads the store instead of resuming.
	second := collect()
	assert.Equal(t, first, second)

	// Early break is fine and does not poison later iterations.
	for range seq {
		break
	}
	assert.Equal(t, first, collect())
}

func TestHistoryEmpty(t *testing.T) {
	l, _, pageID := newTestLedger(t)

	count := 0
	for _, err := range l.History(context.Background(), pageID) {
		require.NoError(t, err)
		count++
	}
	assert.Zero(t, count)
}
