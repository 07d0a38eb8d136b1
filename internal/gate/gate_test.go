package gate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/hypothesis"
	"github.com/sells-group/activation-core/internal/ledger"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

type fixture struct {
	store  store.Store
	hyps   *hypothesis.Service
	ledger *ledger.Ledger
	pageID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	pages, err := st.SeedJourney(context.Background(), 1, nil)
	require.NoError(t, err)

	return &fixture{
		store:  st,
		hyps:   hypothesis.New(st),
		ledger: ledger.New(st),
		pageID: pages[0].ID,
	}
}

func (f *fixture) newSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), f.pageID, f.hyps, f.ledger)
	require.NoError(t, err)
	return s
}

func validInput() hypothesis.Input {
	return hypothesis.Input{
		Statement:       "shorter copy converts better",
		ChangeType:      model.ChangeContent,
		ConfidenceLevel: 7,
	}
}

// Editor types into an empty page, captures a hypothesis, then saves.
func TestLockedCaptureUnlockSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	assert.Equal(t, Locked, s.State())

	// Attempted keystroke opens capture instead of applying the edit.
	assert.Equal(t, Capturing, s.FieldInteraction())

	h, err := s.SubmitHypothesis(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, Unlocked, s.State())
	assert.Equal(t, h.ID, s.BoundHypothesisID())

	v, err := s.Save(ctx, "Welcome", "body text")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", v.Title)
	assert.Equal(t, h.ID, v.HypothesisID)
}

func TestSaveWhileLockedNeverReachesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	_, err := s.Save(ctx, "t", "b")
	require.Error(t, err)
	assert.True(t, apperr.IsPrecondition(err))

	latest, err := f.ledger.Latest(ctx, f.pageID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestInvalidHypothesisKeepsCapturing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	s.FieldInteraction()

	in := validInput()
	in.Statement = ""
	_, err := s.SubmitHypothesis(ctx, in)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, Capturing, s.State())

	// Corrected resubmission succeeds from the same dialog.
	_, err = s.SubmitHypothesis(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, Unlocked, s.State())
}

func TestSubmitOutsideCapture(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)

	_, err := s.SubmitHypothesis(context.Background(), validInput())
	require.Error(t, err)
	assert.True(t, apperr.IsPrecondition(err))
}

// Editor cancels the capture dialog: no hypothesis exists afterwards.
func TestCancelLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	s.FieldInteraction()
	assert.Equal(t, Locked, s.CancelCapture())

	active, err := f.hyps.Active(ctx, f.pageID)
	require.NoError(t, err)
	assert.Nil(t, active)

	list, err := f.hyps.ListByPage(ctx, f.pageID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIterativeSavesUnderOneHypothesis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.newSession(t)

	s.FieldInteraction()
	h, err := s.SubmitHypothesis(ctx, validInput())
	require.NoError(t, err)

	for _, title := range []string{"v1", "v2", "v3"} {
		_, err := s.Save(ctx, title, "body")
		require.NoError(t, err)
		assert.Equal(t, Unlocked, s.State(), "save does not relock")
	}

	var count int
	for v, err := range f.ledger.History(ctx, f.pageID) {
		require.NoError(t, err)
		assert.Equal(t, h.ID, v.HypothesisID)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestNewSessionStartsUnlockedWithActiveHypothesis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.newSession(t)
	first.FieldInteraction()
	h, err := first.SubmitHypothesis(ctx, validInput())
	require.NoError(t, err)
	first.End()
	assert.Equal(t, Locked, first.State())

	// The active hypothesis survives the session; the next one rebinds it.
	second := f.newSession(t)
	assert.Equal(t, Unlocked, second.State())
	assert.Equal(t, h.ID, second.BoundHypothesisID())
}

func TestNewSessionLockedWithoutHypothesis(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(t)
	assert.Equal(t, Locked, s.State())
	assert.Empty(t, s.BoundHypothesisID())
}
