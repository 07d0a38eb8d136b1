// Package outcome records the human-entered final classification of a client
// journey and cross-references it against the predictions made by the pages'
// hypotheses.
package outcome

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

// Recorder writes and reads journey outcomes.
type Recorder struct {
	store store.Store
}

// New creates an outcome recorder over st.
func New(st store.Store) *Recorder {
	return &Recorder{store: st}
}

// Record sets the client's journey outcome, replacing any earlier record.
// Any outcome may carry a revenue amount (a negotiating client may have
// partially paid); when present it must be positive.
func (r *Recorder) Record(ctx context.Context, clientID int64, jo model.JourneyOutcome, notes string, revenue *int64) (*model.Outcome, error) {
	if clientID <= 0 {
		return nil, apperr.NewValidation("client_id", "must be positive, got %d", clientID)
	}
	if !model.ValidJourneyOutcome(jo) {
		return nil, apperr.NewValidation("journey_outcome", "unknown outcome %q", jo)
	}
	if revenue != nil && *revenue <= 0 {
		return nil, apperr.NewValidation("revenue_amount", "must be positive when set, got %d", *revenue)
	}

	o := model.Outcome{
		ClientID:       clientID,
		JourneyOutcome: jo,
		Notes:          strings.TrimSpace(notes),
		RevenueAmount:  revenue,
		RecordedAt:     time.Now().UTC(),
	}
	recorded, err := r.store.RecordOutcome(ctx, o)
	if err != nil {
		return nil, err
	}
	zap.L().Info("journey outcome recorded",
		zap.Int64("client_id", clientID),
		zap.String("outcome", string(jo)),
	)
	return recorded, nil
}

// Get returns the client's recorded outcome, or nil when none exists.
func (r *Recorder) Get(ctx context.Context, clientID int64) (*model.Outcome, error) {
	return r.store.GetOutcome(ctx, clientID)
}

// Accuracy compares a page's hypothesis predictions against the recorded
// outcomes written onto them. Hypotheses with no recorded actual outcome are
// counted as open.
type Accuracy struct {
	Total   int `json:"total"`
	Open    int `json:"open"`
	Matched int `json:"matched"`
	Missed  int `json:"missed"`
}

// PageAccuracy walks the page's hypothesis history and tallies how often the
// predicted outcome matched what was recorded. Read-only; nothing about the
// hypotheses changes.
func (r *Recorder) PageAccuracy(ctx context.Context, pageID string) (*Accuracy, error) {
	hypotheses, err := r.store.ListHypothesesByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	var acc Accuracy
	for _, h := range hypotheses {
		if h.PredictedOutcome == "" {
			continue
		}
		acc.Total++
		switch {
		case h.ActualOutcome == "":
			acc.Open++
		case strings.EqualFold(h.ActualOutcome, h.PredictedOutcome):
			acc.Matched++
		default:
			acc.Missed++
		}
	}
	return &acc, nil
}
