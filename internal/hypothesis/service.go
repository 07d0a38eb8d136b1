// Package hypothesis owns the lifecycle of the falsifiable hypotheses that
// gate content editing. One hypothesis per page is active at a time; creating
// a new one supersedes the previous active one in a single store transaction.
package hypothesis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

// Service implements hypothesis operations over a Store.
type Service struct {
	store store.Store
}

// New creates a hypothesis service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Input is a hypothesis submission from the editor UI.
type Input struct {
	Statement        string           `json:"statement"`
	ChangeType       model.ChangeType `json:"change_type"`
	ConfidenceLevel  int              `json:"confidence_level"`
	PredictedOutcome string           `json:"predicted_outcome,omitempty"`
}

// Validate checks the submission without touching the store.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Statement) == "" {
		return apperr.NewValidation("statement", "must not be blank")
	}
	if !model.ValidChangeType(in.ChangeType) {
		return apperr.NewValidation("change_type", "unknown change type %q", in.ChangeType)
	}
	if in.ConfidenceLevel < 1 || in.ConfidenceLevel > 10 {
		return apperr.NewValidation("confidence_level", "must be between 1 and 10, got %d", in.ConfidenceLevel)
	}
	return nil
}

// Create validates the input and creates an active hypothesis for the page,
// superseding any previously active one atomically.
func (s *Service) Create(ctx context.Context, pageID string, in Input) (*model.Hypothesis, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	// The page must exist; hypotheses are owned by their page.
	if _, err := s.store.GetJourneyPage(ctx, pageID); err != nil {
		return nil, err
	}

	h, err := s.store.CreateHypothesis(ctx, model.Hypothesis{
		PageID:           pageID,
		Statement:        strings.TrimSpace(in.Statement),
		ChangeType:       in.ChangeType,
		ConfidenceLevel:  in.ConfidenceLevel,
		PredictedOutcome: in.PredictedOutcome,
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("hypothesis created",
		zap.String("page_id", pageID),
		zap.String("hypothesis_id", h.ID),
		zap.Int("confidence", h.ConfidenceLevel),
	)
	return h, nil
}

// Active returns the page's active hypothesis, or nil when there is none.
func (s *Service) Active(ctx context.Context, pageID string) (*model.Hypothesis, error) {
	return s.store.GetActiveHypothesis(ctx, pageID)
}

// RecordOutcome stores what actually happened against a hypothesis. Allowed
// regardless of status, so learning can be captured after supersession.
func (s *Service) RecordOutcome(ctx context.Context, hypothesisID, actualOutcome string) (*model.Hypothesis, error) {
	if strings.TrimSpace(actualOutcome) == "" {
		return nil, apperr.NewValidation("actual_outcome", "must not be blank")
	}
	return s.store.SetHypothesisOutcome(ctx, hypothesisID, strings.TrimSpace(actualOutcome))
}

// ListByPage returns the page's hypotheses, newest first.
func (s *Service) ListByPage(ctx context.Context, pageID string) ([]model.Hypothesis, error) {
	return s.store.ListHypothesesByPage(ctx, pageID)
}

// Cancel marks a hypothesis cancelled. Used when a created hypothesis ends
// up with no corresponding edit, so none is ever left dangling active.
func (s *Service) Cancel(ctx context.Context, hypothesisID string) error {
	return s.store.SetHypothesisStatus(ctx, hypothesisID, model.HypothesisCancelled)
}
