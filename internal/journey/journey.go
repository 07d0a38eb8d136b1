// Package journey manages the ordered page flow for a client: seeding the
// default sequence, advancing through it, and exposing the journey start
// time the correlation engine measures conversion duration from.
package journey

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

// Service implements journey operations over a Store.
type Service struct {
	store store.Store
}

// New creates a journey service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Seed creates the client's page sequence. An empty pageTypes seeds the
// default activation flow. The first page starts active, the rest pending.
func (s *Service) Seed(ctx context.Context, clientID int64, pageTypes []model.PageType) ([]model.JourneyPage, error) {
	if clientID <= 0 {
		return nil, apperr.NewValidation("client_id", "must be positive, got %d", clientID)
	}
	for _, pt := range pageTypes {
		switch pt {
		case model.PageActivation, model.PageAgreement, model.PageConfirmation, model.PageProcessing:
		default:
			return nil, apperr.NewValidation("page_type", "unknown page type %q", pt)
		}
	}

	pages, err := s.store.SeedJourney(ctx, clientID, pageTypes)
	if err != nil {
		return nil, err
	}
	zap.L().Info("journey seeded",
		zap.Int64("client_id", clientID),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

// Advance completes the client's active page and activates the next one.
// With skip true the current page is marked skipped instead of completed.
// Returns nil when the journey is complete.
func (s *Service) Advance(ctx context.Context, clientID int64, skip bool) (*model.JourneyPage, error) {
	return s.store.AdvanceJourney(ctx, clientID, skip)
}

// Pages returns the client's pages in flow order.
func (s *Service) Pages(ctx context.Context, clientID int64) ([]model.JourneyPage, error) {
	return s.store.ListJourneyPages(ctx, clientID)
}

// Start returns when the client's journey began, or the zero time when the
// client has no journey.
func (s *Service) Start(ctx context.Context, clientID int64) (time.Time, error) {
	return s.store.JourneyStart(ctx, clientID)
}
