// Package correlate links inbound payment events to conversion outcomes.
// Ingest is idempotent on the provider's event_id: a duplicate delivery with
// an identical payload returns the stored correlation, while a duplicate with
// a different payload is parked in the conflict queue for operator review.
package correlate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/intake"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

// metricsPageSize is how many correlations one metrics page pulls from the
// store. MetricsFor pages until the range is exhausted.
const metricsPageSize = 1000

// Engine correlates payment events with client journeys.
type Engine struct {
	store store.Store
}

// New creates a correlation engine over st.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// Ingest correlates one normalized payment event.
//
// Re-delivery of an already-correlated event with an equal fingerprint is a
// no-op returning the stored correlation, manual overrides included: once an
// operator has corrected a classification, no re-delivery reverts it. A
// mismatched fingerprint never touches the stored row; the conflicting
// payload goes to the review queue and a ConflictError comes back.
func (e *Engine) Ingest(ctx context.Context, ev model.PaymentEvent) (*model.Correlation, error) {
	outcome, ok := model.MapProviderStatus(ev.Status)
	if !ok {
		return nil, apperr.NewValidation("status", "unknown provider status %q", ev.Status)
	}
	fp := intake.Fingerprint(ev)

	existing, err := e.store.GetCorrelationByEvent(ctx, ev.EventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return e.resolveDuplicate(ctx, ev, existing, fp)
	}

	c := model.Correlation{
		ID:                 uuid.NewString(),
		PaymentEventID:     ev.EventID,
		ClientID:           ev.ClientID,
		OutcomeType:        outcome,
		PaymentMethod:      ev.PaymentMethod,
		Amount:             ev.Amount,
		Currency:           ev.Currency,
		ConversionDuration: e.conversionDuration(ctx, ev),
		Fingerprint:        fp,
		CorrelatedAt:       time.Now().UTC(),
	}

	created, err := e.store.InsertCorrelation(ctx, c)
	if err != nil {
		// A concurrent delivery may have won the unique race on event_id.
		// Re-read and fall back to duplicate resolution before reporting
		// the insert failure.
		raced, getErr := e.store.GetCorrelationByEvent(ctx, ev.EventID)
		if getErr == nil && raced != nil {
			return e.resolveDuplicate(ctx, ev, raced, fp)
		}
		return nil, eris.Wrap(err, "correlate: insert")
	}

	zap.L().Info("payment event correlated",
		zap.String("event_id", ev.EventID),
		zap.Int64("client_id", ev.ClientID),
		zap.String("outcome", string(created.OutcomeType)),
	)
	return created, nil
}

// resolveDuplicate handles a delivery for an event_id that is already
// correlated. Equal fingerprints mean an exact duplicate; anything else is
// parked for review.
func (e *Engine) resolveDuplicate(ctx context.Context, ev model.PaymentEvent, existing *model.Correlation, fp string) (*model.Correlation, error) {
	if existing.Fingerprint == fp {
		return existing, nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, eris.Wrap(err, "correlate: encode conflicting payload")
	}
	rec := model.ConflictRecord{
		ID:          uuid.NewString(),
		EventID:     ev.EventID,
		Fingerprint: existing.Fingerprint,
		Payload:     string(payload),
		Detail:      "re-delivered payload does not match the correlated event",
		ReceivedAt:  time.Now().UTC(),
	}
	if err := e.store.InsertConflict(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "correlate: park conflict")
	}

	zap.L().Warn("conflicting payment event parked",
		zap.String("event_id", ev.EventID),
		zap.String("conflict_id", rec.ID),
	)
	return nil, apperr.NewConflict(ev.EventID, "payload differs from the stored correlation")
}

// conversionDuration measures occurred_at against the client's journey start.
// Unknown journeys and events that predate the journey yield nil rather than
// a negative duration.
func (e *Engine) conversionDuration(ctx context.Context, ev model.PaymentEvent) *time.Duration {
	start, err := e.store.JourneyStart(ctx, ev.ClientID)
	if err != nil {
		zap.L().Warn("journey start lookup failed, recording without duration",
			zap.Int64("client_id", ev.ClientID), zap.Error(err))
		return nil
	}
	if start.IsZero() || start.After(ev.OccurredAt) {
		return nil
	}
	d := ev.OccurredAt.Sub(start)
	return &d
}

// Override reclassifies a correlation by hand. Audit and update land in one
// transaction; the audit trail keeps the automatic classification visible
// forever.
func (e *Engine) Override(ctx context.Context, correlationID string, newOutcome model.OutcomeType, reason, actorID string) (*model.Correlation, error) {
	if !model.ValidOutcomeType(newOutcome) {
		return nil, apperr.NewValidation("outcome_type", "unknown outcome type %q", newOutcome)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.NewValidation("reason", "must not be blank")
	}

	updated, err := e.store.OverrideCorrelation(ctx, correlationID, newOutcome, reason, actorID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("correlation overridden",
		zap.String("correlation_id", correlationID),
		zap.String("new_outcome", string(newOutcome)),
		zap.String("actor", actorID),
	)
	return updated, nil
}

// Audit returns the override history for a correlation, newest first.
func (e *Engine) Audit(ctx context.Context, correlationID string) ([]model.CorrelationAudit, error) {
	return e.store.ListAudit(ctx, correlationID)
}

// List returns correlations matching the filter.
func (e *Engine) List(ctx context.Context, filter store.CorrelationFilter) ([]model.Correlation, error) {
	return e.store.ListCorrelations(ctx, filter)
}

// Conflicts returns queued conflicting deliveries awaiting review.
func (e *Engine) Conflicts(ctx context.Context, limit int) ([]model.ConflictRecord, error) {
	return e.store.ListConflicts(ctx, limit)
}

// MetricsFor computes conversion metrics over the matching correlations.
// A nil clientID aggregates across all clients. The store is paged until
// the range is exhausted, so every correlation in range contributes; a
// large range is never truncated.
func (e *Engine) MetricsFor(ctx context.Context, clientID *int64, since, until time.Time) (*model.ConversionMetrics, error) {
	var correlations []model.Correlation
	for offset := 0; ; offset += metricsPageSize {
		page, err := e.store.ListCorrelations(ctx, store.CorrelationFilter{
			ClientID: clientID,
			Since:    since,
			Until:    until,
			Limit:    metricsPageSize,
			Offset:   offset,
		})
		if err != nil {
			return nil, err
		}
		correlations = append(correlations, page...)
		if len(page) < metricsPageSize {
			break
		}
	}
	m := model.ComputeMetrics(correlations)
	return &m, nil
}
