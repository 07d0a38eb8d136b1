package store

import (
	"context"
	"time"

	"github.com/sells-group/activation-core/internal/model"
)

// CorrelationFilter specifies criteria for listing correlations.
// A nil ClientID means all clients; zero times mean unbounded.
type CorrelationFilter struct {
	ClientID *int64    `json:"client_id,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Until    time.Time `json:"until,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for the activation core.
//
// The compound writes (CreateHypothesis, AppendVersion and
// OverrideCorrelation) are each a single transaction in every
// implementation, so their invariants hold even across a crash between
// steps.
type Store interface {
	// Hypotheses
	CreateHypothesis(ctx context.Context, h model.Hypothesis) (*model.Hypothesis, error)
	GetHypothesis(ctx context.Context, id string) (*model.Hypothesis, error)
	GetActiveHypothesis(ctx context.Context, pageID string) (*model.Hypothesis, error)
	ListHypothesesByPage(ctx context.Context, pageID string) ([]model.Hypothesis, error)
	SetHypothesisOutcome(ctx context.Context, id, actualOutcome string) (*model.Hypothesis, error)
	SetHypothesisStatus(ctx context.Context, id string, status model.HypothesisStatus) error

	// Content versions
	AppendVersion(ctx context.Context, pageID, title, body, hypothesisID string) (*model.ContentVersion, error)
	LatestVersion(ctx context.Context, pageID string) (*model.ContentVersion, error)
	ListVersions(ctx context.Context, pageID string) ([]model.ContentVersion, error)

	// Journey pages
	SeedJourney(ctx context.Context, clientID int64, pages []model.PageType) ([]model.JourneyPage, error)
	GetJourneyPage(ctx context.Context, pageID string) (*model.JourneyPage, error)
	ListJourneyPages(ctx context.Context, clientID int64) ([]model.JourneyPage, error)
	AdvanceJourney(ctx context.Context, clientID int64, skip bool) (*model.JourneyPage, error)
	JourneyStart(ctx context.Context, clientID int64) (time.Time, error)

	// Correlations
	InsertCorrelation(ctx context.Context, c model.Correlation) (*model.Correlation, error)
	GetCorrelation(ctx context.Context, id string) (*model.Correlation, error)
	GetCorrelationByEvent(ctx context.Context, eventID string) (*model.Correlation, error)
	ListCorrelations(ctx context.Context, filter CorrelationFilter) ([]model.Correlation, error)
	OverrideCorrelation(ctx context.Context, id string, newOutcome model.OutcomeType, reason, actorID string) (*model.Correlation, error)
	ListAudit(ctx context.Context, correlationID string) ([]model.CorrelationAudit, error)
	InsertConflict(ctx context.Context, rec model.ConflictRecord) error
	ListConflicts(ctx context.Context, limit int) ([]model.ConflictRecord, error)

	// Outcomes
	RecordOutcome(ctx context.Context, o model.Outcome) (*model.Outcome, error)
	GetOutcome(ctx context.Context, clientID int64) (*model.Outcome, error)

	// Stats
	Stats(ctx context.Context) (*model.StoreStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
