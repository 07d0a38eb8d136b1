package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Correlation metrics (within lookback window).
	WindowEvents    int     `json:"window_events"`
	WindowPaid      int     `json:"window_paid"`
	WindowFailed    int     `json:"window_failed"`
	WindowFailRate  float64 `json:"window_fail_rate"`
	WindowOverrides int     `json:"window_overrides"`

	// Store-wide counts.
	ActiveHypotheses int `json:"active_hypotheses"`
	TotalHypotheses  int `json:"total_hypotheses"`
	ContentVersions  int `json:"content_versions"`
	Correlations     int `json:"correlations"`

	// Conflict queue depth.
	ConflictDepth int `json:"conflict_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// collectPageSize is how many correlations one window page pulls.
const collectPageSize = 1000

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	// Page through every correlation in the window; a busy window must not
	// be truncated or the fail rate skews.
	for offset := 0; ; offset += collectPageSize {
		page, err := c.store.ListCorrelations(ctx, store.CorrelationFilter{
			Since:  cutoff,
			Limit:  collectPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list correlations")
		}

		snap.WindowEvents += len(page)
		for _, cor := range page {
			switch cor.OutcomeType {
			case model.OutcomePaid:
				snap.WindowPaid++
			case model.OutcomeFailed:
				snap.WindowFailed++
			}
			if cor.ManualOverride {
				snap.WindowOverrides++
			}
		}
		if len(page) < collectPageSize {
			break
		}
	}
	if finished := snap.WindowPaid + snap.WindowFailed; finished > 0 {
		snap.WindowFailRate = float64(snap.WindowFailed) / float64(finished)
	}

	// Store-wide counts and conflict queue depth.
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: store stats")
	}
	snap.ActiveHypotheses = stats.ActiveHypotheses
	snap.TotalHypotheses = stats.TotalHypotheses
	snap.ContentVersions = stats.ContentVersions
	snap.Correlations = stats.Correlations
	snap.ConflictDepth = stats.ConflictDepth

	return snap, nil
}
