package model

import "time"

// ConversionMetrics aggregates a set of correlations. Computed purely from
// the input set; an empty set yields zero metrics, not an error.
type ConversionMetrics struct {
	TotalEvents     int                 `json:"total_events"`
	Conversions     int                 `json:"conversions"` // outcome_type = paid
	SuccessRate     float64             `json:"success_rate"`
	AvgConversion   time.Duration       `json:"avg_conversion_duration"` // over paid rows with a known duration
	MeasuredPaid    int                 `json:"measured_paid"`           // paid rows that had a duration
	Overrides       int                 `json:"overrides"`
	RevenueByCur    map[string]int64    `json:"revenue_by_currency"` // paid amounts, minor units
	ByOutcome       map[OutcomeType]int `json:"by_outcome"`
	ByPaymentMethod map[string]int      `json:"by_payment_method"`
}

// UnknownPaymentMethod buckets events whose provider sent no method.
const UnknownPaymentMethod = "unknown"

// ComputeMetrics derives conversion metrics from a correlation set.
func ComputeMetrics(correlations []Correlation) ConversionMetrics {
	m := ConversionMetrics{
		RevenueByCur:    make(map[string]int64),
		ByOutcome:       make(map[OutcomeType]int),
		ByPaymentMethod: make(map[string]int),
	}

	var durationSum time.Duration
	for _, c := range correlations {
		m.TotalEvents++
		m.ByOutcome[c.OutcomeType]++

		method := c.PaymentMethod
		if method == "" {
			method = UnknownPaymentMethod
		}
		m.ByPaymentMethod[method]++

		if c.ManualOverride {
			m.Overrides++
		}
		if c.OutcomeType == OutcomePaid {
			m.Conversions++
			m.RevenueByCur[c.Currency] += c.Amount
			if c.ConversionDuration != nil {
				m.MeasuredPaid++
				durationSum += *c.ConversionDuration
			}
		}
	}

	if m.TotalEvents > 0 {
		m.SuccessRate = float64(m.Conversions) / float64(m.TotalEvents)
	}
	if m.MeasuredPaid > 0 {
		m.AvgConversion = durationSum / time.Duration(m.MeasuredPaid)
	}
	return m
}

// StoreStats is a point-in-time count snapshot across the core tables,
// collected for the status command and the health endpoint.
type StoreStats struct {
	ActiveHypotheses int                    `json:"active_hypotheses"`
	TotalHypotheses  int                    `json:"total_hypotheses"`
	ContentVersions  int                    `json:"content_versions"`
	Correlations     int                    `json:"correlations"`
	ManualOverrides  int                    `json:"manual_overrides"`
	ConflictDepth    int                    `json:"conflict_depth"`
	OutcomeBreakdown map[JourneyOutcome]int `json:"outcome_breakdown"`
	CollectedAt      time.Time              `json:"collected_at"`
}
