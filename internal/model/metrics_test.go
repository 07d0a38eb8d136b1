package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func dur(d time.Duration) *time.Duration { return &d }

func TestComputeMetricsEmptySet(t *testing.T) {
	m := ComputeMetrics(nil)
	assert.Equal(t, 0, m.TotalEvents)
	assert.Equal(t, 0, m.Conversions)
	assert.Zero(t, m.SuccessRate)
	assert.Zero(t, m.AvgConversion)
	assert.Empty(t, m.ByOutcome)
	assert.Empty(t, m.ByPaymentMethod)
}

func TestComputeMetrics(t *testing.T) {
	set := []Correlation{
		{OutcomeType: OutcomePaid, PaymentMethod: "card", Amount: 5000, Currency: "USD", ConversionDuration: dur(2 * time.Hour)},
		{OutcomeType: OutcomePaid, PaymentMethod: "bank_transfer", Amount: 10000, Currency: "USD", ConversionDuration: dur(4 * time.Hour)},
		{OutcomeType: OutcomePaid, PaymentMethod: "card", Amount: 3000, Currency: "EUR"}, // no measured duration
		{OutcomeType: OutcomeFailed, PaymentMethod: "card"},
		{OutcomeType: OutcomeCancelled, ManualOverride: true},
		{OutcomeType: OutcomePending},
	}

	m := ComputeMetrics(set)
	assert.Equal(t, 6, m.TotalEvents)
	assert.Equal(t, 3, m.Conversions)
	assert.InDelta(t, 0.5, m.SuccessRate, 1e-9)
	assert.Equal(t, 2, m.MeasuredPaid)
	assert.Equal(t, 3*time.Hour, m.AvgConversion)
	assert.Equal(t, 1, m.Overrides)
	assert.Equal(t, int64(15000), m.RevenueByCur["USD"])
	assert.Equal(t, int64(3000), m.RevenueByCur["EUR"])
	assert.Equal(t, 3, m.ByOutcome[OutcomePaid])
	assert.Equal(t, 1, m.ByOutcome[OutcomeFailed])
	assert.Equal(t, 3, m.ByPaymentMethod["card"])
	assert.Equal(t, 2, m.ByPaymentMethod[UnknownPaymentMethod])
}

// ComputeMetrics must be a pure function of its input.
func TestComputeMetricsDeterministic(t *testing.T) {
	set := []Correlation{
		{OutcomeType: OutcomePaid, Amount: 100, Currency: "USD", ConversionDuration: dur(time.Minute)},
		{OutcomeType: OutcomeFailed},
	}
	first := ComputeMetrics(set)
	second := ComputeMetrics(set)
	assert.Equal(t, first, second)
}

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		in   ProviderStatus
		want OutcomeType
	}{
		{ProviderSucceeded, OutcomePaid},
		{ProviderRequiresAction, OutcomePending},
		{ProviderProcessing, OutcomePending},
		{ProviderFailed, OutcomeFailed},
		{ProviderVoided, OutcomeCancelled},
		{ProviderRefunded, OutcomeCancelled},
	}
	for _, tc := range cases {
		got, ok := MapProviderStatus(tc.in)
		assert.True(t, ok, string(tc.in))
		assert.Equal(t, tc.want, got, string(tc.in))
	}

	_, ok := MapProviderStatus("disputed")
	assert.False(t, ok)
}

func TestEnumValidators(t *testing.T) {
	assert.True(t, ValidChangeType(ChangeBoth))
	assert.False(t, ValidChangeType("layout"))
	assert.True(t, ValidOutcomeType(OutcomeCancelled))
	assert.False(t, ValidOutcomeType("chargeback"))
	assert.True(t, ValidJourneyOutcome(JourneyNegotiating))
	assert.False(t, ValidJourneyOutcome("won"))
}
