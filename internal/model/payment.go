package model

import "time"

// ProviderStatus is the payment provider's own status vocabulary, as
// received on the webhook. Mapped deterministically to an OutcomeType
// at intake.
type ProviderStatus string

const (
	ProviderSucceeded      ProviderStatus = "succeeded"
	ProviderRequiresAction ProviderStatus = "requires_action"
	ProviderProcessing     ProviderStatus = "processing"
	ProviderFailed         ProviderStatus = "failed"
	ProviderVoided         ProviderStatus = "voided"
	ProviderRefunded       ProviderStatus = "refunded"
)

// PaymentEvent is the canonical shape of one inbound payment notification.
// EventID is the provider's idempotency key; signature verification happens
// upstream, before the event reaches this core.
type PaymentEvent struct {
	EventID       string         `json:"event_id"`
	ClientID      int64          `json:"client_id"`
	Amount        int64          `json:"amount"` // minor units
	Currency      string         `json:"currency"`
	Status        ProviderStatus `json:"status"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// MapProviderStatus maps a provider status to the correlation outcome type.
// The mapping is total over the known vocabulary; ok is false for anything
// else so intake can reject it instead of guessing.
func MapProviderStatus(s ProviderStatus) (OutcomeType, bool) {
	switch s {
	case ProviderSucceeded:
		return OutcomePaid, true
	case ProviderRequiresAction, ProviderProcessing:
		return OutcomePending, true
	case ProviderFailed:
		return OutcomeFailed, true
	case ProviderVoided, ProviderRefunded:
		return OutcomeCancelled, true
	}
	return "", false
}
