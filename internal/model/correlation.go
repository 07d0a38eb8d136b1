package model

import "time"

// OutcomeType classifies what a payment event meant for the client's journey.
type OutcomeType string

const (
	OutcomePaid      OutcomeType = "paid"
	OutcomeFailed    OutcomeType = "failed"
	OutcomePending   OutcomeType = "pending"
	OutcomeCancelled OutcomeType = "cancelled"
)

// ValidOutcomeType reports whether ot is one of the known outcome types.
func ValidOutcomeType(ot OutcomeType) bool {
	switch ot {
	case OutcomePaid, OutcomeFailed, OutcomePending, OutcomeCancelled:
		return true
	}
	return false
}

// Correlation links one payment event to an outcome classification.
// One correlation exists per event_id. Only OutcomeType, ManualOverride
// and OverrideReason ever change after insert, and only through an
// explicit override that writes an audit row in the same transaction.
type Correlation struct {
	ID                 string         `json:"id"`
	PaymentEventID     string         `json:"payment_event_id"`
	ClientID           int64          `json:"client_id"`
	OutcomeType        OutcomeType    `json:"outcome_type"`
	PaymentMethod      string         `json:"payment_method,omitempty"`
	Amount             int64          `json:"amount"`
	Currency           string         `json:"currency"`
	ManualOverride     bool           `json:"manual_override"`
	OverrideReason     string         `json:"override_reason,omitempty"`
	ConversionDuration *time.Duration `json:"conversion_duration,omitempty"` // nil when journey start is unknown or after occurred_at
	Fingerprint        string         `json:"fingerprint"`
	CorrelatedAt       time.Time      `json:"correlated_at"`
}

// CorrelationAudit records one override applied to a correlation. Rows are
// append-only; the original automatic classification stays queryable next
// to every human correction.
type CorrelationAudit struct {
	ID            string      `json:"id"`
	CorrelationID string      `json:"correlation_id"`
	OldOutcome    OutcomeType `json:"old_outcome"`
	NewOutcome    OutcomeType `json:"new_outcome"`
	Reason        string      `json:"reason"`
	ActorID       string      `json:"actor_id"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ConflictRecord parks a re-delivered payment event whose payload did not
// match the already-correlated one. Operators review these by hand; the
// original correlation is never touched.
type ConflictRecord struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Fingerprint string    `json:"fingerprint"` // fingerprint of the stored correlation
	Payload     string    `json:"payload"`     // conflicting payload, JSON
	Detail      string    `json:"detail"`
	ReceivedAt  time.Time `json:"received_at"`
}
