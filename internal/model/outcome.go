package model

import "time"

// JourneyOutcome is the human-entered final classification of a client journey.
type JourneyOutcome string

const (
	JourneyPaid        JourneyOutcome = "paid"
	JourneyResponded   JourneyOutcome = "responded"
	JourneyGhosted     JourneyOutcome = "ghosted"
	JourneyPending     JourneyOutcome = "pending"
	JourneyNegotiating JourneyOutcome = "negotiating"
	JourneyDeclined    JourneyOutcome = "declined"
)

// ValidJourneyOutcome reports whether jo is one of the known outcomes.
func ValidJourneyOutcome(jo JourneyOutcome) bool {
	switch jo {
	case JourneyPaid, JourneyResponded, JourneyGhosted, JourneyPending, JourneyNegotiating, JourneyDeclined:
		return true
	}
	return false
}

// Outcome is a client's current journey outcome. One row per client,
// replaced on re-record; correlations and hypotheses tied to earlier
// states are kept.
type Outcome struct {
	ClientID       int64          `json:"client_id"`
	JourneyOutcome JourneyOutcome `json:"journey_outcome"`
	Notes          string         `json:"notes,omitempty"`
	RevenueAmount  *int64         `json:"revenue_amount,omitempty"` // minor units
	RecordedAt     time.Time      `json:"recorded_at"`
}
