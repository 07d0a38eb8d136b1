package model

import "time"

// HypothesisStatus represents the lifecycle state of a hypothesis.
type HypothesisStatus string

const (
	HypothesisActive    HypothesisStatus = "active"
	HypothesisCompleted HypothesisStatus = "completed"
	HypothesisCancelled HypothesisStatus = "cancelled"
)

// ChangeType describes what kind of content change a hypothesis predicts about.
type ChangeType string

const (
	ChangeContent   ChangeType = "content"
	ChangeTitle     ChangeType = "title"
	ChangeStructure ChangeType = "structure"
	ChangeBoth      ChangeType = "both"
)

// ValidChangeType reports whether ct is one of the known change types.
func ValidChangeType(ct ChangeType) bool {
	switch ct {
	case ChangeContent, ChangeTitle, ChangeStructure, ChangeBoth:
		return true
	}
	return false
}

// Hypothesis is an editor's falsifiable belief about why a content change
// will affect conversion. At most one hypothesis per page is active at a
// time; creating a new one completes the previous active one in the same
// write.
type Hypothesis struct {
	ID               string           `json:"id"`
	PageID           string           `json:"page_id"`
	Statement        string           `json:"statement"`
	ChangeType       ChangeType       `json:"change_type"`
	ConfidenceLevel  int              `json:"confidence_level"` // [1,10]
	PredictedOutcome string           `json:"predicted_outcome,omitempty"`
	ActualOutcome    string           `json:"actual_outcome,omitempty"`
	Status           HypothesisStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ContentVersion is one immutable saved revision of a journey page.
// HypothesisID is empty only for rows saved before the edit gate existed.
type ContentVersion struct {
	ID           string    `json:"id"`
	PageID       string    `json:"page_id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	HypothesisID string    `json:"hypothesis_id,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}
