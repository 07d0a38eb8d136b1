package model

import "time"

// PageType identifies a step in a client's activation journey.
type PageType string

const (
	PageActivation   PageType = "activation"
	PageAgreement    PageType = "agreement"
	PageConfirmation PageType = "confirmation"
	PageProcessing   PageType = "processing"
)

// DefaultJourney is the page sequence seeded for a new client.
var DefaultJourney = []PageType{PageActivation, PageAgreement, PageConfirmation, PageProcessing}

// PageStatus represents where a journey page sits in the client's flow.
type PageStatus string

const (
	PagePending   PageStatus = "pending"
	PageActive    PageStatus = "active"
	PageCompleted PageStatus = "completed"
	PageSkipped   PageStatus = "skipped"
)

// JourneyPage is one step of a client's multi-page activation flow.
// page_order values within one client's journey are contiguous and
// strictly increasing; exactly one page is active unless the journey
// is complete.
type JourneyPage struct {
	ID        string     `json:"id"`
	ClientID  int64      `json:"client_id"`
	PageType  PageType   `json:"page_type"`
	PageOrder int        `json:"page_order"`
	Status    PageStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
