package domain

import "time"

// ListingEvent describes what happened to one item during a run.
type ListingEvent struct {
	RunID      string    `json:"run_id"`
	Collection string    `json:"collection"`
	Contract   string    `json:"contract,omitempty"`
	ItemID     ItemID    `json:"item_id"`
	Price      float64   `json:"price"`
	Outcome    string    `json:"outcome"`
	URL        string    `json:"url"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}
