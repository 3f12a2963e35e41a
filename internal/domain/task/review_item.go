package task

import "nft/seller/internal/domain"

// ReviewItemTask asks an operator to look at an item whose page could not be
// classified, usually because the marketplace markup changed.
type ReviewItemTask struct {
	RunID      string        `json:"run_id"`
	Collection string        `json:"collection"`
	ItemID     domain.ItemID `json:"item_id"`
	URL        string        `json:"url"`
	Reason     string        `json:"reason"`
}

func (t *ReviewItemTask) TaskType() string {
	return "ReviewItemTask"
}

func (t *ReviewItemTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
