package task

import "nft/seller/internal/domain"

// ListingOutcomeTask reports the outcome of one processed item.
type ListingOutcomeTask struct {
	domain.ListingEvent
}

func (t *ListingOutcomeTask) TaskType() string {
	return "ListingOutcomeTask"
}

func (t *ListingOutcomeTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
