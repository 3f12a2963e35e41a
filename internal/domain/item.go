package domain

import "strconv"

// ItemID identifies one sellable unit within a collection.
type ItemID uint64

func (id ItemID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ItemRange is an inclusive range of item IDs.
type ItemRange struct {
	Start ItemID `json:"start"`
	End   ItemID `json:"end"`
}

func (r ItemRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return int(r.End-r.Start) + 1
}

// Each calls fn for every ID in ascending order and stops at the first error.
func (r ItemRange) Each(fn func(id ItemID) error) error {
	if r.End < r.Start {
		return nil
	}
	for id := r.Start; ; id++ {
		if err := fn(id); err != nil {
			return err
		}
		if id == r.End {
			return nil
		}
	}
}
