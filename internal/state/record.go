package state

import (
	"encoding/json"

	"nft/seller/internal/domain"
)

// Record is the set of item IDs already listed, in the order they were recorded.
type Record struct {
	items []domain.ItemID
	seen  map[domain.ItemID]struct{}
}

type snapshot struct {
	Items []domain.ItemID `json:"items"`
}

func NewRecord(ids ...domain.ItemID) *Record {
	r := &Record{seen: make(map[domain.ItemID]struct{}, len(ids))}
	for _, id := range ids {
		r.Add(id)
	}
	return r
}

func (r *Record) Contains(id domain.ItemID) bool {
	_, ok := r.seen[id]
	return ok
}

// Add inserts id and reports whether it was not present before.
func (r *Record) Add(id domain.ItemID) bool {
	if r.seen == nil {
		r.seen = make(map[domain.ItemID]struct{})
	}
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.items = append(r.items, id)
	return true
}

func (r *Record) Len() int {
	return len(r.items)
}

// IDs returns a copy of the recorded IDs in insertion order.
func (r *Record) IDs() []domain.ItemID {
	out := make([]domain.ItemID, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Record) MarshalJSON() ([]byte, error) {
	items := r.items
	if items == nil {
		items = []domain.ItemID{}
	}
	return json.Marshal(snapshot{Items: items})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = *NewRecord(s.Items...)
	return nil
}
