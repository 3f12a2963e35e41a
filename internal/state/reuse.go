package state

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"nft/seller/internal/domain"
)

// ReuseMode controls whether a snapshot left by a previous run is picked up.
type ReuseMode string

const (
	ReuseYes ReuseMode = "yes"
	ReuseNo  ReuseMode = "no"
	ReuseAsk ReuseMode = "ask"
)

func (m ReuseMode) Validate() error {
	switch m {
	case ReuseYes, ReuseNo, ReuseAsk:
		return nil
	default:
		return fmt.Errorf("%w: reuse_progress must be yes, no or ask, got %q", domain.ErrConfig, m)
	}
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Open returns the record a run starts from: the stored snapshot when the
// operator opts in, an empty record otherwise.
func Open(ctx context.Context, store Store, mode ReuseMode, confirm Confirmer) (*Record, error) {
	exists, err := store.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Infof("📄 No previous progress found in %s, starting fresh", store.Describe())
		return NewRecord(), nil
	}

	reuse := mode == ReuseYes
	if mode == ReuseAsk {
		if confirm == nil {
			return nil, fmt.Errorf("%w: reuse_progress is ask but no prompt is available", domain.ErrConfig)
		}
		reuse, err = confirm.Confirm(ctx, fmt.Sprintf("Found previous listing progress in %s. Reuse it?", store.Describe()))
		if err != nil {
			return nil, fmt.Errorf("confirm progress reuse: %w", err)
		}
	}

	if !reuse {
		log.Infof("📄 Ignoring previous progress in %s", store.Describe())
		return NewRecord(), nil
	}

	record, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("🔄 Continuing with %d recorded items from %s", record.Len(), store.Describe())
	return record, nil
}
