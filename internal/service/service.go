package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"nft/seller/internal/domain"
	"nft/seller/internal/domain/task"
	"nft/seller/internal/listing"
	"nft/seller/internal/marketplace"
	"nft/seller/internal/queue"
	"nft/seller/internal/repository"
	"nft/seller/internal/state"
)

// ItemLister runs the listing workflow for a single item.
type ItemLister interface {
	List(ctx context.Context, id domain.ItemID, record *state.Record) (listing.Result, error)
}

// Summary counts what a run did.
type Summary struct {
	Listed          int
	AlreadyListed   int
	Skipped         int
	Unrecognized    int
	UnrecognizedIDs []domain.ItemID
	Recorded        int
	Elapsed         time.Duration
}

func (s *Summary) add(id domain.ItemID, outcome domain.Outcome) {
	switch outcome {
	case domain.OutcomeListed:
		s.Listed++
	case domain.OutcomeAlreadyListed:
		s.AlreadyListed++
	case domain.OutcomeSkipped:
		s.Skipped++
	case domain.OutcomeUnrecognized:
		s.Unrecognized++
		s.UnrecognizedIDs = append(s.UnrecognizedIDs, id)
	}
}

type Service struct {
	lister     ItemLister
	store      state.Store
	record     *state.Record
	items      domain.ItemRange
	limiter    ratelimit.Limiter
	repository repository.ListingRepository
	queue      queue.Queue
	runID      string
	collection string
	contract   string
	price      float64
}

// persistTimeout bounds the progress write that closes an item.
const persistTimeout = 30 * time.Second

type Params struct {
	Lister     ItemLister
	Store      state.Store
	Record     *state.Record
	Items      domain.ItemRange
	Collection string
	Price      float64
	RunID      string
	// ItemsPerMinute paces processed items; 0 disables pacing.
	ItemsPerMinute int
	// Repository and Queue are optional reporting sinks.
	Repository repository.ListingRepository
	Queue      queue.Queue
}

func NewService(p Params) *Service {
	limiter := ratelimit.NewUnlimited()
	if p.ItemsPerMinute > 0 {
		limiter = ratelimit.New(p.ItemsPerMinute, ratelimit.Per(time.Minute), ratelimit.WithoutSlack)
	}
	contract, _ := marketplace.ContractAddress(p.Collection)
	return &Service{
		lister:     p.Lister,
		store:      p.Store,
		record:     p.Record,
		items:      p.Items,
		limiter:    limiter,
		repository: p.Repository,
		queue:      p.Queue,
		runID:      p.RunID,
		collection: p.Collection,
		contract:   contract,
		price:      p.Price,
	}
}

// Record exposes the in-memory progress record.
func (s *Service) Record() *state.Record {
	return s.record
}

// RunSell walks the item range in ascending order. Progress is persisted after
// every processed item; any error returned is fatal for the run, and everything
// recorded up to the previous item is already durable.
//
// Cancelling ctx stops the run between items only. An item whose workflow has
// started runs to completion or to a fatal error: its listing may already be
// signed, and dropping it from the record would list it twice.
func (s *Service) RunSell(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{}

	log.Infof("🚀 Listing items %s..%s (%d items, %d already recorded) using %s",
		s.items.Start, s.items.End, s.items.Len(), s.record.Len(), s.store.Describe())
	if s.contract != "" {
		log.Infof("📜 Collection contract %s", s.contract)
	}

	err := s.items.Each(func(id domain.ItemID) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.record.Contains(id) {
			log.Infof("⏭️ Item %s already set, skipping", id)
			summary.add(id, domain.OutcomeSkipped)
			return nil
		}

		if err := s.pace(ctx); err != nil {
			return err
		}

		itemCtx := context.WithoutCancel(ctx)
		log.Infof("🔄 Processing item %s", id)
		res, err := s.lister.List(itemCtx, id, s.record)
		if err != nil {
			log.Errorf("❌ Item %s failed: %v", id, err)
			return fmt.Errorf("item %s: %w", id, err)
		}
		summary.add(id, res.Outcome)

		if err := s.persist(itemCtx); err != nil {
			log.Errorf("❌ Failed to save progress after item %s: %v", id, err)
			return err
		}

		s.report(itemCtx, id, res)
		return nil
	})

	summary.Recorded = s.record.Len()
	summary.Elapsed = time.Since(started)
	if err != nil {
		return summary, err
	}

	log.Infof("✅ Range %s..%s done in %s: %d listed, %d already listed, %d skipped, %d unrecognized",
		s.items.Start, s.items.End, summary.Elapsed.Round(time.Second),
		summary.Listed, summary.AlreadyListed, summary.Skipped, summary.Unrecognized)
	if summary.Unrecognized > 0 {
		log.Warnf("⚠️ Items with unrecognized page state (check the markup config): %v", summary.UnrecognizedIDs)
	}
	return summary, nil
}

// pace waits for the rate limiter. Take cannot be interrupted, so it runs
// aside and cancellation returns right away.
func (s *Service) pace(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.limiter.Take()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Service) persist(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	return s.store.Persist(ctx, s.record)
}

// report feeds the optional history and event sinks. The progress store is the
// source of truth, so failures here only warn.
func (s *Service) report(ctx context.Context, id domain.ItemID, res listing.Result) {
	event := domain.ListingEvent{
		RunID:      s.runID,
		Collection: s.collection,
		Contract:   s.contract,
		ItemID:     id,
		Price:      s.price,
		Outcome:    res.Outcome.String(),
		URL:        res.URL,
		Detail:     res.Detail,
		At:         time.Now().UTC(),
	}

	if s.repository != nil {
		if err := s.repository.SaveListing(ctx, event); err != nil {
			log.Warnf("⚠️ Failed to save listing history for item %s: %v", id, err)
		}
	}

	if s.queue == nil {
		return
	}
	if _, err := s.queue.AddTask(ctx, &task.ListingOutcomeTask{ListingEvent: event}); err != nil {
		log.Warnf("⚠️ Failed to publish outcome for item %s: %v", id, err)
	}
	if res.Outcome == domain.OutcomeUnrecognized {
		review := &task.ReviewItemTask{
			RunID:      s.runID,
			Collection: s.collection,
			ItemID:     id,
			URL:        res.URL,
			Reason:     res.Detail,
		}
		if _, err := s.queue.AddTask(ctx, review); err != nil {
			log.Warnf("⚠️ Failed to queue item %s for review: %v", id, err)
		}
	}
}
