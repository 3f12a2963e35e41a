package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"nft/seller/internal/domain"
)

// ListingRepository keeps an audit trail of every processed item.
type ListingRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveListing(ctx context.Context, event domain.ListingEvent) error
}

type listingRepository struct {
	db *pgxpool.Pool
}

func NewListingRepository(db *pgxpool.Pool) ListingRepository {
	return &listingRepository{
		db: db,
	}
}

func (r *listingRepository) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS listing_events (
		run_id      TEXT        NOT NULL,
		collection  TEXT        NOT NULL,
		contract    TEXT        NOT NULL DEFAULT '',
		item_id     BIGINT      NOT NULL,
		price       DOUBLE PRECISION NOT NULL,
		outcome     TEXT        NOT NULL,
		url         TEXT        NOT NULL,
		detail      TEXT        NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, collection, item_id)
	)`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create listing_events table: %w", err)
	}
	return nil
}

func (r *listingRepository) SaveListing(ctx context.Context, event domain.ListingEvent) error {
	query := `
	INSERT INTO listing_events (run_id, collection, contract, item_id, price, outcome, url, detail, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (run_id, collection, item_id)
	DO UPDATE SET outcome = $6, detail = $8, created_at = $9`
	_, err := r.db.Exec(ctx, query,
		event.RunID,
		event.Collection,
		event.Contract,
		int64(event.ItemID),
		event.Price,
		event.Outcome,
		event.URL,
		event.Detail,
		event.At,
	)
	if err != nil {
		return fmt.Errorf("failed to save listing event for item %s: %w", event.ItemID, err)
	}
	return nil
}

