package repository

import (
	"auction-marketplace/internal/biddingerrors"
	"auction-marketplace/internal/metrics"
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"context"
	"errors"
	"fmt"
)

// DefaultMaxAttempts bounds how often a mutation is recomputed after losing
// a compare-and-swap.
const DefaultMaxAttempts = 5

// Mutator computes the change to commit from a freshly loaded aggregate.
// Returning an error aborts the mutation without writing anything.
type Mutator func(agg model.Aggregate) (model.AggregateChange, error)

// Mutate runs fn against the current state of one auction and commits the
// result atomically, recomputing from fresh state when another writer got
// there first. A change that neither writes bids nor alters the auction row
// is not committed.
func Mutate(ctx context.Context, db AuctionDB, operation, auctionID string, maxAttempts int, fn Mutator) (model.Auction, model.AggregateChange, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.Auction{}, model.AggregateChange{}, err
		}

		agg, err := db.LoadAggregate(ctx, auctionID)
		if err != nil {
			return model.Auction{}, model.AggregateChange{}, storageError(err)
		}

		change, err := fn(agg)
		if err != nil {
			return model.Auction{}, model.AggregateChange{}, err
		}

		if change.IsEmpty() && change.Auction == agg.Auction {
			return agg.Auction, change, nil
		}

		committed, err := db.CommitAggregate(ctx, change)
		if err == nil {
			return committed, change, nil
		}
		if !errors.Is(err, biddingerrors.ErrVersionConflict) {
			return model.Auction{}, model.AggregateChange{}, storageError(err)
		}

		metrics.CommitConflicts.WithLabelValues(operation).Inc()
		utils.Debug("ledger: commit lost compare-and-swap, retrying", map[string]any{
			"operation":  operation,
			"auction_id": auctionID,
			"attempt":    attempt,
		})
	}

	return model.Auction{}, model.AggregateChange{}, fmt.Errorf("%s auction %s after %d attempts: %w",
		operation, auctionID, maxAttempts, biddingerrors.ErrConflict)
}

// storageError passes domain errors through and classifies everything else
// as the storage being unavailable.
func storageError(err error) error {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound),
		errors.Is(err, biddingerrors.ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", biddingerrors.ErrStorageUnavailable, err)
	}
}
