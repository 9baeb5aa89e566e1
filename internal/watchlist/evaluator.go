// Package watchlist turns price movements into one-shot price alerts for
// the users watching an auction.
package watchlist

import (
	"context"
	"errors"
	"fmt"

	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Publisher receives the alerts the evaluator raises
type Publisher interface {
	Publish(events ...models.Event)
}

// Evaluator checks PriceChanged events against watch thresholds
type Evaluator struct {
	store     repository.WatchlistStore
	publisher Publisher
}

// NewEvaluator creates an Evaluator
func NewEvaluator(store repository.WatchlistStore, publisher Publisher) *Evaluator {
	return &Evaluator{store: store, publisher: publisher}
}

// Run consumes events until the channel closes or ctx is done
func (e *Evaluator) Run(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := e.Evaluate(ctx, ev); err != nil {
				utils.Warn("watchlist: evaluation failed", map[string]any{
					"auction_id": ev.AuctionID,
					"error":      err.Error(),
				})
			}
		}
	}
}

// Evaluate raises AlertTriggered for every entry whose threshold the new
// price has reached. The store's fired flag makes each alert fire once.
func (e *Evaluator) Evaluate(ctx context.Context, ev models.Event) ([]models.Event, error) {
	if ev.Type != models.EventPriceChanged || ev.NewPrice == nil {
		return nil, nil
	}
	price := *ev.NewPrice

	entries, err := e.store.ListWatchers(ctx, ev.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("watchlist: list watchers of auction %s: %w", ev.AuctionID, err)
	}

	// an entry whose flag could not be set stays armed for the next price
	// change; alerts already marked fired are published regardless
	var (
		alerts []models.Event
		errs   []error
	)
	for _, entry := range entries {
		if entry.AlertFired || entry.PriceAlertThreshold == nil || entry.PriceAlertThreshold.GreaterThan(price) {
			continue
		}
		fired, err := e.store.MarkAlertFired(ctx, entry.UserID, entry.AuctionID)
		if err != nil {
			errs = append(errs, fmt.Errorf("watchlist: mark alert for user %s on auction %s: %w", entry.UserID, entry.AuctionID, err))
			continue
		}
		if !fired {
			continue
		}
		alert := models.AlertTriggered(entry.UserID, entry.AuctionID, *entry.PriceAlertThreshold, price)
		alert.OccurredAt = ev.OccurredAt
		alert.Version = ev.Version
		alerts = append(alerts, alert)
	}

	if len(alerts) > 0 {
		e.publisher.Publish(alerts...)
	}
	return alerts, errors.Join(errs...)
}
