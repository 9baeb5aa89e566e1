package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"

	"auction-engine/internal/auction"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/watchlist"
	"auction-engine/utils"
)

// Options configure the engine and the components it owns
type Options struct {
	Actor            auction.Config
	Scheduler        scheduler.Config
	SubscriberBuffer int
	// IncrementPolicy applies to new auctions that do not name one
	IncrementPolicy models.IncrementPolicy
}

// NewAuction is the input of CreateAuction
type NewAuction struct {
	SellerID        string
	StartingPrice   decimal.Decimal
	MinIncrement    decimal.Decimal
	IncrementPolicy models.IncrementPolicy
	StartTime       time.Time
	EndTime         time.Time
}

// Engine is the entry point of the bidding engine. It routes every command
// to the actor owning the auction and wires the scheduler, the event bus and
// the watchlist evaluator together.
type Engine struct {
	store  repository.AuctionStore
	watch  repository.WatchlistStore
	clock  clock.Clock
	opts   Options
	bus    *events.Bus
	sched  *scheduler.Scheduler
	alerts *watchlist.Evaluator

	mu     sync.Mutex
	actors map[string]*auction.Actor // key: auctionID -> value: live actor

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewEngine creates a new Engine instance
func NewEngine(store repository.AuctionStore, watch repository.WatchlistStore, clk clock.Clock, opts Options) (*Engine, error) {
	if opts.IncrementPolicy == "" {
		opts.IncrementPolicy = models.IncrementFixed
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:   store,
		watch:   watch,
		clock:   clk,
		opts:    opts,
		bus:     events.NewBus(opts.SubscriberBuffer),
		actors:  make(map[string]*auction.Actor),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	sched, err := scheduler.New(clk, e, store, opts.Scheduler)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.sched = sched
	e.alerts = watchlist.NewEvaluator(watch, e.bus)
	return e, nil
}

// Run rebuilds the schedule from the store and drives the scheduler, the
// event bus and the watchlist evaluator until ctx is done. Every actor is
// stopped before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()

	if err := e.sched.Rebuild(ctx); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	alerts := e.bus.Subscribe("")
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		e.bus.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.alerts.Run(ctx, alerts.C())
	}()
	go func() {
		defer wg.Done()
		if err := e.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			utils.Error("engine: scheduler stopped", map[string]any{"error": err.Error()})
		}
	}()

	utils.Info("engine: running", map[string]any{"scheduled": e.sched.Len()})
	wg.Wait()
	utils.Info("engine: stopped", nil)
	return nil
}

func (e *Engine) shutdown() {
	e.cancel()
	e.mu.Lock()
	actors := make([]*auction.Actor, 0, len(e.actors))
	for id, a := range e.actors {
		actors = append(actors, a)
		delete(e.actors, id)
	}
	e.mu.Unlock()
	for _, a := range actors {
		a.Stop()
	}
}

// CreateAuction validates and stores a new auction and schedules its lifecycle
func (e *Engine) CreateAuction(ctx context.Context, in NewAuction) (models.AuctionView, error) {
	now := e.clock.Now()
	if in.StartTime.IsZero() {
		in.StartTime = now
	}
	if in.IncrementPolicy == "" {
		in.IncrementPolicy = e.opts.IncrementPolicy
	}
	if err := validateNewAuction(in, now); err != nil {
		return models.AuctionView{}, err
	}

	a := models.Auction{
		ID:              utils.GenerateID(),
		SellerID:        in.SellerID,
		StartingPrice:   in.StartingPrice,
		MinIncrement:    in.MinIncrement,
		IncrementPolicy: in.IncrementPolicy,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		Status:          models.StatusScheduled,
		CurrentPrice:    in.StartingPrice,
		Version:         1,
		CreatedAt:       now,
	}
	started := !now.Before(a.StartTime)
	if started {
		a.Status = models.StatusActive
	}

	if err := e.store.CreateAuction(ctx, a); err != nil {
		return models.AuctionView{}, fmt.Errorf("engine: failed to create auction: %w", err)
	}
	e.sched.Track(a)
	if started {
		ev := models.Started(a.ID, a.EndTime)
		ev.Version = a.Version
		ev.OccurredAt = now
		e.bus.Publish(ev)
	}

	utils.Info("engine: auction created", map[string]any{
		"auction_id": a.ID,
		"seller_id":  a.SellerID,
		"status":     a.Status,
		"end_time":   a.EndTime,
	})
	return models.NewAuctionView(a, false, now), nil
}

func validateNewAuction(in NewAuction, now time.Time) error {
	switch {
	case in.SellerID == "":
		return fmt.Errorf("engine: %w - missing seller ID", biddingerrors.ErrInvalidAuction)
	case !in.StartingPrice.IsPositive():
		return fmt.Errorf("engine: %w - starting price must be positive", biddingerrors.ErrInvalidAuction)
	case !in.MinIncrement.IsPositive():
		return fmt.Errorf("engine: %w - minimum increment must be positive", biddingerrors.ErrInvalidAuction)
	case in.IncrementPolicy != models.IncrementFixed && in.IncrementPolicy != models.IncrementPercentage:
		return fmt.Errorf("engine: %w - unknown increment policy %q", biddingerrors.ErrInvalidAuction, in.IncrementPolicy)
	case !in.EndTime.After(in.StartTime):
		return fmt.Errorf("engine: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	case !in.EndTime.After(now):
		return fmt.Errorf("engine: %w - end time is in the past", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// PlaceBid validates and submits a manual bid. Business rejections are
// reported in the result, not as an error.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.BidResult, error) {
	if auctionID == "" || bidderID == "" {
		return models.BidResult{}, fmt.Errorf("engine: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return models.BidResult{}, fmt.Errorf("engine: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}

	var res models.BidResult
	err := e.withActor(ctx, auctionID, func(a *auction.Actor) error {
		var err error
		res, err = a.PlaceBid(ctx, bidderID, amount)
		return err
	})
	if err != nil {
		return models.BidResult{}, fmt.Errorf("engine: failed to place bid on auction %s by bidder %s: %w", auctionID, bidderID, err)
	}
	return res, nil
}

// RegisterProxyBid creates or raises the bidder's proxy agent
func (e *Engine) RegisterProxyBid(ctx context.Context, auctionID, bidderID string, maxAmount decimal.Decimal) (models.ProxyResult, error) {
	if auctionID == "" || bidderID == "" {
		return models.ProxyResult{}, fmt.Errorf("engine: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if !maxAmount.IsPositive() {
		return models.ProxyResult{}, fmt.Errorf("engine: %w - non-positive proxy maximum", biddingerrors.ErrInvalidBid)
	}

	var res models.ProxyResult
	err := e.withActor(ctx, auctionID, func(a *auction.Actor) error {
		var err error
		res, err = a.RegisterProxy(ctx, bidderID, maxAmount)
		return err
	})
	if err != nil {
		return models.ProxyResult{}, fmt.Errorf("engine: failed to register proxy on auction %s by bidder %s: %w", auctionID, bidderID, err)
	}
	return res, nil
}

// GetAuctionSnapshot returns the last committed state of an auction without
// queueing behind its commands
func (e *Engine) GetAuctionSnapshot(ctx context.Context, auctionID string) (models.AuctionView, error) {
	if auctionID == "" {
		return models.AuctionView{}, fmt.Errorf("engine: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if a := e.liveActor(auctionID); a != nil {
		return a.Snapshot(), nil
	}
	stored, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return models.AuctionView{}, fmt.Errorf("engine: failed to get auction %s: %w", auctionID, err)
	}
	return models.NewAuctionView(stored, false, e.clock.Now()), nil
}

// GetBids returns the bid history of an auction in commit order
func (e *Engine) GetBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("engine: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if _, err := e.store.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("engine: failed to get auction %s: %w", auctionID, err)
	}
	bids, err := e.store.GetBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// CancelAuction withdraws a scheduled auction on behalf of its seller
func (e *Engine) CancelAuction(ctx context.Context, auctionID, sellerID string) error {
	if auctionID == "" || sellerID == "" {
		return fmt.Errorf("engine: %w - missing auctionID or sellerID", biddingerrors.ErrInvalidAuction)
	}
	err := e.withActor(ctx, auctionID, func(a *auction.Actor) error {
		if err := a.Cancel(ctx, sellerID); err != nil {
			return err
		}
		e.retire(a)
		return nil
	})
	if err != nil {
		return fmt.Errorf("engine: failed to cancel auction %s: %w", auctionID, err)
	}
	return nil
}

// CloseAuction closes an auction whose end time has passed. Closing twice is a no-op.
func (e *Engine) CloseAuction(ctx context.Context, auctionID string) error {
	return e.Dispatch(ctx, auctionID, models.PhaseClose)
}

// Reconcile reloads an auction's actor from the store, leaving degraded mode
func (e *Engine) Reconcile(ctx context.Context, auctionID string) error {
	err := e.withActor(ctx, auctionID, func(a *auction.Actor) error {
		return a.Reconcile(ctx)
	})
	if err != nil {
		return fmt.Errorf("engine: failed to reconcile auction %s: %w", auctionID, err)
	}
	return nil
}

// Dispatch applies a scheduled lifecycle phase; the scheduler calls it
func (e *Engine) Dispatch(ctx context.Context, auctionID string, phase models.Phase) error {
	err := e.withActor(ctx, auctionID, func(a *auction.Actor) error {
		if err := a.Advance(ctx, phase); err != nil {
			return err
		}
		if a.Snapshot().Status.IsTerminal() {
			e.retire(a)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("engine: %s auction %s: %w", phase, auctionID, err)
	}
	return nil
}

// Watch registers or updates a user's interest in an auction
func (e *Engine) Watch(ctx context.Context, entry models.WatchEntry) error {
	if entry.UserID == "" || entry.AuctionID == "" {
		return fmt.Errorf("engine: %w - missing userID or auctionID", biddingerrors.ErrInvalidWatch)
	}
	if entry.PriceAlertThreshold != nil && !entry.PriceAlertThreshold.IsPositive() {
		return fmt.Errorf("engine: %w - alert threshold must be positive", biddingerrors.ErrInvalidWatch)
	}
	if _, err := e.store.GetAuction(ctx, entry.AuctionID); err != nil {
		return fmt.Errorf("engine: failed to get auction %s: %w", entry.AuctionID, err)
	}
	entry.AlertFired = false
	if err := e.watch.UpsertWatch(ctx, entry); err != nil {
		return fmt.Errorf("engine: failed to watch auction %s for user %s: %w", entry.AuctionID, entry.UserID, err)
	}
	return nil
}

// Subscribe streams the events of one auction, or of every auction when auctionID is empty
func (e *Engine) Subscribe(auctionID string) *events.Subscription {
	return e.bus.Subscribe(auctionID)
}

// FanoutStats reports the event bus counters
func (e *Engine) FanoutStats() events.Stats {
	return e.bus.Stats()
}

// withActor runs fn against the auction's actor. An actor that stops under
// the call is replaced once, so a retired actor never surfaces to callers.
func (e *Engine) withActor(ctx context.Context, auctionID string, fn func(a *auction.Actor) error) error {
	for attempt := 0; ; attempt++ {
		a, err := e.actorFor(ctx, auctionID)
		if err != nil {
			return err
		}
		err = fn(a)
		if errors.Is(err, biddingerrors.ErrActorStopped) && attempt == 0 && e.baseCtx.Err() == nil {
			continue
		}
		return err
	}
}

// actorFor returns the live actor of an auction, spawning one from the
// store when there is none or the previous one has halted
func (e *Engine) actorFor(ctx context.Context, auctionID string) (*auction.Actor, error) {
	if a := e.liveActor(auctionID); a != nil {
		return a, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", biddingerrors.ErrCancelled, err)
	}

	spawned, err := auction.Spawn(e.baseCtx, auctionID, e.opts.Actor, auction.Deps{
		Store:     e.store,
		Publisher: e.bus,
		Scheduler: e.sched,
		Clock:     e.clock,
		NewID:     utils.GenerateID,
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if existing, ok := e.actors[auctionID]; ok && alive(existing) {
		e.mu.Unlock()
		spawned.Stop()
		return existing, nil
	}
	e.actors[auctionID] = spawned
	e.mu.Unlock()
	return spawned, nil
}

func (e *Engine) liveActor(auctionID string) *auction.Actor {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.actors[auctionID]
	if !ok {
		return nil
	}
	if !alive(a) {
		if a.Halted() {
			utils.Warn("engine: replacing halted actor", map[string]any{"auction_id": auctionID})
		}
		delete(e.actors, auctionID)
		return nil
	}
	return a
}

// retire stops the actor of an auction that reached a terminal status
func (e *Engine) retire(a *auction.Actor) {
	e.mu.Lock()
	if cur, ok := e.actors[a.ID()]; ok && cur == a {
		delete(e.actors, a.ID())
	}
	e.mu.Unlock()
	go a.Stop()
}

func alive(a *auction.Actor) bool {
	select {
	case <-a.Done():
		return false
	default:
		return !a.Halted()
	}
}
