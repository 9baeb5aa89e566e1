// Package auction runs one actor per auction. The actor owns the auction's
// state, serializes every mutation through a single inbox and is the only
// writer of the auction, its bids and its proxy agents.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Publisher receives committed events in commit order
type Publisher interface {
	Publish(events ...models.Event)
}

// Rescheduler is the part of the scheduler the actor keeps in sync
type Rescheduler interface {
	Reschedule(auctionID string, endTime time.Time)
	Remove(auctionID string)
}

// Config holds the actor policies
type Config struct {
	EndingSoonWindow       time.Duration
	AntiSnipeGrace         time.Duration
	MaxAntiSnipeExtensions int
	RejectRedundantBids    bool
	MailboxSize            int
	MaxContentionRetries   int
	PersistRetries         int
	PersistBackoff         time.Duration
	PersistMaxBackoff      time.Duration
}

// Deps are the collaborators shared by every actor
type Deps struct {
	Store     repository.AuctionStore
	Publisher Publisher
	Scheduler Rescheduler
	Clock     clock.Clock
	NewID     func() string
}

const (
	pending int32 = iota
	claimed
	abandoned
)

type response struct {
	value any
	err   error
}

// request is one inbox entry. Whoever flips claim first owns it: the actor
// when it dequeues the request, the caller when it gives up waiting.
type request struct {
	ctx   context.Context
	claim atomic.Int32
	fn    func(ctx context.Context) (any, error)
	reply chan response
}

// state is the actor's cached view of the committed auction
type state struct {
	auction models.Auction
	leader  *models.Bid
	agents  []models.ProxyAgent
}

// Actor serializes all commands for a single auction
type Actor struct {
	id   string
	cfg  Config
	deps Deps

	inbox chan *request
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	// owned by the actor goroutine
	state    state
	degraded bool

	snapshot atomic.Pointer[models.AuctionView]
	halted   atomic.Bool
}

// Spawn loads the auction from the store and starts its actor goroutine.
// The goroutine exits when ctx is done, Stop is called or an invariant breaks.
func Spawn(ctx context.Context, auctionID string, cfg Config, deps Deps) (*Actor, error) {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 64
	}
	a := &Actor{
		id:    auctionID,
		cfg:   cfg,
		deps:  deps,
		inbox: make(chan *request, cfg.MailboxSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	st, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	a.state = st
	a.publishSnapshot()

	go a.run(ctx)
	return a, nil
}

// ID returns the auction the actor owns
func (a *Actor) ID() string {
	return a.id
}

// Done is closed once the actor goroutine has exited
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Halted reports whether the actor stopped on an invariant violation
func (a *Actor) Halted() bool {
	return a.halted.Load()
}

// Stop terminates the actor; queued requests fail with ErrActorStopped
func (a *Actor) Stop() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}

// Snapshot returns the last committed state without going through the inbox
func (a *Actor) Snapshot() models.AuctionView {
	return *a.snapshot.Load()
}

// PlaceBid submits a manual bid. Business rejections come back as a result
// with Accepted false and a nil error.
func (a *Actor) PlaceBid(ctx context.Context, bidderID string, amount decimal.Decimal) (models.BidResult, error) {
	v, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return a.placeBid(ctx, bidderID, amount)
	})
	if reason, ok := biddingerrors.ReasonOf(err); ok {
		view := a.Snapshot()
		return models.BidResult{CurrentPrice: view.CurrentPrice, LeaderID: view.HighestBidderID, Reason: string(reason)}, nil
	}
	if err != nil {
		return models.BidResult{}, err
	}
	return v.(models.BidResult), nil
}

// RegisterProxy creates or updates the bidder's proxy agent
func (a *Actor) RegisterProxy(ctx context.Context, bidderID string, maxAmount decimal.Decimal) (models.ProxyResult, error) {
	v, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return a.registerProxy(ctx, bidderID, maxAmount)
	})
	if reason, ok := biddingerrors.ReasonOf(err); ok {
		view := a.Snapshot()
		return models.ProxyResult{CurrentPrice: view.CurrentPrice, LeaderID: view.HighestBidderID, Reason: string(reason)}, nil
	}
	if err != nil {
		return models.ProxyResult{}, err
	}
	return v.(models.ProxyResult), nil
}

// Advance applies a scheduled lifecycle phase. Phases that were already
// applied are no-ops; phases that are early return ErrNotDue.
func (a *Actor) Advance(ctx context.Context, phase models.Phase) error {
	_, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return nil, a.advance(ctx, phase)
	})
	return err
}

// Close closes the auction once its end time has passed
func (a *Actor) Close(ctx context.Context) error {
	return a.Advance(ctx, models.PhaseClose)
}

// Cancel withdraws a scheduled auction that has no bids
func (a *Actor) Cancel(ctx context.Context, sellerID string) error {
	_, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return nil, a.cancel(ctx, sellerID)
	})
	return err
}

// Reconcile reloads the actor's state from the store and leaves degraded mode
func (a *Actor) Reconcile(ctx context.Context) error {
	_, err := a.do(ctx, func(ctx context.Context) (any, error) {
		return nil, a.reconcile(ctx)
	})
	return err
}

// do enqueues fn and waits for its outcome. The caller may give up until the
// actor dequeues the request; from then on the request runs to completion.
func (a *Actor) do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("auction %s: %w: %v", a.id, biddingerrors.ErrCancelled, err)
	}
	req := &request{ctx: ctx, fn: fn, reply: make(chan response, 1)}

	select {
	case a.inbox <- req:
	case <-ctx.Done():
		return nil, fmt.Errorf("auction %s: %w: %v", a.id, biddingerrors.ErrCancelled, ctx.Err())
	case <-a.done:
		return nil, fmt.Errorf("auction %s: %w", a.id, biddingerrors.ErrActorStopped)
	}

	select {
	case resp := <-req.reply:
		return resp.value, resp.err
	case <-ctx.Done():
		if req.claim.CompareAndSwap(pending, abandoned) {
			return nil, fmt.Errorf("auction %s: %w: %v", a.id, biddingerrors.ErrCancelled, ctx.Err())
		}
		resp := <-req.reply
		return resp.value, resp.err
	case <-a.done:
		select {
		case resp := <-req.reply:
			return resp.value, resp.err
		default:
			return nil, fmt.Errorf("auction %s: %w", a.id, biddingerrors.ErrActorStopped)
		}
	}
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case req := <-a.inbox:
			if !req.claim.CompareAndSwap(pending, claimed) {
				continue
			}
			value, err := req.fn(context.WithoutCancel(req.ctx))
			req.reply <- response{value: value, err: err}

			if errors.Is(err, biddingerrors.ErrInvariantViolation) {
				a.halted.Store(true)
				utils.Error("auction actor halted", map[string]any{
					"auction_id": a.id,
					"error":      err.Error(),
				})
				return
			}
		}
	}
}

// load reads the committed state of the auction
func (a *Actor) load(ctx context.Context) (state, error) {
	auction, err := a.deps.Store.GetAuction(ctx, a.id)
	if err != nil {
		return state{}, fmt.Errorf("actor: load auction %s: %w", a.id, err)
	}
	bids, err := a.deps.Store.GetBids(ctx, a.id)
	if err != nil {
		return state{}, fmt.Errorf("actor: load bids for auction %s: %w", a.id, err)
	}
	agents, err := a.deps.Store.GetProxyAgents(ctx, a.id)
	if err != nil {
		return state{}, fmt.Errorf("actor: load proxy agents for auction %s: %w", a.id, err)
	}

	st := state{auction: auction, agents: agents, leader: leadingBid(bids)}
	if st.leader != nil && (st.leader.BidderID != auction.HighestBidderID || !st.leader.Amount.Equal(auction.CurrentPrice)) {
		return state{}, fmt.Errorf("actor: auction %s leads with %s at %s but its leading bid is %s at %s: %w",
			a.id, auction.HighestBidderID, auction.CurrentPrice, st.leader.BidderID, st.leader.Amount, biddingerrors.ErrInvariantViolation)
	}
	return st, nil
}

func (a *Actor) reconcile(ctx context.Context) error {
	st, err := a.load(ctx)
	if err != nil {
		return err
	}
	a.state = st
	if a.degraded {
		utils.Info("auction actor reconciled with store", map[string]any{"auction_id": a.id, "version": st.auction.Version})
	}
	a.degraded = false
	a.publishSnapshot()
	return nil
}

func (a *Actor) publishSnapshot() {
	view := models.NewAuctionView(a.state.auction, a.degraded, a.deps.Clock.Now())
	a.snapshot.Store(&view)
}

// leadingBid returns the single bid that has not been superseded
func leadingBid(bids []models.Bid) *models.Bid {
	var lead *models.Bid
	for i := range bids {
		if bids[i].SupersededAt != nil {
			continue
		}
		if lead == nil || bids[i].Outranks(*lead) {
			b := bids[i]
			lead = &b
		}
	}
	return lead
}
