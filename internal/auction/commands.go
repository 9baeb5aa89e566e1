package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/proxy"
	"auction-engine/internal/repository"
	"auction-engine/internal/validator"
	"auction-engine/utils"
)

// plan is the outcome of running a command against the cached state.
// A nil commit means there is nothing to write.
type plan struct {
	next   state
	commit *repository.Commit
	events []models.Event
	value  any
}

// mutation computes a plan from the current state. It must not touch the actor.
type mutation func(st state, now time.Time) (plan, error)

func (a *Actor) placeBid(ctx context.Context, bidderID string, amount decimal.Decimal) (models.BidResult, error) {
	p, err := a.execute(ctx, func(st state, now time.Time) (plan, error) {
		auction, events := catchUp(st.auction, now, a.cfg.EndingSoonWindow)

		decision := validator.Validate(auction, validator.Proposal{BidderID: bidderID, Amount: amount, PlacedAt: now}, st.agents, validator.Options{
			RejectRedundant: a.cfg.RejectRedundantBids,
		})
		if !decision.Accepted {
			return plan{}, decision.Err()
		}

		challenger := models.Bid{
			ID:        a.deps.NewID(),
			AuctionID: a.id,
			BidderID:  bidderID,
			Amount:    amount,
			PlacedAt:  now,
			Kind:      models.BidManual,
		}
		res, err := proxy.Resolve(proxy.Input{
			Auction:    auction,
			Leader:     st.leader,
			Challenger: &challenger,
			Agents:     st.agents,
			Now:        now,
			NewID:      a.deps.NewID,
		})
		if err != nil {
			return plan{}, fmt.Errorf("actor: resolve bid on auction %s: %w", a.id, err)
		}

		p := a.applyResolution(st, auction, res, nil, now)
		p.events = append(events, p.events...)
		recorded := res.Bids[0]
		p.value = models.BidResult{
			Accepted:     true,
			CurrentPrice: res.Price,
			LeaderID:     res.LeaderID,
			Bid:          &recorded,
		}
		return p, nil
	})
	if err != nil {
		return models.BidResult{}, err
	}
	return p.value.(models.BidResult), nil
}

func (a *Actor) registerProxy(ctx context.Context, bidderID string, maxAmount decimal.Decimal) (models.ProxyResult, error) {
	p, err := a.execute(ctx, func(st state, now time.Time) (plan, error) {
		auction, events := catchUp(st.auction, now, a.cfg.EndingSoonWindow)

		decision := validator.ValidateProxy(auction, bidderID, maxAmount, now)
		if !decision.Accepted {
			return plan{}, decision.Err()
		}

		agent := models.ProxyAgent{
			AuctionID:    a.id,
			BidderID:     bidderID,
			MaxAmount:    maxAmount,
			Active:       true,
			RegisteredAt: now,
		}
		agents := make([]models.ProxyAgent, 0, len(st.agents)+1)
		for _, existing := range st.agents {
			if existing.BidderID != bidderID {
				agents = append(agents, existing)
				continue
			}
			// an unchanged cap keeps its place in the tie-break order
			if existing.Active && existing.MaxAmount.Equal(maxAmount) {
				agent.RegisteredAt = existing.RegisteredAt
			}
		}
		agents = append(agents, agent)

		res, err := proxy.Resolve(proxy.Input{
			Auction:    auction,
			Leader:     st.leader,
			Agents:     agents,
			Registrant: bidderID,
			Now:        now,
			NewID:      a.deps.NewID,
		})
		if err != nil {
			return plan{}, fmt.Errorf("actor: resolve proxy on auction %s: %w", a.id, err)
		}

		st.agents = agents
		p := a.applyResolution(st, auction, res, &agent, now)
		p.events = append(events, p.events...)
		p.value = models.ProxyResult{
			Accepted:     true,
			CurrentPrice: res.Price,
			LeaderID:     res.LeaderID,
		}
		return p, nil
	})
	if err != nil {
		return models.ProxyResult{}, err
	}
	return p.value.(models.ProxyResult), nil
}

// applyResolution turns a resolver outcome into the next state and its commit
func (a *Actor) applyResolution(st state, auction models.Auction, res proxy.Resolution, registered *models.ProxyAgent, now time.Time) plan {
	next := auction
	next.CurrentPrice = res.Price
	next.HighestBidderID = res.LeaderID
	next.BidCount += len(res.Bids)
	next.Version = st.auction.Version + 1

	var events []models.Event
	events = append(events, res.Events...)

	if len(res.Bids) > 0 {
		if ext, ok := a.extendForBid(next, now); ok {
			next = ext
			events = append(events, models.Rescheduled(next.ID, next.EndTime))
		}
	}

	exhausted := make(map[string]struct{}, len(res.Exhausted))
	for _, id := range res.Exhausted {
		exhausted[id] = struct{}{}
	}
	agents := make([]models.ProxyAgent, 0, len(st.agents))
	var touched []models.ProxyAgent
	for _, ag := range st.agents {
		_, hit := exhausted[ag.BidderID]
		if hit && ag.Active {
			ag.Active = false
			touched = append(touched, ag)
		} else if registered != nil && ag.BidderID == registered.BidderID {
			touched = append(touched, ag)
		}
		agents = append(agents, ag)
	}

	leader := st.leader
	if res.Leading != nil {
		l := *res.Leading
		leader = &l
	}

	return plan{
		next: state{auction: next, leader: leader, agents: agents},
		commit: &repository.Commit{
			Auction:         next,
			ExpectedVersion: st.auction.Version,
			NewBids:         res.Bids,
			Superseded:      res.Superseded,
			SupersededAt:    now,
			Agents:          touched,
		},
		events: events,
	}
}

// extendForBid pushes the end time out when a bid lands inside the grace window
func (a *Actor) extendForBid(auction models.Auction, now time.Time) (models.Auction, bool) {
	if a.cfg.AntiSnipeGrace <= 0 || auction.Extensions >= a.cfg.MaxAntiSnipeExtensions {
		return auction, false
	}
	if auction.EndTime.Sub(now) > a.cfg.AntiSnipeGrace {
		return auction, false
	}
	auction.EndTime = now.Add(a.cfg.AntiSnipeGrace)
	auction.Extensions++
	return auction, true
}

func (a *Actor) advance(ctx context.Context, phase models.Phase) error {
	_, err := a.execute(ctx, func(st state, now time.Time) (plan, error) {
		cur := st.auction
		if cur.Status.IsTerminal() {
			return plan{next: st}, nil
		}

		if phase == models.PhaseClose || !now.Before(cur.EndTime) {
			if now.Before(cur.EndTime) {
				return plan{}, fmt.Errorf("actor: close auction %s before %s: %w", a.id, cur.EndTime.Format(time.RFC3339), biddingerrors.ErrNotDue)
			}
			return a.closePlan(st), nil
		}

		next, events := catchUp(cur, now, a.cfg.EndingSoonWindow)
		if !next.Status.Reached(phase.Target()) {
			return plan{}, fmt.Errorf("actor: %s on auction %s: %w", phase, a.id, biddingerrors.ErrNotDue)
		}
		if len(events) == 0 {
			return plan{next: st}, nil
		}
		next.Version = cur.Version + 1
		return plan{
			next:   state{auction: next, leader: st.leader, agents: st.agents},
			commit: &repository.Commit{Auction: next, ExpectedVersion: cur.Version},
			events: events,
		}, nil
	})
	return err
}

// closePlan closes the auction and retires every proxy agent
func (a *Actor) closePlan(st state) plan {
	next := st.auction
	next.Status = models.StatusClosed
	next.Version = st.auction.Version + 1
	agents, retired := deactivateAll(st.agents)
	return plan{
		next:   state{auction: next, leader: st.leader, agents: agents},
		commit: &repository.Commit{Auction: next, ExpectedVersion: st.auction.Version, Agents: retired},
		events: []models.Event{models.Closed(next.ID, next.HighestBidderID, next.CurrentPrice)},
	}
}

func (a *Actor) cancel(ctx context.Context, sellerID string) error {
	_, err := a.execute(ctx, func(st state, now time.Time) (plan, error) {
		cur := st.auction
		if cur.Status == models.StatusCancelled {
			return plan{next: st}, nil
		}
		if sellerID != cur.SellerID {
			return plan{}, biddingerrors.Reject(biddingerrors.ReasonNotCancellable, "only the seller may cancel an auction")
		}
		if !cur.Status.CanTransitionTo(models.StatusCancelled) || cur.BidCount > 0 {
			return plan{}, biddingerrors.Reject(biddingerrors.ReasonNotCancellable, fmt.Sprintf("auction is %s with %d bids", cur.Status, cur.BidCount))
		}

		next := cur
		next.Status = models.StatusCancelled
		next.Version = cur.Version + 1
		agents, retired := deactivateAll(st.agents)
		return plan{
			next:   state{auction: next, leader: st.leader, agents: agents},
			commit: &repository.Commit{Auction: next, ExpectedVersion: cur.Version, Agents: retired},
			events: []models.Event{models.Cancelled(next.ID)},
		}, nil
	})
	return err
}

// execute runs a mutation and commits its plan. A version conflict reloads
// the state and re-runs the mutation; a store failure puts the actor into
// degraded mode until it reconciles.
func (a *Actor) execute(ctx context.Context, mutate mutation) (plan, error) {
	if a.degraded {
		if err := a.reconcile(ctx); err != nil {
			utils.Warn("auction actor still degraded", map[string]any{"auction_id": a.id, "error": err.Error()})
			return plan{}, biddingerrors.Reject(biddingerrors.ReasonEngineUnavailable, "auction store unavailable")
		}
	}

	for attempt := 0; ; attempt++ {
		p, err := mutate(a.state, a.deps.Clock.Now())
		if err != nil {
			return plan{}, err
		}
		if p.commit == nil {
			return p, nil
		}
		if err := checkInvariants(a.state.auction, p, a.cfg.MaxAntiSnipeExtensions); err != nil {
			return plan{}, err
		}

		err = a.persist(ctx, *p.commit)
		switch {
		case err == nil:
			a.applyCommitted(p)
			return p, nil
		case errors.Is(err, biddingerrors.ErrVersionConflict):
			if attempt >= a.cfg.MaxContentionRetries {
				utils.Warn("auction actor gave up after version conflicts", map[string]any{"auction_id": a.id, "attempts": attempt + 1})
				return plan{}, biddingerrors.Reject(biddingerrors.ReasonRetryExhausted, "auction is under contention, retry later")
			}
			if err := a.reconcile(ctx); err != nil {
				a.degrade(err)
				return plan{}, biddingerrors.Reject(biddingerrors.ReasonEngineUnavailable, "auction store unavailable")
			}
		default:
			a.degrade(err)
			return plan{}, biddingerrors.Reject(biddingerrors.ReasonEngineUnavailable, "auction store unavailable")
		}
	}
}

// persist writes a commit, backing off exponentially on store failures.
// A failed attempt may still have landed, so a version conflict that follows
// one is checked against the store before it is reported.
func (a *Actor) persist(ctx context.Context, commit repository.Commit) error {
	backoff := a.cfg.PersistBackoff
	uncertain := false
	for attempt := 0; ; attempt++ {
		err := a.deps.Store.CommitAuction(ctx, commit)
		if uncertain && errors.Is(err, biddingerrors.ErrVersionConflict) {
			landed, lerr := a.landed(ctx, commit)
			if lerr != nil {
				return lerr
			}
			if landed {
				utils.Info("auction commit had landed before the store failed", map[string]any{
					"auction_id": a.id,
					"version":    commit.Auction.Version,
				})
				return nil
			}
			return err
		}
		if err == nil || errors.Is(err, biddingerrors.ErrVersionConflict) || errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return err
		}
		uncertain = true
		if attempt >= a.cfg.PersistRetries {
			return err
		}

		utils.Warn("auction commit failed, backing off", map[string]any{
			"auction_id": a.id,
			"attempt":    attempt + 1,
			"backoff":    backoff.String(),
			"error":      err.Error(),
		})
		timer := a.deps.Clock.NewTimer(backoff)
		select {
		case <-timer.C():
		case <-a.stop:
			timer.Stop()
			return fmt.Errorf("actor: commit auction %s: %w", a.id, biddingerrors.ErrActorStopped)
		}
		backoff *= 2
		if a.cfg.PersistMaxBackoff > 0 && backoff > a.cfg.PersistMaxBackoff {
			backoff = a.cfg.PersistMaxBackoff
		}
	}
}

// landed reports whether the store already holds commit: the stored version
// is the one the commit wrote and every bid it recorded is present
func (a *Actor) landed(ctx context.Context, commit repository.Commit) (bool, error) {
	stored, err := a.deps.Store.GetAuction(ctx, a.id)
	if err != nil {
		return false, fmt.Errorf("actor: verify commit on auction %s: %w", a.id, err)
	}
	if stored.Version != commit.Auction.Version {
		return false, nil
	}
	if len(commit.NewBids) == 0 {
		return stored.Status == commit.Auction.Status, nil
	}

	bids, err := a.deps.Store.GetBids(ctx, a.id)
	if err != nil {
		return false, fmt.Errorf("actor: verify commit bids on auction %s: %w", a.id, err)
	}
	present := make(map[string]struct{}, len(bids))
	for _, b := range bids {
		present[b.ID] = struct{}{}
	}
	for _, b := range commit.NewBids {
		if _, ok := present[b.ID]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (a *Actor) degrade(err error) {
	if !a.degraded {
		utils.Error("auction actor degraded", map[string]any{"auction_id": a.id, "error": err.Error()})
	}
	a.degraded = true
	a.publishSnapshot()
}

// applyCommitted installs a committed plan and notifies the outside world
func (a *Actor) applyCommitted(p plan) {
	prev := a.state.auction
	a.state = p.next
	a.publishSnapshot()

	next := p.next.auction
	if !next.EndTime.Equal(prev.EndTime) {
		a.deps.Scheduler.Reschedule(next.ID, next.EndTime)
	}
	if next.Status.IsTerminal() {
		a.deps.Scheduler.Remove(next.ID)
	}

	if len(p.events) == 0 {
		return
	}
	now := a.deps.Clock.Now()
	for i := range p.events {
		p.events[i].Version = next.Version
		p.events[i].OccurredAt = now
	}
	a.deps.Publisher.Publish(p.events...)
}

// checkInvariants guards every commit; a failure halts the actor
func checkInvariants(prev models.Auction, p plan, maxExtensions int) error {
	next := p.next.auction
	violation := func(format string, args ...any) error {
		return fmt.Errorf("actor: auction %s: %s: %w", prev.ID, fmt.Sprintf(format, args...), biddingerrors.ErrInvariantViolation)
	}
	switch {
	case next.Version != prev.Version+1:
		return violation("version %d does not follow %d", next.Version, prev.Version)
	case next.CurrentPrice.LessThan(prev.CurrentPrice):
		return violation("price fell from %s to %s", prev.CurrentPrice, next.CurrentPrice)
	case len(p.commit.NewBids) > 0 && !next.CurrentPrice.GreaterThan(prev.CurrentPrice):
		return violation("accepted bids left the price at %s", next.CurrentPrice)
	case next.CurrentPrice.LessThan(next.StartingPrice):
		return violation("price %s below starting price %s", next.CurrentPrice, next.StartingPrice)
	case next.Status != prev.Status && !prev.Status.CanTransitionTo(next.Status):
		return violation("status cannot move from %s to %s", prev.Status, next.Status)
	case next.Extensions > maxExtensions:
		return violation("%d extensions exceed the limit of %d", next.Extensions, maxExtensions)
	case next.EndTime.Before(prev.EndTime):
		return violation("end time moved backwards")
	}
	return nil
}

// catchUp applies the lifecycle steps that are due at now, short of closing.
// Commands run it first so bids never depend on the scheduler being punctual.
func catchUp(a models.Auction, now time.Time, window time.Duration) (models.Auction, []models.Event) {
	var events []models.Event
	if !now.Before(a.EndTime) {
		return a, nil
	}
	if a.Status == models.StatusScheduled && !now.Before(a.StartTime) {
		a.Status = models.StatusActive
		events = append(events, models.Started(a.ID, a.EndTime))
	}
	if a.Status == models.StatusActive && !now.Before(a.EndTime.Add(-window)) {
		a.Status = models.StatusEndingSoon
		events = append(events, models.EndingSoon(a.ID, a.EndTime))
	}
	return a, events
}

func deactivateAll(agents []models.ProxyAgent) ([]models.ProxyAgent, []models.ProxyAgent) {
	out := make([]models.ProxyAgent, 0, len(agents))
	var retired []models.ProxyAgent
	for _, ag := range agents {
		if ag.Active {
			ag.Active = false
			retired = append(retired, ag)
		}
		out = append(out, ag)
	}
	return out, retired
}
