// Package proxy resolves automatic bidding with second-price (English auction)
// semantics: the strongest contender leads and pays just enough to beat the
// runner-up.
package proxy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
)

// Input is everything the resolver needs; it never reads shared state
type Input struct {
	Auction    models.Auction
	Leader     *models.Bid
	Challenger *models.Bid
	Agents     []models.ProxyAgent
	// Registrant is the bidder whose agent was just registered, if any
	Registrant string
	Now        time.Time
	NewID      func() string
}

// Resolution is the outcome of one resolution pass
type Resolution struct {
	Price      decimal.Decimal
	LeaderID   string
	Leading    *models.Bid
	Bids       []models.Bid
	Superseded []string
	Exhausted  []string
	Events     []models.Event
	Rounds     int
}

// Changed reports whether the pass produced anything to persist
func (r Resolution) Changed() bool {
	return len(r.Bids) > 0 || len(r.Exhausted) > 0
}

type contender struct {
	bidderID string
	cap      decimal.Decimal
	floor    decimal.Decimal
	since    time.Time
	agent    *models.ProxyAgent
}

// commit raises the contender's cap; equal caps keep the earlier commitment
func (c *contender) commit(amount decimal.Decimal, at time.Time) {
	switch amount.Cmp(c.cap) {
	case 1:
		c.cap = amount
		c.since = at
	case 0:
		if c.since.IsZero() || at.Before(c.since) {
			c.since = at
		}
	}
}

func stronger(a, b *contender) bool {
	if c := a.cap.Cmp(b.cap); c != 0 {
		return c > 0
	}
	return a.since.Before(b.since)
}

// Resolve computes the next leader and price. The escalation loop drops the
// weakest contender each round and lifts the price to what the survivors must
// pay to beat it, so it runs at most len(contenders)-1 rounds.
func Resolve(in Input) (Resolution, error) {
	a := in.Auction
	contenders, order := buildContenders(in)

	minimum := a.MinimumBid()
	var exhausted []string
	live := make([]*contender, 0, len(order))
	for _, id := range order {
		c := contenders[id]
		isLeader := in.Leader != nil && in.Leader.BidderID == id
		isChallenger := in.Challenger != nil && in.Challenger.BidderID == id
		if !isLeader && !isChallenger && c.cap.LessThan(minimum) {
			exhausted = append(exhausted, id)
			continue
		}
		live = append(live, c)
	}

	sort.SliceStable(live, func(i, j int) bool { return stronger(live[i], live[j]) })

	price := a.CurrentPrice
	rounds := 0
	maxRounds := len(live)
	for len(live) > 1 {
		rounds++
		if rounds > maxRounds {
			return Resolution{}, fmt.Errorf("proxy: escalation did not converge after %d rounds: %w", rounds, biddingerrors.ErrInvariantViolation)
		}
		weakest := live[len(live)-1]
		live = live[:len(live)-1]
		top := live[0]

		target := weakest.cap.Add(a.IncrementAt(weakest.cap))
		if target.GreaterThan(top.cap) {
			target = top.cap
		}
		if target.GreaterThan(price) {
			price = target
		}
		if weakest.agent != nil {
			exhausted = append(exhausted, weakest.bidderID)
		}
	}

	res := Resolution{Price: a.CurrentPrice, LeaderID: a.HighestBidderID, Leading: in.Leader, Rounds: rounds}
	if len(live) == 0 {
		res.Exhausted = exhausted
		return res, nil
	}

	winner := live[0]
	if winner.floor.GreaterThan(price) {
		price = winner.floor
	}
	leaderChanges := in.Leader == nil || in.Leader.BidderID != winner.bidderID
	if leaderChanges && price.LessThan(minimum) {
		price = minimum
	}
	if price.GreaterThan(winner.cap) {
		return Resolution{}, fmt.Errorf("proxy: price %s exceeds winner cap %s: %w", price, winner.cap, biddingerrors.ErrInvariantViolation)
	}
	if price.LessThan(a.CurrentPrice) || (in.Challenger != nil && !price.GreaterThan(a.CurrentPrice)) {
		return Resolution{}, fmt.Errorf("proxy: price would move from %s to %s: %w", a.CurrentPrice, price, biddingerrors.ErrInvariantViolation)
	}

	res.Price = price
	res.LeaderID = winner.bidderID
	res.Exhausted = exhausted
	res.Leading = in.Leader

	// at most the challenger plus one proxy bid; the capacity keeps pointers stable
	res.Bids = make([]models.Bid, 0, 2)
	var challenger *models.Bid
	if in.Challenger != nil {
		ch := *in.Challenger
		res.Bids = append(res.Bids, ch)
		challenger = &res.Bids[len(res.Bids)-1]
	}

	switch {
	case challenger != nil && challenger.BidderID == winner.bidderID && challenger.Amount.Equal(price):
		res.Leading = challenger
	case !leaderChanges && in.Leader.Amount.Equal(price):
		res.Leading = in.Leader
	default:
		if winner.agent == nil {
			return Resolution{}, fmt.Errorf("proxy: winner %s has no agent to bid %s: %w", winner.bidderID, price, biddingerrors.ErrInvariantViolation)
		}
		res.Bids = append(res.Bids, models.Bid{
			ID:        in.NewID(),
			AuctionID: a.ID,
			BidderID:  winner.bidderID,
			Amount:    price,
			PlacedAt:  winner.agent.RegisteredAt,
			Kind:      models.BidProxy,
		})
		res.Leading = &res.Bids[len(res.Bids)-1]
	}

	if challenger != nil && challenger != res.Leading {
		at := in.Now
		challenger.SupersededAt = &at
	}
	if in.Leader != nil && res.Leading != in.Leader {
		res.Superseded = append(res.Superseded, in.Leader.ID)
	}

	if in.Leader != nil && leaderChanges {
		res.Events = append(res.Events, models.Outbid(a.ID, in.Leader.BidderID))
	}
	if challenger != nil && challenger.BidderID != winner.bidderID && (in.Leader == nil || challenger.BidderID != in.Leader.BidderID) {
		res.Events = append(res.Events, models.Outbid(a.ID, challenger.BidderID))
	}
	if in.Registrant != "" && in.Registrant != winner.bidderID && (in.Leader == nil || in.Registrant != in.Leader.BidderID) {
		res.Events = append(res.Events, models.Outbid(a.ID, in.Registrant))
	}
	if leaderChanges || !price.Equal(a.CurrentPrice) {
		res.Events = append(res.Events, models.PriceChanged(a.ID, price, winner.bidderID))
	}

	return res, nil
}

func buildContenders(in Input) (map[string]*contender, []string) {
	contenders := make(map[string]*contender)
	var order []string
	get := func(bidderID string) *contender {
		c, ok := contenders[bidderID]
		if !ok {
			c = &contender{bidderID: bidderID}
			contenders[bidderID] = c
			order = append(order, bidderID)
		}
		return c
	}

	if in.Leader != nil {
		c := get(in.Leader.BidderID)
		c.commit(in.Leader.Amount, in.Leader.PlacedAt)
		c.floor = in.Leader.Amount
	}
	if in.Challenger != nil {
		c := get(in.Challenger.BidderID)
		c.commit(in.Challenger.Amount, in.Challenger.PlacedAt)
		if in.Challenger.Amount.GreaterThan(c.floor) {
			c.floor = in.Challenger.Amount
		}
	}
	for i := range in.Agents {
		agent := in.Agents[i]
		if !agent.Active {
			continue
		}
		c := get(agent.BidderID)
		c.commit(agent.MaxAmount, agent.RegisteredAt)
		c.agent = &agent
	}
	return contenders, order
}
