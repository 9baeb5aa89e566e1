package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusScheduled  AuctionStatus = "scheduled"
	StatusActive     AuctionStatus = "active"
	StatusEndingSoon AuctionStatus = "ending_soon"
	StatusClosed     AuctionStatus = "closed"
	StatusSettled    AuctionStatus = "settled"
	StatusCancelled  AuctionStatus = "cancelled"
)

var statusRank = map[AuctionStatus]int{
	StatusScheduled:  0,
	StatusActive:     1,
	StatusEndingSoon: 2,
	StatusClosed:     3,
	StatusSettled:    4,
	StatusCancelled:  5,
}

// Valid reports whether s is a known status
func (s AuctionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsOpen reports whether the auction accepts bids in this status
func (s AuctionStatus) IsOpen() bool {
	return s == StatusActive || s == StatusEndingSoon
}

// IsTerminal reports whether the engine will never move the auction again.
// Closed is terminal for the engine; settlement is driven externally.
func (s AuctionStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusSettled || s == StatusCancelled
}

// CanTransitionTo enforces monotonic lifecycle transitions.
// Cancelled is only reachable from Scheduled.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	if next == StatusCancelled {
		return s == StatusScheduled
	}
	if s == StatusCancelled {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// Reached reports whether s is at or past target in the lifecycle
func (s AuctionStatus) Reached(target AuctionStatus) bool {
	return statusRank[s] >= statusRank[target]
}

// IncrementPolicy decides how the minimum raise is derived from MinIncrement
type IncrementPolicy string

const (
	IncrementFixed      IncrementPolicy = "fixed"
	IncrementPercentage IncrementPolicy = "percentage"
)

// BidKind tells manual bids apart from bids issued by a proxy agent
type BidKind string

const (
	BidManual BidKind = "manual"
	BidProxy  BidKind = "proxy"
)

// Auction is the authoritative record of a single time-bounded auction
type Auction struct {
	ID              string          `json:"auction_id"`
	SellerID        string          `json:"seller_id"`
	StartingPrice   decimal.Decimal `json:"starting_price"`
	MinIncrement    decimal.Decimal `json:"min_increment"`
	IncrementPolicy IncrementPolicy `json:"increment_policy"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	Status          AuctionStatus   `json:"status"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HighestBidderID string          `json:"highest_bidder_id,omitempty"`
	BidCount        int             `json:"bid_count"`
	Extensions      int             `json:"extensions"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
}

var (
	hundred  = decimal.NewFromInt(100)
	minTick  = decimal.New(1, -2)
	centsExp = int32(2)
)

// IncrementAt returns the minimum raise over price under the auction's policy.
// Percentage increments are rounded up to the cent and never drop below one cent.
func (a Auction) IncrementAt(price decimal.Decimal) decimal.Decimal {
	if a.IncrementPolicy != IncrementPercentage {
		return a.MinIncrement
	}
	inc := price.Mul(a.MinIncrement).Div(hundred).RoundCeil(centsExp)
	if inc.LessThan(minTick) {
		return minTick
	}
	return inc
}

// MinimumBid is the lowest amount the next bid may carry
func (a Auction) MinimumBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.IncrementAt(a.CurrentPrice))
}

// Bid is an immutable bid record; only SupersededAt is ever set after creation
type Bid struct {
	ID           string          `json:"bid_id"`
	AuctionID    string          `json:"auction_id"`
	BidderID     string          `json:"bidder_id"`
	Amount       decimal.Decimal `json:"amount"`
	PlacedAt     time.Time       `json:"placed_at"`
	Kind         BidKind         `json:"kind"`
	SupersededAt *time.Time      `json:"superseded_at,omitempty"`
}

// Outranks reports whether b beats other in the bid total order:
// higher amount first, ties broken by the earlier placement.
func (b Bid) Outranks(other Bid) bool {
	if c := b.Amount.Cmp(other.Amount); c != 0 {
		return c > 0
	}
	return b.PlacedAt.Before(other.PlacedAt)
}

// ProxyAgent bids automatically for a bidder up to MaxAmount
type ProxyAgent struct {
	AuctionID    string          `json:"auction_id"`
	BidderID     string          `json:"bidder_id"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	Active       bool            `json:"active"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// WatchEntry is a user's interest in an auction
type WatchEntry struct {
	UserID              string           `json:"user_id"`
	AuctionID           string           `json:"auction_id"`
	PriceAlertThreshold *decimal.Decimal `json:"price_alert_threshold,omitempty"`
	NotifyOnOutbid      bool             `json:"notify_on_outbid"`
	NotifyOnEndingSoon  bool             `json:"notify_on_ending_soon"`
	AlertFired          bool             `json:"alert_fired"`
}

// Phase is a scheduled lifecycle step of an auction
type Phase string

const (
	PhaseStart      Phase = "start"
	PhaseEndingSoon Phase = "ending_soon"
	PhaseClose      Phase = "close"
)

// Target is the status an auction holds once the phase has been applied
func (p Phase) Target() AuctionStatus {
	switch p {
	case PhaseStart:
		return StatusActive
	case PhaseEndingSoon:
		return StatusEndingSoon
	default:
		return StatusClosed
	}
}
