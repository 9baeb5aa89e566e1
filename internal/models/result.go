package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidResult is the outcome of a PlaceBid request
type BidResult struct {
	Accepted     bool            `json:"accepted"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	LeaderID     string          `json:"leader_id,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Bid          *Bid            `json:"bid,omitempty"`
}

// ProxyResult is the outcome of a RegisterProxyBid request
type ProxyResult struct {
	Accepted     bool            `json:"accepted"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	LeaderID     string          `json:"leader_id,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// AuctionView is the read-only snapshot served to query paths
type AuctionView struct {
	Auction
	MinimumBid decimal.Decimal `json:"minimum_bid"`
	Degraded   bool            `json:"degraded"`
	AsOf       time.Time       `json:"as_of"`
}

// NewAuctionView builds the view of a committed auction state
func NewAuctionView(a Auction, degraded bool, asOf time.Time) AuctionView {
	return AuctionView{Auction: a, MinimumBid: a.MinimumBid(), Degraded: degraded, AsOf: asOf}
}
