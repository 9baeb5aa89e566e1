package helpers

import (
	"time"

	model "auction-engine/internal/models"
)

// Request/Response DTOs. Money travels as decimal strings.
type CreateAuctionRequest struct {
	SellerID        string     `json:"seller_id" binding:"required"`
	StartingPrice   string     `json:"starting_price" binding:"required"`
	MinIncrement    string     `json:"min_increment" binding:"required"`
	IncrementPolicy string     `json:"increment_policy" binding:"omitempty,oneof=fixed percentage"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         time.Time  `json:"end_time" binding:"required"`
}

type PlaceBidRequest struct {
	BidderID string `json:"bidder_id" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

type ProxyBidRequest struct {
	BidderID  string `json:"bidder_id" binding:"required"`
	MaxAmount string `json:"max_amount" binding:"required"`
}

type CancelAuctionRequest struct {
	SellerID string `json:"seller_id" binding:"required"`
}

type WatchRequest struct {
	UserID              string  `json:"user_id" binding:"required"`
	PriceAlertThreshold *string `json:"price_alert_threshold"`
	NotifyOnOutbid      bool    `json:"notify_on_outbid"`
	NotifyOnEndingSoon  bool    `json:"notify_on_ending_soon"`
}

type BidResponse struct {
	BidID        string `json:"bid_id"`
	AuctionID    string `json:"auction_id"`
	BidderID     string `json:"bidder_id"`
	Amount       string `json:"amount"`
	Kind         string `json:"kind"`
	PlacedAt     string `json:"placed_at"`
	SupersededAt string `json:"superseded_at,omitempty"`
}

type BidResultResponse struct {
	Accepted     bool         `json:"accepted"`
	CurrentPrice string       `json:"current_price"`
	LeaderID     string       `json:"leader_id,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Bid          *BidResponse `json:"bid,omitempty"`
}

type AuctionResponse struct {
	AuctionID       string `json:"auction_id"`
	SellerID        string `json:"seller_id"`
	Status          string `json:"status"`
	StartingPrice   string `json:"starting_price"`
	MinIncrement    string `json:"min_increment"`
	IncrementPolicy string `json:"increment_policy"`
	CurrentPrice    string `json:"current_price"`
	MinimumBid      string `json:"minimum_bid"`
	HighestBidderID string `json:"highest_bidder_id,omitempty"`
	BidCount        int    `json:"bid_count"`
	Extensions      int    `json:"extensions"`
	Version         int64  `json:"version"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Degraded        bool   `json:"degraded"`
	AsOf            string `json:"as_of"`
}

// ToBidResponse converts a bid record to its wire form
func ToBidResponse(b model.Bid) BidResponse {
	resp := BidResponse{
		BidID:     b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount.StringFixed(2),
		Kind:      string(b.Kind),
		PlacedAt:  b.PlacedAt.UTC().Format(time.RFC3339),
	}
	if b.SupersededAt != nil {
		resp.SupersededAt = b.SupersededAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ToBidResultResponse converts a PlaceBid outcome to its wire form
func ToBidResultResponse(r model.BidResult) BidResultResponse {
	resp := BidResultResponse{
		Accepted:     r.Accepted,
		CurrentPrice: r.CurrentPrice.StringFixed(2),
		LeaderID:     r.LeaderID,
		Reason:       r.Reason,
	}
	if r.Bid != nil {
		bid := ToBidResponse(*r.Bid)
		resp.Bid = &bid
	}
	return resp
}

// ToProxyResultResponse converts a RegisterProxyBid outcome to its wire form
func ToProxyResultResponse(r model.ProxyResult) BidResultResponse {
	return BidResultResponse{
		Accepted:     r.Accepted,
		CurrentPrice: r.CurrentPrice.StringFixed(2),
		LeaderID:     r.LeaderID,
		Reason:       r.Reason,
	}
}

// ToAuctionResponse converts a snapshot to its wire form
func ToAuctionResponse(v model.AuctionView) AuctionResponse {
	return AuctionResponse{
		AuctionID:       v.ID,
		SellerID:        v.SellerID,
		Status:          string(v.Status),
		StartingPrice:   v.StartingPrice.StringFixed(2),
		MinIncrement:    v.MinIncrement.String(),
		IncrementPolicy: string(v.IncrementPolicy),
		CurrentPrice:    v.CurrentPrice.StringFixed(2),
		MinimumBid:      v.MinimumBid.StringFixed(2),
		HighestBidderID: v.HighestBidderID,
		BidCount:        v.BidCount,
		Extensions:      v.Extensions,
		Version:         v.Version,
		StartTime:       v.StartTime.UTC().Format(time.RFC3339),
		EndTime:         v.EndTime.UTC().Format(time.RFC3339),
		Degraded:        v.Degraded,
		AsOf:            v.AsOf.UTC().Format(time.RFC3339),
	}
}
