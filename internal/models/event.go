package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names the kinds of events the engine publishes
type EventType string

const (
	EventPriceChanged   EventType = "price_changed"
	EventOutbid         EventType = "outbid"
	EventEndingSoon     EventType = "ending_soon"
	EventClosed         EventType = "closed"
	EventRescheduled    EventType = "rescheduled"
	EventAlertTriggered EventType = "alert_triggered"
	EventStarted        EventType = "started"
	EventCancelled      EventType = "cancelled"
)

// Event is the envelope delivered to subscribers. Only the fields that
// belong to Type are populated.
type Event struct {
	Type       EventType        `json:"type"`
	AuctionID  string           `json:"auction_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Version    int64            `json:"version"`
	NewPrice   *decimal.Decimal `json:"new_price,omitempty"`
	LeaderID   string           `json:"leader_id,omitempty"`
	Displaced  string           `json:"displaced_bidder_id,omitempty"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	WinnerID   string           `json:"winner_id,omitempty"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
	UserID     string           `json:"user_id,omitempty"`
	Threshold  *decimal.Decimal `json:"threshold,omitempty"`
}

func PriceChanged(auctionID string, price decimal.Decimal, leaderID string) Event {
	return Event{Type: EventPriceChanged, AuctionID: auctionID, NewPrice: &price, LeaderID: leaderID}
}

func Outbid(auctionID, displacedBidderID string) Event {
	return Event{Type: EventOutbid, AuctionID: auctionID, Displaced: displacedBidderID}
}

func EndingSoon(auctionID string, endTime time.Time) Event {
	return Event{Type: EventEndingSoon, AuctionID: auctionID, EndTime: &endTime}
}

// Closed carries the winner, or an empty WinnerID when nobody bid
func Closed(auctionID, winnerID string, finalPrice decimal.Decimal) Event {
	return Event{Type: EventClosed, AuctionID: auctionID, WinnerID: winnerID, FinalPrice: &finalPrice}
}

func Rescheduled(auctionID string, endTime time.Time) Event {
	return Event{Type: EventRescheduled, AuctionID: auctionID, EndTime: &endTime}
}

func AlertTriggered(userID, auctionID string, threshold, price decimal.Decimal) Event {
	return Event{Type: EventAlertTriggered, AuctionID: auctionID, UserID: userID, Threshold: &threshold, NewPrice: &price}
}

func Started(auctionID string, endTime time.Time) Event {
	return Event{Type: EventStarted, AuctionID: auctionID, EndTime: &endTime}
}

func Cancelled(auctionID string) Event {
	return Event{Type: EventCancelled, AuctionID: auctionID}
}
