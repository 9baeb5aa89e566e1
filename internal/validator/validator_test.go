package validator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func activeAuction() models.Auction {
	return models.Auction{
		ID:              "a1",
		SellerID:        "seller",
		StartingPrice:   decimal.NewFromInt(1000),
		MinIncrement:    decimal.NewFromInt(50),
		IncrementPolicy: models.IncrementFixed,
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		Status:          models.StatusActive,
		CurrentPrice:    decimal.NewFromInt(1000),
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	leading := activeAuction()
	leading.CurrentPrice = decimal.NewFromInt(1050)
	leading.HighestBidderID = "x"
	leading.BidCount = 1

	scheduled := activeAuction()
	scheduled.Status = models.StatusScheduled

	endingSoon := activeAuction()
	endingSoon.Status = models.StatusEndingSoon

	xAgent := []models.ProxyAgent{{AuctionID: "a1", BidderID: "x", MaxAmount: decimal.NewFromInt(5000), Active: true}}

	tests := []struct {
		name       string
		auction    models.Auction
		proposal   Proposal
		agents     []models.ProxyAgent
		opts       Options
		wantReason biddingerrors.Reason
	}{
		{
			name:     "first_bid_at_minimum",
			auction:  activeAuction(),
			proposal: Proposal{BidderID: "x", Amount: decimal.NewFromInt(1050), PlacedAt: start.Add(time.Minute)},
		},
		{
			name:       "below_minimum",
			auction:    leading,
			proposal:   Proposal{BidderID: "y", Amount: decimal.NewFromInt(1040), PlacedAt: start.Add(time.Minute)},
			wantReason: biddingerrors.ReasonBelowMinimum,
		},
		{
			name:     "ending_soon_accepts",
			auction:  endingSoon,
			proposal: Proposal{BidderID: "y", Amount: decimal.NewFromInt(1100), PlacedAt: start.Add(59 * time.Minute)},
		},
		{
			name:       "not_started",
			auction:    scheduled,
			proposal:   Proposal{BidderID: "y", Amount: decimal.NewFromInt(2000), PlacedAt: start.Add(time.Minute)},
			wantReason: biddingerrors.ReasonNotOpen,
		},
		{
			name:       "before_start_time",
			auction:    activeAuction(),
			proposal:   Proposal{BidderID: "y", Amount: decimal.NewFromInt(2000), PlacedAt: start.Add(-time.Second)},
			wantReason: biddingerrors.ReasonNotOpen,
		},
		{
			name:       "at_end_time",
			auction:    activeAuction(),
			proposal:   Proposal{BidderID: "y", Amount: decimal.NewFromInt(2000), PlacedAt: start.Add(time.Hour)},
			wantReason: biddingerrors.ReasonNotOpen,
		},
		{
			name:       "not_open_checked_before_amount",
			auction:    scheduled,
			proposal:   Proposal{BidderID: "seller", Amount: decimal.NewFromInt(1), PlacedAt: start.Add(time.Minute)},
			wantReason: biddingerrors.ReasonNotOpen,
		},
		{
			name:       "seller_bid",
			auction:    activeAuction(),
			proposal:   Proposal{BidderID: "seller", Amount: decimal.NewFromInt(1100), PlacedAt: start.Add(time.Minute)},
			wantReason: biddingerrors.ReasonSelfBid,
		},
		{
			name:       "redundant_leader_bid",
			auction:    leading,
			proposal:   Proposal{BidderID: "x", Amount: decimal.NewFromInt(1200), PlacedAt: start.Add(time.Minute)},
			agents:     xAgent,
			opts:       Options{RejectRedundant: true},
			wantReason: biddingerrors.ReasonAlreadyLeading,
		},
		{
			name:     "redundant_check_disabled",
			auction:  leading,
			proposal: Proposal{BidderID: "x", Amount: decimal.NewFromInt(1200), PlacedAt: start.Add(time.Minute)},
			agents:   xAgent,
		},
		{
			name:     "leader_above_own_cap",
			auction:  leading,
			proposal: Proposal{BidderID: "x", Amount: decimal.NewFromInt(6000), PlacedAt: start.Add(time.Minute)},
			agents:   xAgent,
			opts:     Options{RejectRedundant: true},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := Validate(tc.auction, tc.proposal, tc.agents, tc.opts)
			if tc.wantReason == "" {
				require.True(t, d.Accepted, "unexpected rejection: %s %s", d.Reason, d.Detail)
				require.NoError(t, d.Err())
				return
			}
			require.False(t, d.Accepted)
			require.Equal(t, tc.wantReason, d.Reason)

			reason, ok := biddingerrors.ReasonOf(d.Err())
			require.True(t, ok)
			require.Equal(t, tc.wantReason, reason)
			require.ErrorIs(t, d.Err(), biddingerrors.ErrRejected)
		})
	}
}

func TestValidate_PercentageIncrement(t *testing.T) {
	t.Parallel()

	a := activeAuction()
	a.IncrementPolicy = models.IncrementPercentage
	a.MinIncrement = decimal.NewFromInt(5)

	// 5% of 1000
	d := Validate(a, Proposal{BidderID: "x", Amount: decimal.NewFromInt(1049), PlacedAt: start.Add(time.Minute)}, nil, Options{})
	require.Equal(t, biddingerrors.ReasonBelowMinimum, d.Reason)

	d = Validate(a, Proposal{BidderID: "x", Amount: decimal.NewFromInt(1050), PlacedAt: start.Add(time.Minute)}, nil, Options{})
	require.True(t, d.Accepted)
}

func TestValidateProxy(t *testing.T) {
	t.Parallel()

	leading := activeAuction()
	leading.CurrentPrice = decimal.NewFromInt(1050)
	leading.HighestBidderID = "x"

	closed := activeAuction()
	closed.Status = models.StatusClosed

	at := start.Add(time.Minute)
	tests := []struct {
		name       string
		auction    models.Auction
		bidderID   string
		max        int64
		wantReason biddingerrors.Reason
	}{
		{name: "fresh_registration", auction: activeAuction(), bidderID: "x", max: 5000},
		{name: "cap_below_minimum", auction: leading, bidderID: "y", max: 1080, wantReason: biddingerrors.ReasonBelowMinimum},
		{name: "leader_cap_at_current_price", auction: leading, bidderID: "x", max: 1050},
		{name: "leader_cap_below_current_price", auction: leading, bidderID: "x", max: 1000, wantReason: biddingerrors.ReasonBelowMinimum},
		{name: "seller", auction: activeAuction(), bidderID: "seller", max: 5000, wantReason: biddingerrors.ReasonSelfBid},
		{name: "closed", auction: closed, bidderID: "y", max: 5000, wantReason: biddingerrors.ReasonNotOpen},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := ValidateProxy(tc.auction, tc.bidderID, decimal.NewFromInt(tc.max), at)
			if tc.wantReason == "" {
				require.True(t, d.Accepted, "unexpected rejection: %s %s", d.Reason, d.Detail)
				return
			}
			require.Equal(t, tc.wantReason, d.Reason)
		})
	}
}
