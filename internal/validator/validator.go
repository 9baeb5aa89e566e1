// Package validator holds the stateless pre-checks run against an auction
// snapshot before the actor commits anything.
package validator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
)

// Options are policy switches for the optional checks
type Options struct {
	// RejectRedundant rejects bids from a leader whose active proxy already covers the amount
	RejectRedundant bool
}

// Proposal is a bid that has not been accepted yet
type Proposal struct {
	BidderID string
	Amount   decimal.Decimal
	PlacedAt time.Time
}

// Decision is Accept (Reason empty) or Reject(Reason)
type Decision struct {
	Accepted bool
	Reason   biddingerrors.Reason
	Detail   string
}

// Err returns the decision as a RejectionError, or nil when accepted
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	return biddingerrors.Reject(d.Reason, d.Detail)
}

func accept() Decision {
	return Decision{Accepted: true}
}

func reject(reason biddingerrors.Reason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Validate checks a manual bid against the snapshot. Checks run in a fixed
// order so the reported reason is deterministic.
func Validate(a models.Auction, p Proposal, agents []models.ProxyAgent, opts Options) Decision {
	if d := checkOpen(a, p.PlacedAt); !d.Accepted {
		return d
	}

	minimum := a.MinimumBid()
	if p.Amount.LessThan(minimum) {
		return reject(biddingerrors.ReasonBelowMinimum, fmt.Sprintf("minimum bid is %s", minimum.String()))
	}

	if p.BidderID == a.SellerID {
		return reject(biddingerrors.ReasonSelfBid, "seller cannot bid on own auction")
	}

	if opts.RejectRedundant && a.HighestBidderID != "" && p.BidderID == a.HighestBidderID {
		for _, agent := range agents {
			if agent.BidderID == p.BidderID && agent.Active && agent.MaxAmount.GreaterThanOrEqual(p.Amount) {
				return reject(biddingerrors.ReasonAlreadyLeading, "active proxy already covers this amount")
			}
		}
	}

	return accept()
}

// ValidateProxy checks a proxy registration. A bidder who already leads only
// needs a cap at or above the current price; anyone else must be able to
// place at least the minimum bid.
func ValidateProxy(a models.Auction, bidderID string, maxAmount decimal.Decimal, at time.Time) Decision {
	if d := checkOpen(a, at); !d.Accepted {
		return d
	}

	if bidderID == a.SellerID {
		return reject(biddingerrors.ReasonSelfBid, "seller cannot bid on own auction")
	}

	if bidderID == a.HighestBidderID {
		if maxAmount.LessThan(a.CurrentPrice) {
			return reject(biddingerrors.ReasonBelowMinimum, fmt.Sprintf("maximum must be at least %s", a.CurrentPrice.String()))
		}
		return accept()
	}

	minimum := a.MinimumBid()
	if maxAmount.LessThan(minimum) {
		return reject(biddingerrors.ReasonBelowMinimum, fmt.Sprintf("maximum must be at least %s", minimum.String()))
	}
	return accept()
}

func checkOpen(a models.Auction, at time.Time) Decision {
	if !a.Status.IsOpen() {
		return reject(biddingerrors.ReasonNotOpen, fmt.Sprintf("auction is %s", a.Status))
	}
	if at.Before(a.StartTime) || !at.Before(a.EndTime) {
		return reject(biddingerrors.ReasonNotOpen, "outside the bidding window")
	}
	return accept()
}
