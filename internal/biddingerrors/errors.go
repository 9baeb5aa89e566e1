package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionExists    = errors.New("auction already exists")
	ErrVersionConflict  = errors.New("auction version conflict")
	ErrStoreUnavailable = errors.New("auction store unavailable")
)

// business logic errors
var (
	ErrInvalidAuction = errors.New("invalid auction")
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidWatch   = errors.New("invalid watch entry")
	ErrRejected       = errors.New("request rejected")
)

// engine errors
var (
	ErrInvariantViolation = errors.New("auction invariant violated")
	ErrActorStopped       = errors.New("auction actor stopped")
	ErrCancelled          = errors.New("request cancelled before processing")
	ErrNotDue             = errors.New("lifecycle transition not due yet")
)

// Reason is the machine-readable cause of a rejection
type Reason string

const (
	ReasonNotOpen           Reason = "NOT_OPEN"
	ReasonBelowMinimum      Reason = "BELOW_MINIMUM"
	ReasonSelfBid           Reason = "SELF_BID"
	ReasonAlreadyLeading    Reason = "ALREADY_LEADING"
	ReasonRetryExhausted    Reason = "RETRY_EXHAUSTED"
	ReasonEngineUnavailable Reason = "ENGINE_UNAVAILABLE"
	ReasonNotCancellable    Reason = "NOT_CANCELLABLE"
)

// RejectionError is an expected business outcome, reported to the caller and never logged as an error
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rejected: %s", e.Reason)
	}
	return fmt.Sprintf("rejected: %s - %s", e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// Reject builds a RejectionError
func Reject(reason Reason, detail string) error {
	return &RejectionError{Reason: reason, Detail: detail}
}

// ReasonOf extracts the rejection reason from err, if any
func ReasonOf(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
