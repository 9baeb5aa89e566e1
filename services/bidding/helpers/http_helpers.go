package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"auction-engine/internal/biddingerrors"
	"auction-engine/utils"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// ParseAmount reads a positive money amount with at most two decimal places
func ParseAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: not a decimal number: %w", field, err)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%s: must be positive", field)
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Truncate(2)) {
		return decimal.Decimal{}, fmt.Errorf("%s: at most two decimal places", field)
	}
	return amount, nil
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	if reason, ok := biddingerrors.ReasonOf(err); ok {
		return MapReasonToHTTP(reason)
	}
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidWatch):
		return http.StatusBadRequest, "invalid watch details"
	case errors.Is(err, biddingerrors.ErrAuctionExists):
		return http.StatusConflict, "auction already exists"
	case errors.Is(err, biddingerrors.ErrNotDue):
		return http.StatusConflict, "auction has not ended yet"
	case errors.Is(err, biddingerrors.ErrCancelled):
		return http.StatusRequestTimeout, "request cancelled"
	case errors.Is(err, biddingerrors.ErrActorStopped),
		errors.Is(err, biddingerrors.ErrStoreUnavailable),
		errors.Is(err, biddingerrors.ErrInvariantViolation):
		return http.StatusServiceUnavailable, "engine unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// MapReasonToHTTP maps a rejection reason to HTTP status code and message
func MapReasonToHTTP(reason biddingerrors.Reason) (int, string) {
	switch reason {
	case biddingerrors.ReasonNotOpen:
		return http.StatusConflict, "auction is not open for bidding"
	case biddingerrors.ReasonBelowMinimum:
		return http.StatusConflict, "bid amount too low"
	case biddingerrors.ReasonSelfBid:
		return http.StatusForbidden, "sellers cannot bid on their own auction"
	case biddingerrors.ReasonAlreadyLeading:
		return http.StatusConflict, "bidder already leads"
	case biddingerrors.ReasonRetryExhausted:
		return http.StatusTooManyRequests, "auction busy, retry later"
	case biddingerrors.ReasonEngineUnavailable:
		return http.StatusServiceUnavailable, "engine unavailable"
	case biddingerrors.ReasonNotCancellable:
		return http.StatusConflict, "auction cannot be cancelled"
	default:
		return http.StatusUnprocessableEntity, "request rejected"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
