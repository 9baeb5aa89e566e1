package handler

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"
)

type BiddingServiceInterface interface {
	CreateAuction(ctx context.Context, in bidding.NewAuction) (model.AuctionView, error)
	GetAuctionSnapshot(ctx context.Context, auctionID string) (model.AuctionView, error)
	GetBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.BidResult, error)
	RegisterProxyBid(ctx context.Context, auctionID, bidderID string, maxAmount decimal.Decimal) (model.ProxyResult, error)
	CancelAuction(ctx context.Context, auctionID, sellerID string) error
	Watch(ctx context.Context, entry model.WatchEntry) error
	Subscribe(auctionID string) *events.Subscription
	FanoutStats() events.Stats
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// writeServiceError answers with the status mapped from err. Server-side
// failures are logged as errors, client mistakes as warnings.
func writeServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := helpers.MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request refused", fields)
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}
	startingPrice, err := helpers.ParseAmount("starting_price", req.StartingPrice)
	if err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}
	minIncrement, err := helpers.ParseAmount("min_increment", req.MinIncrement)
	if err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	in := bidding.NewAuction{
		SellerID:        req.SellerID,
		StartingPrice:   startingPrice,
		MinIncrement:    minIncrement,
		IncrementPolicy: model.IncrementPolicy(req.IncrementPolicy),
		EndTime:         req.EndTime,
	}
	if req.StartTime != nil {
		in.StartTime = *req.StartTime
	}

	view, err := h.service.CreateAuction(c.Request.Context(), in)
	if err != nil {
		writeServiceError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": req.SellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionResponse(view), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": view.ID,
		"seller_id":  view.SellerID,
		"status":     view.Status,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	view, err := h.service.GetAuctionSnapshot(c.Request.Context(), auctionID)
	if err != nil {
		writeServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(view), "auction retrieved successfully")
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBids(c.Request.Context(), auctionID)
	if err != nil {
		writeServiceError(c, "GetBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.ToBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}
	amount, err := helpers.ParseAmount("amount", req.Amount)
	if err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), auctionID, req.BidderID, amount)
	if err != nil {
		writeServiceError(c, "PlaceBidHandler", err, map[string]any{"auction_id": auctionID, "bidder_id": req.BidderID})
		return
	}

	resp := helpers.ToBidResultResponse(result)
	if !result.Accepted {
		h.rejected(c, "PlaceBidHandler", resp, auctionID, req.BidderID)
		return
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid accepted")
	helpers.LogSuccess("PlaceBidHandler", "bid accepted", map[string]any{
		"auction_id": auctionID,
		"bidder_id":  req.BidderID,
		"amount":     amount.String(),
		"leader_id":  result.LeaderID,
	})
}

// RegisterProxyHandler handles POST /auctions/:auction_id/proxy
func (h *BiddingHandler) RegisterProxyHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.ProxyBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterProxyHandler", err)
		return
	}
	maxAmount, err := helpers.ParseAmount("max_amount", req.MaxAmount)
	if err != nil {
		helpers.HandleBindError(c, "RegisterProxyHandler", err)
		return
	}

	result, err := h.service.RegisterProxyBid(c.Request.Context(), auctionID, req.BidderID, maxAmount)
	if err != nil {
		writeServiceError(c, "RegisterProxyHandler", err, map[string]any{"auction_id": auctionID, "bidder_id": req.BidderID})
		return
	}

	resp := helpers.ToProxyResultResponse(result)
	if !result.Accepted {
		h.rejected(c, "RegisterProxyHandler", resp, auctionID, req.BidderID)
		return
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "proxy bid registered")
	helpers.LogSuccess("RegisterProxyHandler", "proxy bid registered", map[string]any{
		"auction_id": auctionID,
		"bidder_id":  req.BidderID,
		"leader_id":  result.LeaderID,
	})
}

// rejected answers a business rejection. The body still carries the
// current price so the client can retry with a better amount.
func (h *BiddingHandler) rejected(c *gin.Context, handlerName string, resp helpers.BidResultResponse, auctionID, bidderID string) {
	status, message := helpers.MapReasonToHTTP(biddingerrors.Reason(resp.Reason))
	utils.JSONResponse(c, status, resp, message)
	utils.Info(handlerName+": rejected", map[string]any{
		"auction_id": auctionID,
		"bidder_id":  bidderID,
		"reason":     resp.Reason,
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.CancelAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CancelAuctionHandler", err)
		return
	}

	if err := h.service.CancelAuction(c.Request.Context(), auctionID, req.SellerID); err != nil {
		writeServiceError(c, "CancelAuctionHandler", err, map[string]any{"auction_id": auctionID, "seller_id": req.SellerID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID, "status": model.StatusCancelled}, "auction cancelled")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled", map[string]any{"auction_id": auctionID})
}

// WatchAuctionHandler handles PUT /auctions/:auction_id/watchers
func (h *BiddingHandler) WatchAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "WatchAuctionHandler", err)
		return
	}

	entry := model.WatchEntry{
		UserID:             req.UserID,
		AuctionID:          auctionID,
		NotifyOnOutbid:     req.NotifyOnOutbid,
		NotifyOnEndingSoon: req.NotifyOnEndingSoon,
	}
	if req.PriceAlertThreshold != nil {
		threshold, err := helpers.ParseAmount("price_alert_threshold", *req.PriceAlertThreshold)
		if err != nil {
			helpers.HandleBindError(c, "WatchAuctionHandler", err)
			return
		}
		entry.PriceAlertThreshold = &threshold
	}

	if err := h.service.Watch(c.Request.Context(), entry); err != nil {
		writeServiceError(c, "WatchAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": req.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, entry, "watch saved")
	helpers.LogSuccess("WatchAuctionHandler", "watch saved", map[string]any{"auction_id": auctionID, "user_id": req.UserID})
}

// StreamEventsHandler handles GET /auctions/:auction_id/events as a
// server-sent event stream. The stream ends when the auction closes or is
// cancelled, or when the client goes away.
func (h *BiddingHandler) StreamEventsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if _, err := h.service.GetAuctionSnapshot(c.Request.Context(), auctionID); err != nil {
		writeServiceError(c, "StreamEventsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	sub := h.service.Subscribe(auctionID)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	started := time.Now()
	sent := 0
	defer func() {
		utils.Info("StreamEventsHandler: stream closed", map[string]any{
			"auction_id": auctionID,
			"events":     sent,
			"dropped":    sub.Dropped(),
			"duration":   time.Since(started).String(),
		})
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
			sent++
			if ev.Type == model.EventClosed || ev.Type == model.EventCancelled {
				return
			}
		}
	}
}

// FanoutStatsHandler handles GET /debug/fanout
func (h *BiddingHandler) FanoutStatsHandler(c *gin.Context) {
	utils.JSONResponse(c, http.StatusOK, h.service.FanoutStats(), "fan-out statistics")
}
