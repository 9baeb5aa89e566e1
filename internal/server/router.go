package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	handler "auction-engine/services/bidding/handler"
	"auction-engine/utils"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService handler.BiddingServiceInterface) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestIDMiddleware)     // correlate logs with responses
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService)

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	})

	auctions := router.Group("/auctions")
	{
		auctions.POST("", biddingHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsHandler)
		auctions.POST("/:auction_id/bids", biddingHandler.PlaceBidHandler)
		auctions.POST("/:auction_id/proxy", biddingHandler.RegisterProxyHandler)
		auctions.POST("/:auction_id/cancel", biddingHandler.CancelAuctionHandler)
		auctions.PUT("/:auction_id/watchers", biddingHandler.WatchAuctionHandler)
		auctions.GET("/:auction_id/events", biddingHandler.StreamEventsHandler)
	}

	debug := router.Group("/debug")
	{
		debug.GET("/fanout", biddingHandler.FanoutStatsHandler)
	}

	return router
}
