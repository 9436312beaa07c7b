package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/middleware"
	nftservice "github.com/fraudguard-labs/fraudguard/service/nft"
	"github.com/fraudguard-labs/fraudguard/service/redis"
	"github.com/fraudguard-labs/fraudguard/util"
)

const createQueueSize = 64

func handlersInit(router *gin.Engine, api *nftservice.API, cache *redis.Cache) *gin.Engine {
	ctx := context.Background()

	apiGroup := router.Group("/api")

	// NFT LIFECYCLE

	nftGroup := apiGroup.Group("/nft")

	// The create path runs the analyzer synchronously, so it alone carries
	// the backpressure gate
	maxConcurrent := env.GetInt(ctx, "PROVIDER_MAX_CONCURRENT")
	nftGroup.POST("/create", middleware.Throttle(maxConcurrent, createQueueSize), createNFT(api))

	nftGroup.PUT("/:id/confirm-mint", confirmMint(api))
	nftGroup.GET("/:id", getNFT(api))
	nftGroup.GET("/:id/analysis", getNFTAnalysis(api))
	nftGroup.GET("/:id/similar", getSimilarNFTs(api))
	nftGroup.GET("/user/:wallet", getNFTsForWallet(api))

	// LISTINGS

	nftGroup.PUT("/:id/list", listNFT(api))
	nftGroup.PUT("/:id/unlist", unlistNFT(api))
	nftGroup.PUT("/:id/update-listing", updateListing(api))
	nftGroup.POST("/bulk-list", bulkList(api))
	nftGroup.POST("/:id/auto-relist", autoRelist(api))
	nftGroup.DELETE("/listing/:listing_id", deleteListing(api))
	nftGroup.GET("/:id/listing-history", getListingHistory(api))
	nftGroup.GET("/:id/listing-analytics", getListingAnalytics(api))

	// MARKETPLACE

	marketplaceGroup := apiGroup.Group("/marketplace")
	marketplaceGroup.GET("/nfts", getMarketplaceNFTs(api, cache))

	// HEALTH
	router.GET("/health", util.HealthCheckHandler())

	return router
}
