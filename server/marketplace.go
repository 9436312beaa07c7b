package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	nftservice "github.com/fraudguard-labs/fraudguard/service/nft"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/fraudguard-labs/fraudguard/service/redis"
	"github.com/fraudguard-labs/fraudguard/util"
)

const (
	defaultMarketplaceLimit = 20
	maxMarketplaceLimit     = 100

	marketplaceCacheTTL = 30 * time.Second
)

type marketplaceResponse struct {
	NFTs  []persist.NFT `json:"nfts"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func parseMarketplaceFilter(c *gin.Context) (persist.MarketplaceFilter, error) {
	filter := persist.MarketplaceFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Page:     1,
		Limit:    defaultMarketplaceLimit,
	}

	if raw := c.Query("min_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil || price.IsNegative() {
			return filter, util.ErrInvalidInput{Reason: "min_price must be a non-negative decimal"}
		}
		filter.MinPrice = &price
	}
	if raw := c.Query("max_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil || price.IsNegative() {
			return filter, util.ErrInvalidInput{Reason: "max_price must be a non-negative decimal"}
		}
		filter.MaxPrice = &price
	}
	if raw := c.Query("include_flagged"); raw != "" {
		flagged, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, util.ErrInvalidInput{Reason: "include_flagged must be a boolean"}
		}
		filter.IncludeFlagged = flagged
	}
	if raw := c.Query("include_pending"); raw != "" {
		pending, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, util.ErrInvalidInput{Reason: "include_pending must be a boolean"}
		}
		filter.IncludePending = pending
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filter, util.ErrInvalidInput{Reason: "page must be an integer >= 1"}
		}
		filter.Page = page
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxMarketplaceLimit {
			return filter, util.ErrInvalidInput{Reason: "limit must be an integer between 1 and 100"}
		}
		filter.Limit = limit
	}

	return filter, nil
}

// getMarketplaceNFTs serves the paginated browse query. Pages are cached
// briefly; the cache is advisory and a miss always falls through to the
// database.
func getMarketplaceNFTs(api *nftservice.API, cache *redis.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := parseMarketplaceFilter(c)
		if err != nil {
			invalidInputResponse(c, err)
			return
		}

		cacheKey := "marketplace:" + c.Request.URL.RawQuery
		if body, ok := cache.Get(c.Request.Context(), cacheKey); ok {
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}

		nfts, total, err := api.Marketplace(c.Request.Context(), filter)
		if err != nil {
			errResponse(c, err)
			return
		}

		response := marketplaceResponse{NFTs: nfts, Total: total, Page: filter.Page, Limit: filter.Limit}

		if body, err := json.Marshal(response); err == nil {
			cache.Set(c.Request.Context(), cacheKey, body, marketplaceCacheTTL)
		} else {
			logger.For(c).Warnf("could not cache marketplace page: %s", err)
		}

		c.JSON(http.StatusOK, response)
	}
}
