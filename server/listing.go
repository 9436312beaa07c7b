package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	nftservice "github.com/fraudguard-labs/fraudguard/service/nft"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/fraudguard-labs/fraudguard/util"
)

type listNFTInput struct {
	Price     decimal.Decimal         `json:"price" binding:"required"`
	ExpiresAt *time.Time              `json:"expires_at"`
	Metadata  persist.ListingMetadata `json:"metadata"`
}

type updateListingInput struct {
	Price     *decimal.Decimal        `json:"price"`
	ExpiresAt *time.Time              `json:"expires_at"`
	Metadata  persist.ListingMetadata `json:"metadata"`
}

type bulkListInput struct {
	NFTIDs    []persist.DBID  `json:"nft_ids" binding:"required,min=1"`
	Price     decimal.Decimal `json:"price" binding:"required"`
	ExpiresAt *time.Time      `json:"expires_at"`
}

func listNFT(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := listNFTInput{}
		if err := c.ShouldBindJSON(&input); err != nil {
			invalidInputResponse(c, err)
			return
		}
		if !input.Price.IsPositive() {
			invalidInputResponse(c, util.ErrInvalidInput{Reason: "listing price must be positive"})
			return
		}

		listing, err := api.List(c.Request.Context(), persist.ListingCreateInput{
			NFTID:     persist.DBID(c.Param("id")),
			Price:     input.Price,
			ExpiresAt: input.ExpiresAt,
			Metadata:  input.Metadata,
		})
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, listing)
	}
}

func unlistNFT(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		listing, err := api.Unlist(c.Request.Context(), persist.DBID(c.Param("id")))
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, listing)
	}
}

func updateListing(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := updateListingInput{}
		if err := c.ShouldBindJSON(&input); err != nil {
			invalidInputResponse(c, err)
			return
		}
		if input.Price != nil && !input.Price.IsPositive() {
			invalidInputResponse(c, util.ErrInvalidInput{Reason: "listing price must be positive"})
			return
		}

		listing, err := api.UpdateListing(c.Request.Context(), persist.DBID(c.Param("id")), persist.ListingUpdateInput{
			Price:     input.Price,
			ExpiresAt: input.ExpiresAt,
			Metadata:  input.Metadata,
		})
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, listing)
	}
}

func deleteListing(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := api.DeleteListing(c.Request.Context(), persist.DBID(c.Param("listing_id")))
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, util.SuccessResponse{Success: true})
	}
}

func bulkList(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := bulkListInput{}
		if err := c.ShouldBindJSON(&input); err != nil {
			invalidInputResponse(c, err)
			return
		}
		if !input.Price.IsPositive() {
			invalidInputResponse(c, util.ErrInvalidInput{Reason: "listing price must be positive"})
			return
		}

		result, err := api.BulkList(c.Request.Context(), input.NFTIDs, input.Price, input.ExpiresAt)
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func autoRelist(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := listNFTInput{}
		if err := c.ShouldBindJSON(&input); err != nil {
			invalidInputResponse(c, err)
			return
		}
		if !input.Price.IsPositive() {
			invalidInputResponse(c, util.ErrInvalidInput{Reason: "listing price must be positive"})
			return
		}

		listing, err := api.AutoRelist(c.Request.Context(), persist.ListingCreateInput{
			NFTID:     persist.DBID(c.Param("id")),
			Price:     input.Price,
			ExpiresAt: input.ExpiresAt,
			Metadata:  input.Metadata,
		})
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, listing)
	}
}

type listingHistoryResponse struct {
	NFTID   persist.DBID             `json:"nft_id"`
	History []persist.ListingHistory `json:"history"`
	Count   int                      `json:"count"`
}

func getListingHistory(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := persist.DBID(c.Param("id"))

		history, err := api.History(c.Request.Context(), id)
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, listingHistoryResponse{NFTID: id, History: history, Count: len(history)})
	}
}

func getListingAnalytics(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		analytics, err := api.Analytics(c.Request.Context(), persist.DBID(c.Param("id")))
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, analytics)
	}
}
