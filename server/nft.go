package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard-labs/fraudguard/env"
	nftservice "github.com/fraudguard-labs/fraudguard/service/nft"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/fraudguard-labs/fraudguard/util"
	"github.com/fraudguard-labs/fraudguard/validate"
)

const (
	defaultSimilarLimit = 10
	maxSimilarLimit     = 50
)

func createNFT(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := nftservice.CreateInput{}
		if err := c.ShouldBindJSON(&input); err != nil {
			invalidInputResponse(c, err)
			return
		}

		input.Title = validate.SanitizationPolicy.Sanitize(input.Title)
		input.Description = validate.SanitizationPolicy.Sanitize(input.Description)

		created, err := api.Create(c.Request.Context(), input)
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

func confirmMint(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		suiObjectID := c.Query("sui_object_id")
		if suiObjectID == "" {
			invalidInputResponse(c, util.ErrInvalidInput{Reason: "sui_object_id is required"})
			return
		}

		minted, err := api.ConfirmMint(c.Request.Context(), persist.DBID(c.Param("id")), suiObjectID)
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, minted)
	}
}

func getNFT(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		nft, err := api.GetByID(c.Request.Context(), persist.DBID(c.Param("id")))
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, nft)
	}
}

type nftAnalysisResponse struct {
	NFTID           persist.DBID            `json:"nft_id"`
	IsFraud         bool                    `json:"is_fraud"`
	ConfidenceScore float64                 `json:"confidence_score"`
	FlagType        persist.FlagType        `json:"flag_type"`
	Reason          persist.NullString      `json:"reason"`
	EvidenceURLs    []string                `json:"evidence_urls"`
	AnalysisDetails persist.AnalysisDetails `json:"analysis_details"`
}

func getNFTAnalysis(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		nft, err := api.GetByID(c.Request.Context(), persist.DBID(c.Param("id")))
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, nftAnalysisResponse{
			NFTID:           nft.ID,
			IsFraud:         nft.IsFraud,
			ConfidenceScore: nft.ConfidenceScore,
			FlagType:        nft.FlagType,
			Reason:          nft.Reason,
			EvidenceURLs:    nft.EvidenceURLs,
			AnalysisDetails: nft.AnalysisDetails,
		})
	}
}

type similarNFTsResponse struct {
	NFTID   persist.DBID         `json:"nft_id"`
	Similar []persist.SimilarNFT `json:"similar_nfts"`
}

func getSimilarNFTs(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultSimilarLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxSimilarLimit {
				invalidInputResponse(c, util.ErrInvalidInput{Reason: "limit must be an integer between 1 and 50"})
				return
			}
			limit = parsed
		}

		id := persist.DBID(c.Param("id"))
		threshold := env.GetFloat64(c, "IMAGE_SIMILARITY_THRESHOLD")

		similar, err := api.Similar(c.Request.Context(), id, threshold, limit)
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, similarNFTsResponse{NFTID: id, Similar: similar})
	}
}

type walletNFTsResponse struct {
	WalletAddress persist.WalletAddress `json:"wallet_address"`
	NFTs          []persist.NFT         `json:"nfts"`
	Count         int                   `json:"count"`
}

func getNFTsForWallet(api *nftservice.API) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := persist.WalletAddress(c.Param("wallet"))
		if wallet == "" {
			invalidInputResponse(c, util.ErrInvalidInput{Reason: "wallet address is required"})
			return
		}

		nfts, err := api.GetByWallet(c.Request.Context(), wallet)
		if err != nil {
			errResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, walletNFTsResponse{WalletAddress: wallet, NFTs: nfts, Count: len(nfts)})
	}
}
