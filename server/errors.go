package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard-labs/fraudguard/middleware"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/fraudguard-labs/fraudguard/service/task"
	"github.com/fraudguard-labs/fraudguard/util"
)

// Error kinds surfaced in the structured failure body
const (
	kindInputInvalid = "InputInvalid"
	kindNotFound     = "NotFound"
	kindConflict     = "Conflict"
	kindOverloaded   = "Overloaded"
	kindCancelled    = "Cancelled"
	kindInternal     = "Internal"
)

// errResponse classifies a service error and writes the structured failure
// body with the matching status code. Provider failures never reach here;
// the analyzer absorbs them.
func errResponse(c *gin.Context, err error) {
	var (
		nftNotFound     persist.ErrNFTNotFoundByID
		listingNotFound persist.ErrListingNotFound
		userNotFoundW   persist.ErrUserNotFoundByWallet
		userNotFoundID  persist.ErrUserNotFoundByID
		mintConflict    persist.ErrMintConflict
		notMintable     persist.ErrNotMintable
		alreadyListed   persist.ErrAlreadyListed
		notMinted       persist.ErrNotMinted
		noActiveListing persist.ErrNoActiveListing
		listingDeleted  persist.ErrListingDeleted
		invalidInput    util.ErrInvalidInput
		badDimension    persist.ErrInvalidDimension
	)

	switch {
	case errors.As(err, &invalidInput), errors.As(err, &badDimension):
		util.ErrResponse(c, http.StatusBadRequest, kindInputInvalid, err)
	case errors.As(err, &nftNotFound), errors.As(err, &listingNotFound),
		errors.As(err, &userNotFoundW), errors.As(err, &userNotFoundID):
		util.ErrResponse(c, http.StatusNotFound, kindNotFound, err)
	case errors.As(err, &mintConflict), errors.As(err, &notMintable),
		errors.As(err, &alreadyListed), errors.As(err, &notMinted),
		errors.As(err, &noActiveListing), errors.As(err, &listingDeleted):
		util.ErrResponse(c, http.StatusConflict, kindConflict, err)
	case errors.Is(err, task.ErrOverloaded):
		c.Header("Retry-After", "5")
		util.ErrResponse(c, http.StatusServiceUnavailable, kindOverloaded, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		util.ErrResponse(c, middleware.StatusClientClosedRequest, kindCancelled, err)
	default:
		// Opaque to the client, full detail in the log
		c.Error(err)
		util.ErrResponse(c, http.StatusInternalServerError, kindInternal, errors.New("internal server error"))
	}
}

func invalidInputResponse(c *gin.Context, err error) {
	util.ErrResponse(c, http.StatusBadRequest, kindInputInvalid, err)
}
