package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudguard-labs/fraudguard/service/fraud"
	nftservice "github.com/fraudguard-labs/fraudguard/service/nft"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/fraudguard-labs/fraudguard/util"
	"github.com/fraudguard-labs/fraudguard/validate"
)

var testSetupOnce sync.Once

func newTestRouter(api *nftservice.API) *gin.Engine {
	testSetupOnce.Do(func() {
		gin.SetMode(gin.TestMode)
		viper.Set("PROVIDER_MAX_CONCURRENT", 4)
		viper.Set("IMAGE_SIMILARITY_THRESHOLD", 0.85)
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			validate.RegisterCustomValidators(v)
		}
	})
	return handlersInit(gin.New(), api, nil)
}

type routeUserRepo struct {
	mu    sync.Mutex
	users map[persist.WalletAddress]persist.User
}

func (f *routeUserRepo) GetOrCreateByWallet(ctx context.Context, wallet persist.WalletAddress) (persist.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[wallet]; ok {
		return user, nil
	}
	user := persist.User{ID: persist.GenerateID(), WalletAddress: wallet}
	f.users[wallet] = user
	return user, nil
}

func (f *routeUserRepo) GetByID(ctx context.Context, id persist.DBID) (persist.User, error) {
	return persist.User{}, persist.ErrUserNotFoundByID{ID: id}
}

func (f *routeUserRepo) GetByWallet(ctx context.Context, wallet persist.WalletAddress) (persist.User, error) {
	return persist.User{}, persist.ErrUserNotFoundByWallet{WalletAddress: wallet}
}

type routeNFTRepo struct {
	mu   sync.Mutex
	nfts map[persist.DBID]persist.NFT
}

func (f *routeNFTRepo) Create(ctx context.Context, input persist.NFTCreateInput) (persist.NFT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nft := persist.NFT{
		ID:              persist.GenerateID(),
		OwnerID:         input.OwnerID,
		WalletAddress:   input.WalletAddress,
		Title:           persist.NullString(input.Title),
		Price:           input.Price,
		Status:          persist.NFTStatusPending,
		IsFraud:         input.Verdict.IsFraud,
		ConfidenceScore: input.Verdict.ConfidenceScore,
		AnalysisDetails: input.Verdict.Details,
	}
	f.nfts[nft.ID] = nft
	return nft, nil
}

func (f *routeNFTRepo) GetByID(ctx context.Context, id persist.DBID) (persist.NFT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if nft, ok := f.nfts[id]; ok {
		return nft, nil
	}
	return persist.NFT{}, persist.ErrNFTNotFoundByID{ID: id}
}

func (f *routeNFTRepo) GetByWallet(ctx context.Context, wallet persist.WalletAddress) ([]persist.NFT, error) {
	return []persist.NFT{}, nil
}

func (f *routeNFTRepo) ConfirmMint(ctx context.Context, id persist.DBID, suiObjectID string) (persist.NFT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nft, ok := f.nfts[id]
	if !ok {
		return persist.NFT{}, persist.ErrNFTNotFoundByID{ID: id}
	}
	if nft.Status == persist.NFTStatusMinted && nft.SuiObjectID.String() != suiObjectID {
		return persist.NFT{}, persist.ErrMintConflict{ID: id, SuiObjectID: suiObjectID}
	}
	nft.Status = persist.NFTStatusMinted
	nft.SuiObjectID = persist.NullString(suiObjectID)
	f.nfts[id] = nft
	return nft, nil
}

func (f *routeNFTRepo) Marketplace(ctx context.Context, filter persist.MarketplaceFilter) ([]persist.NFT, int64, error) {
	return []persist.NFT{}, 0, nil
}

func (f *routeNFTRepo) UpdateVerdict(ctx context.Context, id persist.DBID, verdict persist.Verdict) error {
	return nil
}

func (f *routeNFTRepo) UpdateEmbedding(ctx context.Context, id persist.DBID, embedding persist.EmbeddingVector) error {
	return nil
}

type routeListingRepo struct {
	failWith map[persist.DBID]error
}

func (f *routeListingRepo) Create(ctx context.Context, input persist.ListingCreateInput) (persist.Listing, error) {
	if err, ok := f.failWith[input.NFTID]; ok {
		return persist.Listing{}, err
	}
	return persist.Listing{ID: persist.GenerateID(), NFTID: input.NFTID, Price: input.Price, Status: persist.ListingStatusActive}, nil
}

func (f *routeListingRepo) Deactivate(ctx context.Context, nftID persist.DBID) (persist.Listing, error) {
	return persist.Listing{}, persist.ErrNoActiveListing{NFTID: nftID}
}

func (f *routeListingRepo) Update(ctx context.Context, nftID persist.DBID, input persist.ListingUpdateInput) (persist.Listing, error) {
	return persist.Listing{}, persist.ErrNoActiveListing{NFTID: nftID}
}

func (f *routeListingRepo) SoftDelete(ctx context.Context, listingID persist.DBID) error {
	return persist.ErrListingNotFound{ID: listingID}
}

func (f *routeListingRepo) GetByID(ctx context.Context, id persist.DBID) (persist.Listing, error) {
	return persist.Listing{}, persist.ErrListingNotFound{ID: id}
}

func (f *routeListingRepo) GetActiveByNFT(ctx context.Context, nftID persist.DBID) (persist.Listing, error) {
	return persist.Listing{}, persist.ErrNoActiveListing{NFTID: nftID}
}

func (f *routeListingRepo) HistoryByNFT(ctx context.Context, nftID persist.DBID) ([]persist.ListingHistory, error) {
	return []persist.ListingHistory{}, nil
}

func (f *routeListingRepo) AnalyticsByNFT(ctx context.Context, nftID persist.DBID) (persist.ListingAnalytics, error) {
	return persist.ListingAnalytics{NFTID: nftID}, nil
}

func newRouteAPI() (*nftservice.API, *routeNFTRepo, *routeListingRepo) {
	nfts := &routeNFTRepo{nfts: map[persist.DBID]persist.NFT{}}
	listings := &routeListingRepo{failWith: map[persist.DBID]error{}}
	api := &nftservice.API{
		Users:    &routeUserRepo{users: map[persist.WalletAddress]persist.User{}},
		NFTs:     nfts,
		Listings: listings,
		Analyzer: fraud.NewAnalyzer(fraud.Providers{}, fraud.Config{}),
	}
	return api, nfts, listings
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) util.ErrorResponse {
	t.Helper()
	body := util.ErrorResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthRoute(t *testing.T) {
	api, _, _ := newRouteAPI()
	router := newTestRouter(api)

	w := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true}`, w.Body.String())
}

func TestCreateNFTRoute(t *testing.T) {
	t.Run("valid submission is created", func(t *testing.T) {
		api, _, _ := newRouteAPI()
		router := newTestRouter(api)

		w := doRequest(router, http.MethodPost, "/api/nft/create", map[string]interface{}{
			"wallet_address": "0xabc123",
			"title":          "Sunset Over Water",
			"description":    "An original watercolor",
			"price":          2.5,
			"image_url":      "https://cdn.example.com/sunset.png",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		created := persist.NFT{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, persist.NFTStatusPending, created.Status)
	})

	t.Run("malformed wallet address is rejected", func(t *testing.T) {
		api, _, _ := newRouteAPI()
		router := newTestRouter(api)

		w := doRequest(router, http.MethodPost, "/api/nft/create", map[string]interface{}{
			"wallet_address": "not-a-wallet",
			"title":          "Sunset",
			"image_url":      "https://cdn.example.com/sunset.png",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "InputInvalid", errorBody(t, w).Error)
	})

	t.Run("missing image url is rejected", func(t *testing.T) {
		api, _, _ := newRouteAPI()
		router := newTestRouter(api)

		w := doRequest(router, http.MethodPost, "/api/nft/create", map[string]interface{}{
			"wallet_address": "0xabc123",
			"title":          "Sunset",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestConfirmMintRoute(t *testing.T) {
	api, nfts, _ := newRouteAPI()
	router := newTestRouter(api)
	nfts.nfts["n1"] = persist.NFT{ID: "n1", Status: persist.NFTStatusPending}

	t.Run("requires the object id", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/nft/n1/confirm-mint", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "InputInvalid", errorBody(t, w).Error)
	})

	t.Run("mints a pending NFT", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/nft/n1/confirm-mint?sui_object_id=0xsui1", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		minted := persist.NFT{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &minted))
		assert.Equal(t, persist.NFTStatusMinted, minted.Status)
	})

	t.Run("conflicting object id returns a conflict", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/nft/n1/confirm-mint?sui_object_id=0xother", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Conflict", errorBody(t, w).Error)
	})
}

func TestErrorClassification(t *testing.T) {
	api, _, listings := newRouteAPI()
	router := newTestRouter(api)

	t.Run("missing NFT is a 404", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/nft/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NotFound", errorBody(t, w).Error)
	})

	t.Run("listing an unminted NFT is a conflict", func(t *testing.T) {
		listings.failWith["n1"] = persist.ErrNotMinted{NFTID: "n1", Status: persist.NFTStatusPending}
		w := doRequest(router, http.MethodPut, "/api/nft/n1/list", map[string]interface{}{"price": 2})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Conflict", errorBody(t, w).Error)
	})

	t.Run("unlisting without an active listing is a conflict", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/nft/n1/unlist", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("nonpositive listing price is rejected", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/nft/n1/list", map[string]interface{}{"price": -1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMarketplaceRoute(t *testing.T) {
	api, _, _ := newRouteAPI()
	router := newTestRouter(api)

	t.Run("returns the paginated envelope", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/marketplace/nfts", nil)
		require.Equal(t, http.StatusOK, w.Code)

		page := marketplaceResponse{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, defaultMarketplaceLimit, page.Limit)
	})

	t.Run("rejects a malformed price filter", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/marketplace/nfts?min_price=cheap", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "InputInvalid", errorBody(t, w).Error)
	})

	t.Run("rejects an oversized limit", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/marketplace/nfts?limit=500", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSimilarRoute(t *testing.T) {
	api, nfts, _ := newRouteAPI()
	router := newTestRouter(api)
	nfts.nfts["n1"] = persist.NFT{ID: "n1"}

	t.Run("rejects an out-of-range limit", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/nft/n1/similar?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no index means no neighbors", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/nft/n1/similar", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := similarNFTsResponse{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, persist.DBID("n1"), resp.NFTID)
		assert.Empty(t, resp.Similar)
	})
}

func TestMarketplaceFilterParsing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	parse := func(t *testing.T, query string) (persist.MarketplaceFilter, error) {
		t.Helper()
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/api/marketplace/nfts?"+query, nil)
		return parseMarketplaceFilter(c)
	}

	t.Run("defaults", func(t *testing.T) {
		filter, err := parse(t, "")
		require.NoError(t, err)
		assert.Equal(t, 1, filter.Page)
		assert.Equal(t, defaultMarketplaceLimit, filter.Limit)
		assert.False(t, filter.IncludeFlagged)
	})

	t.Run("full query", func(t *testing.T) {
		filter, err := parse(t, "search=sunset&category=art&min_price=1.5&max_price=10&include_flagged=true&page=3&limit=50")
		require.NoError(t, err)
		assert.Equal(t, "sunset", filter.Search)
		assert.Equal(t, "art", filter.Category)
		require.NotNil(t, filter.MinPrice)
		assert.True(t, filter.MinPrice.Equal(decimal.NewFromFloat(1.5)))
		require.NotNil(t, filter.MaxPrice)
		assert.True(t, filter.MaxPrice.Equal(decimal.NewFromInt(10)))
		assert.True(t, filter.IncludeFlagged)
		assert.Equal(t, 3, filter.Page)
		assert.Equal(t, 50, filter.Limit)
	})

	t.Run("negative price is invalid", func(t *testing.T) {
		_, err := parse(t, "min_price=-1")
		assert.Error(t, err)
	})

	t.Run("zero page is invalid", func(t *testing.T) {
		_, err := parse(t, "page=0")
		assert.Error(t, err)
	})
}
