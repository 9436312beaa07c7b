package nft

import (
	"context"
	"sync"
	"time"

	"github.com/fraudguard-labs/fraudguard/service/fraud"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/fraudguard-labs/fraudguard/service/similarity"
	"github.com/fraudguard-labs/fraudguard/service/task"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const bulkListConcurrency = 8

// MintNotifier is told about confirmed mints after they commit. Delivery is
// best effort and runs off the request path.
type MintNotifier interface {
	NotifyMinted(ctx context.Context, nft persist.NFT) error
}

// API owns the NFT lifecycle: creation with synchronous fraud analysis,
// mint confirmation, and listing operations with their history ledger.
type API struct {
	Users    persist.UserRepository
	NFTs     persist.NFTRepository
	Listings persist.ListingRepository
	Analyzer *fraud.Analyzer
	Index    similarity.Index
	Tasks    *task.Scheduler

	// Notifier is optional; nil disables mint notifications
	Notifier MintNotifier
}

// CreateInput is one NFT submission
type CreateInput struct {
	WalletAddress persist.WalletAddress `json:"wallet_address" binding:"required,wallet_address"`
	Title         string                `json:"title" binding:"required,nft_title"`
	Description   string                `json:"description" binding:"nft_description"`
	Category      string                `json:"category" binding:"nft_category"`
	Price         decimal.Decimal       `json:"price" binding:"nonnegative_price"`
	ImageURL      string                `json:"image_url" binding:"required,url"`
}

// Create runs the full creation path: resolve the owning user, analyze the
// submission synchronously so the caller receives the verdict, persist the
// NFT in pending state, and schedule indexing of the embedding in the
// background.
func (a *API) Create(ctx context.Context, input CreateInput) (persist.NFT, error) {
	user, err := a.Users.GetOrCreateByWallet(ctx, input.WalletAddress)
	if err != nil {
		return persist.NFT{}, err
	}

	verdict, embedding, err := a.Analyzer.Analyze(ctx, fraud.NFTInput{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Price:       input.Price,
		ImageURL:    input.ImageURL,
		Creator:     input.WalletAddress.String(),
	})
	if err != nil {
		return persist.NFT{}, err
	}

	created, err := a.NFTs.Create(ctx, persist.NFTCreateInput{
		OwnerID:       user.ID,
		WalletAddress: input.WalletAddress,
		Title:         input.Title,
		Description:   input.Description,
		Category:      input.Category,
		Price:         input.Price,
		ImageURL:      input.ImageURL,
		Verdict:       verdict,
		Embedding:     embedding,
	})
	if err != nil {
		return persist.NFT{}, err
	}

	a.scheduleIndexing(ctx, created, embedding)

	return created, nil
}

func (a *API) scheduleIndexing(ctx context.Context, nft persist.NFT, embedding persist.EmbeddingVector) {
	if a.Index == nil || a.Tasks == nil || embedding.Dimension() == 0 {
		return
	}

	entry := similarity.Entry{
		NFTID:    nft.ID,
		Vector:   embedding,
		Name:     nft.Title.String(),
		Creator:  nft.WalletAddress.String(),
		ImageURL: nft.ImageURL.String(),
		StoredAt: time.Now(),
	}

	err := a.Tasks.Submit(ctx, "index-embedding", func(taskCtx context.Context) error {
		return a.Index.Upsert(taskCtx, entry)
	})
	if err != nil {
		// Indexing is advisory; the verdict stands without it
		logger.For(ctx).Warnf("could not schedule embedding indexing for %s: %s", nft.ID, err)
	}
}

// GetByID returns an NFT by its ID
func (a *API) GetByID(ctx context.Context, id persist.DBID) (persist.NFT, error) {
	return a.NFTs.GetByID(ctx, id)
}

// GetByWallet returns the NFTs owned by a wallet
func (a *API) GetByWallet(ctx context.Context, wallet persist.WalletAddress) ([]persist.NFT, error) {
	return a.NFTs.GetByWallet(ctx, wallet)
}

// Marketplace returns a filtered page of NFTs plus the total match count
func (a *API) Marketplace(ctx context.Context, filter persist.MarketplaceFilter) ([]persist.NFT, int64, error) {
	return a.NFTs.Marketplace(ctx, filter)
}

// ConfirmMint transitions an NFT to minted under its on-chain object id
func (a *API) ConfirmMint(ctx context.Context, id persist.DBID, suiObjectID string) (persist.NFT, error) {
	nft, err := a.NFTs.ConfirmMint(ctx, id, suiObjectID)
	if err != nil {
		return persist.NFT{}, err
	}

	if a.Notifier != nil && a.Tasks != nil {
		if err := a.Tasks.Submit(ctx, "notify-minted", func(taskCtx context.Context) error {
			return a.Notifier.NotifyMinted(taskCtx, nft)
		}); err != nil {
			logger.For(ctx).Warnf("could not schedule mint notification for %s: %s", nft.ID, err)
		}
	}

	return nft, nil
}

// List opens an active listing for a minted NFT
func (a *API) List(ctx context.Context, input persist.ListingCreateInput) (persist.Listing, error) {
	return a.Listings.Create(ctx, input)
}

// Unlist closes the NFT's active listing
func (a *API) Unlist(ctx context.Context, nftID persist.DBID) (persist.Listing, error) {
	return a.Listings.Deactivate(ctx, nftID)
}

// UpdateListing mutates the NFT's active listing
func (a *API) UpdateListing(ctx context.Context, nftID persist.DBID, input persist.ListingUpdateInput) (persist.Listing, error) {
	return a.Listings.Update(ctx, nftID, input)
}

// DeleteListing soft deletes a listing by its ID
func (a *API) DeleteListing(ctx context.Context, listingID persist.DBID) error {
	return a.Listings.SoftDelete(ctx, listingID)
}

// AutoRelist relists an unlisted NFT; listing an already listed NFT conflicts
func (a *API) AutoRelist(ctx context.Context, input persist.ListingCreateInput) (persist.Listing, error) {
	return a.Listings.Create(ctx, input)
}

// BulkListFailure names one NFT that could not be listed and why
type BulkListFailure struct {
	NFTID  persist.DBID `json:"nft_id"`
	Reason string       `json:"reason"`
}

// BulkListResult partitions a bulk listing into the ids that listed and the
// ones that failed.
type BulkListResult struct {
	Successful []persist.DBID    `json:"successful"`
	Failed     []BulkListFailure `json:"failed"`
}

// BulkList lists each NFT best-effort; failures do not roll back successes.
// The partition preserves the input order.
func (a *API) BulkList(ctx context.Context, nftIDs []persist.DBID, price decimal.Decimal, expiresAt *time.Time) (BulkListResult, error) {
	type outcome struct {
		nftID persist.DBID
		err   error
	}
	outcomes := make([]outcome, len(nftIDs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(bulkListConcurrency)

	var mu sync.Mutex
	for i, nftID := range nftIDs {
		i, nftID := i, nftID
		eg.Go(func() error {
			_, err := a.Listings.Create(egCtx, persist.ListingCreateInput{
				NFTID:     nftID,
				Price:     price,
				ExpiresAt: expiresAt,
			})
			mu.Lock()
			outcomes[i] = outcome{nftID: nftID, err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return BulkListResult{}, err
	}

	result := BulkListResult{Successful: []persist.DBID{}, Failed: []BulkListFailure{}}
	for _, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, BulkListFailure{NFTID: o.nftID, Reason: o.err.Error()})
		} else {
			result.Successful = append(result.Successful, o.nftID)
		}
	}
	return result, nil
}

// History returns the NFT's full listing ledger
func (a *API) History(ctx context.Context, nftID persist.DBID) ([]persist.ListingHistory, error) {
	if _, err := a.NFTs.GetByID(ctx, nftID); err != nil {
		return nil, err
	}
	return a.Listings.HistoryByNFT(ctx, nftID)
}

// Analytics returns derived listing stats for one NFT
func (a *API) Analytics(ctx context.Context, nftID persist.DBID) (persist.ListingAnalytics, error) {
	return a.Listings.AnalyticsByNFT(ctx, nftID)
}

// Similar returns the nearest indexed neighbors of an NFT's stored embedding,
// excluding the NFT itself. An unindexed NFT has no neighbors.
func (a *API) Similar(ctx context.Context, nftID persist.DBID, threshold float64, limit int) ([]persist.SimilarNFT, error) {
	if _, err := a.NFTs.GetByID(ctx, nftID); err != nil {
		return nil, err
	}
	if a.Index == nil {
		return []persist.SimilarNFT{}, nil
	}

	entry, ok, err := a.Index.Get(ctx, nftID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []persist.SimilarNFT{}, nil
	}

	// Fetch one extra so dropping self still fills the page
	matches, err := a.Index.Query(ctx, entry.Vector, threshold, limit+1)
	if err != nil {
		return nil, err
	}

	results := make([]persist.SimilarNFT, 0, limit)
	for _, match := range matches {
		if match.NFTID == nftID {
			continue
		}
		results = append(results, match)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
