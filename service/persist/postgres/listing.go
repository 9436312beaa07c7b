package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/shopspring/decimal"
)

const listingColumns = `ID,CREATED_AT,LAST_UPDATED,NFT_ID,SELLER_ID,PRICE,EXPIRES_AT,STATUS,BLOCKCHAIN_TX_ID,METADATA`

const historyColumns = `ID,LISTING_ID,NFT_ID,ACTION,OLD_PRICE,NEW_PRICE,SELLER_ID,BLOCKCHAIN_TX_ID,TIMESTAMP`

// ListingRepository is a repository that stores listings and their history
// ledger in a postgres database. Every lifecycle mutation locks the NFT row
// first, so concurrent operations on the same NFT serialize, and writes its
// ledger row in the same transaction.
type ListingRepository struct {
	db *sql.DB

	getByIDStmt        *sql.Stmt
	getActiveByNFTStmt *sql.Stmt
	historyByNFTStmt   *sql.Stmt
}

// NewListingRepository creates a new postgres repository for interacting with listings
func NewListingRepository(db *sql.DB) *ListingRepository {
	ctx, cancel := context.WithTimeout(context.Background(), creationTimeout)
	defer cancel()

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE ID = $1;`)
	checkNoErr(err)

	getActiveByNFTStmt, err := db.PrepareContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE NFT_ID = $1 AND STATUS = 'active';`)
	checkNoErr(err)

	historyByNFTStmt, err := db.PrepareContext(ctx, `SELECT `+historyColumns+` FROM listing_history WHERE NFT_ID = $1 ORDER BY TIMESTAMP DESC, ID DESC;`)
	checkNoErr(err)

	return &ListingRepository{
		db:                 db,
		getByIDStmt:        getByIDStmt,
		getActiveByNFTStmt: getActiveByNFTStmt,
		historyByNFTStmt:   historyByNFTStmt,
	}
}

func scanListing(row interface {
	Scan(dest ...interface{}) error
}) (persist.Listing, error) {
	l := persist.Listing{}
	err := row.Scan(&l.ID, &l.CreationTime, &l.LastUpdatedTime, &l.NFTID, &l.SellerID, &l.Price,
		&l.ExpiresAt, &l.Status, &l.BlockchainTxID, &l.Metadata)
	return l, err
}

// lockNFT locks the NFT row for the rest of the transaction and returns its
// lifecycle fields.
func lockNFT(ctx context.Context, tx *sql.Tx, nftID persist.DBID) (status persist.NFTStatus, ownerID persist.DBID, err error) {
	err = tx.QueryRowContext(ctx, `SELECT STATUS,OWNER_ID FROM nfts WHERE ID = $1 AND DELETED = false FOR UPDATE;`, nftID).Scan(&status, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		err = persist.ErrNFTNotFoundByID{ID: nftID}
	}
	return status, ownerID, err
}

func insertHistory(ctx context.Context, tx *sql.Tx, h persist.ListingHistory) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO listing_history (ID,LISTING_ID,NFT_ID,ACTION,OLD_PRICE,NEW_PRICE,SELLER_ID,BLOCKCHAIN_TX_ID) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`,
		persist.GenerateID(), h.ListingID, h.NFTID, h.Action, h.OldPrice, h.NewPrice, h.SellerID, h.BlockchainTxID)
	return err
}

func setNFTListingState(ctx context.Context, tx *sql.Tx, nftID persist.DBID, listed bool, price decimal.NullDecimal, status persist.ListingStatus, touchLastListed bool) error {
	if touchLastListed {
		_, err := tx.ExecContext(ctx, `UPDATE nfts SET IS_LISTED = $2, LISTING_PRICE = $3, LISTING_STATUS = $4, LAST_LISTED_AT = now(), LAST_UPDATED = now() WHERE ID = $1;`,
			nftID, listed, price, status)
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE nfts SET IS_LISTED = $2, LISTING_PRICE = $3, LISTING_STATUS = $4, LAST_UPDATED = now() WHERE ID = $1;`,
		nftID, listed, price, status)
	return err
}

// Create opens an active listing for a minted, currently unlisted NFT. The
// NFT's denormalized listing fields are updated and a created ledger row is
// written, all in one transaction.
func (r *ListingRepository) Create(ctx context.Context, input persist.ListingCreateInput) (persist.Listing, error) {
	var listing persist.Listing
	err := runTx(ctx, r.db, func(tx *sql.Tx) error {
		status, ownerID, err := lockNFT(ctx, tx, input.NFTID)
		if err != nil {
			return err
		}
		if status != persist.NFTStatusMinted {
			return persist.ErrNotMinted{NFTID: input.NFTID, Status: status}
		}

		var existing persist.DBID
		err = tx.QueryRowContext(ctx, `SELECT ID FROM listings WHERE NFT_ID = $1 AND STATUS = 'active';`, input.NFTID).Scan(&existing)
		if err == nil {
			return persist.ErrAlreadyListed{NFTID: input.NFTID}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var expiresAt sql.NullTime
		if input.ExpiresAt != nil {
			expiresAt = sql.NullTime{Time: *input.ExpiresAt, Valid: true}
		}

		listing, err = scanListing(tx.QueryRowContext(ctx, `INSERT INTO listings (ID,NFT_ID,SELLER_ID,PRICE,EXPIRES_AT,STATUS,METADATA) VALUES ($1,$2,$3,$4,$5,'active',$6) RETURNING `+listingColumns+`;`,
			persist.GenerateID(), input.NFTID, ownerID, input.Price, expiresAt, input.Metadata))
		if err != nil {
			return err
		}

		if err := insertHistory(ctx, tx, persist.ListingHistory{
			ListingID: listing.ID,
			NFTID:     listing.NFTID,
			Action:    persist.HistoryActionCreated,
			NewPrice:  decimal.NullDecimal{Decimal: listing.Price, Valid: true},
			SellerID:  listing.SellerID,
		}); err != nil {
			return err
		}

		return setNFTListingState(ctx, tx, listing.NFTID, true, decimal.NullDecimal{Decimal: listing.Price, Valid: true}, persist.ListingStatusActive, true)
	})
	if err != nil {
		return persist.Listing{}, err
	}
	return listing, nil
}

// Deactivate closes the NFT's active listing, writing a deleted ledger row
// and clearing the NFT's listing fields.
func (r *ListingRepository) Deactivate(ctx context.Context, nftID persist.DBID) (persist.Listing, error) {
	var listing persist.Listing
	err := runTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, err := lockNFT(ctx, tx, nftID); err != nil {
			return err
		}

		var err error
		listing, err = scanListing(tx.QueryRowContext(ctx, `UPDATE listings SET STATUS = 'inactive', LAST_UPDATED = now() WHERE NFT_ID = $1 AND STATUS = 'active' RETURNING `+listingColumns+`;`, nftID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persist.ErrNoActiveListing{NFTID: nftID}
			}
			return err
		}

		if err := insertHistory(ctx, tx, persist.ListingHistory{
			ListingID: listing.ID,
			NFTID:     listing.NFTID,
			Action:    persist.HistoryActionDeleted,
			OldPrice:  decimal.NullDecimal{Decimal: listing.Price, Valid: true},
			SellerID:  listing.SellerID,
		}); err != nil {
			return err
		}

		return setNFTListingState(ctx, tx, nftID, false, decimal.NullDecimal{}, persist.ListingStatusInactive, false)
	})
	if err != nil {
		return persist.Listing{}, err
	}
	return listing, nil
}

// Update mutates the NFT's active listing in place. Nil fields keep their
// current values. A price change is recorded in the ledger with both old and
// new prices and mirrored onto the NFT row.
func (r *ListingRepository) Update(ctx context.Context, nftID persist.DBID, input persist.ListingUpdateInput) (persist.Listing, error) {
	var listing persist.Listing
	err := runTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, err := lockNFT(ctx, tx, nftID); err != nil {
			return err
		}

		current, err := scanListing(tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE NFT_ID = $1 AND STATUS = 'active' FOR UPDATE;`, nftID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persist.ErrNoActiveListing{NFTID: nftID}
			}
			return err
		}

		price := current.Price
		if input.Price != nil {
			price = *input.Price
		}
		expiresAt := current.ExpiresAt
		if input.ExpiresAt != nil {
			expiresAt = sql.NullTime{Time: *input.ExpiresAt, Valid: true}
		}
		metadata := current.Metadata
		if input.Metadata != nil {
			metadata = input.Metadata
		}

		listing, err = scanListing(tx.QueryRowContext(ctx, `UPDATE listings SET PRICE = $2, EXPIRES_AT = $3, METADATA = $4, LAST_UPDATED = now() WHERE ID = $1 RETURNING `+listingColumns+`;`,
			current.ID, price, expiresAt, metadata))
		if err != nil {
			return err
		}

		if err := insertHistory(ctx, tx, persist.ListingHistory{
			ListingID: listing.ID,
			NFTID:     listing.NFTID,
			Action:    persist.HistoryActionUpdated,
			OldPrice:  decimal.NullDecimal{Decimal: current.Price, Valid: true},
			NewPrice:  decimal.NullDecimal{Decimal: listing.Price, Valid: true},
			SellerID:  listing.SellerID,
		}); err != nil {
			return err
		}

		return setNFTListingState(ctx, tx, nftID, true, decimal.NullDecimal{Decimal: listing.Price, Valid: true}, persist.ListingStatusActive, false)
	})
	if err != nil {
		return persist.Listing{}, err
	}
	return listing, nil
}

// SoftDelete marks a listing deleted by ID. The row is retained for the
// ledger. Deleting a deleted listing is an error; the NFT's listing fields
// are cleared only when the deleted listing was the active one.
func (r *ListingRepository) SoftDelete(ctx context.Context, listingID persist.DBID) error {
	return runTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanListing(tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE ID = $1 FOR UPDATE;`, listingID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persist.ErrListingNotFound{ID: listingID}
			}
			return err
		}
		if current.Status == persist.ListingStatusDeleted {
			return persist.ErrListingDeleted{ID: listingID}
		}

		// A soft deleted NFT no longer locks, but its listings can still be
		// cleaned up
		if _, _, err := lockNFT(ctx, tx, current.NFTID); err != nil {
			var notFound persist.ErrNFTNotFoundByID
			if !errors.As(err, &notFound) {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE listings SET STATUS = 'deleted', LAST_UPDATED = now() WHERE ID = $1;`, listingID); err != nil {
			return err
		}

		if err := insertHistory(ctx, tx, persist.ListingHistory{
			ListingID: current.ID,
			NFTID:     current.NFTID,
			Action:    persist.HistoryActionDeleted,
			OldPrice:  decimal.NullDecimal{Decimal: current.Price, Valid: true},
			SellerID:  current.SellerID,
		}); err != nil {
			return err
		}

		if current.Status == persist.ListingStatusActive {
			return setNFTListingState(ctx, tx, current.NFTID, false, decimal.NullDecimal{}, persist.ListingStatusInactive, false)
		}
		return nil
	})
}

// GetByID returns a listing by its ID
func (r *ListingRepository) GetByID(ctx context.Context, id persist.DBID) (persist.Listing, error) {
	listing, err := scanListing(r.getByIDStmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persist.Listing{}, persist.ErrListingNotFound{ID: id}
		}
		return persist.Listing{}, err
	}
	return listing, nil
}

// GetActiveByNFT returns the NFT's single active listing
func (r *ListingRepository) GetActiveByNFT(ctx context.Context, nftID persist.DBID) (persist.Listing, error) {
	listing, err := scanListing(r.getActiveByNFTStmt.QueryRowContext(ctx, nftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persist.Listing{}, persist.ErrNoActiveListing{NFTID: nftID}
		}
		return persist.Listing{}, err
	}
	return listing, nil
}

// HistoryByNFT returns the NFT's full listing ledger, newest first
func (r *ListingRepository) HistoryByNFT(ctx context.Context, nftID persist.DBID) ([]persist.ListingHistory, error) {
	rows, err := r.historyByNFTStmt.QueryContext(ctx, nftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []persist.ListingHistory{}
	for rows.Next() {
		h := persist.ListingHistory{}
		if err := rows.Scan(&h.ID, &h.ListingID, &h.NFTID, &h.Action, &h.OldPrice, &h.NewPrice, &h.SellerID, &h.BlockchainTxID, &h.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// AnalyticsByNFT aggregates the NFT's listings into summary metrics. Active
// listings count their age against now; ended listings use their lifetime.
func (r *ListingRepository) AnalyticsByNFT(ctx context.Context, nftID persist.DBID) (persist.ListingAnalytics, error) {
	a := persist.ListingAnalytics{NFTID: nftID}

	err := r.db.QueryRowContext(ctx, `SELECT
			count(*),
			count(*) FILTER (WHERE STATUS = 'active'),
			count(*) FILTER (WHERE STATUS = 'sold'),
			COALESCE(avg(PRICE), 0),
			min(PRICE),
			max(PRICE),
			COALESCE(sum(PRICE), 0),
			COALESCE(avg(EXTRACT(EPOCH FROM (CASE WHEN STATUS = 'active' THEN now() ELSE LAST_UPDATED END) - CREATED_AT) / 3600), 0)
		FROM listings WHERE NFT_ID = $1;`, nftID).
		Scan(&a.TotalListings, &a.ActiveListings, &a.SoldListings, &a.AveragePrice, &a.MinPrice, &a.MaxPrice, &a.TotalPriceVolume, &a.AvgActiveHours)
	if err != nil {
		return persist.ListingAnalytics{}, err
	}

	if a.TotalListings > 0 {
		a.SuccessRate = float64(a.SoldListings) / float64(a.TotalListings)
	}
	a.CurrentlyListed = a.ActiveListings > 0

	err = r.db.QueryRowContext(ctx, `SELECT LAST_LISTED_AT FROM nfts WHERE ID = $1 AND DELETED = false;`, nftID).Scan(&a.LastListedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persist.ListingAnalytics{}, persist.ErrNFTNotFoundByID{ID: nftID}
		}
		return persist.ListingAnalytics{}, err
	}

	return a, nil
}
