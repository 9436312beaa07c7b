package persist

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus is the lifecycle state of a listing
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusInactive ListingStatus = "inactive"
	ListingStatusSold     ListingStatus = "sold"
	ListingStatusDeleted  ListingStatus = "deleted"
)

// HistoryAction is the kind of event recorded in the listing ledger
type HistoryAction string

const (
	HistoryActionCreated HistoryAction = "created"
	HistoryActionUpdated HistoryAction = "updated"
	HistoryActionDeleted HistoryAction = "deleted"
	HistoryActionExpired HistoryAction = "expired"
	HistoryActionSold    HistoryAction = "sold"
)

// ListingMetadata is a free-form blob attached to a listing
type ListingMetadata map[string]interface{}

// Value implements the database/sql driver Valuer interface for the ListingMetadata type
func (m ListingMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the database/sql Scanner interface for the ListingMetadata type
func (m *ListingMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("cannot scan %T into ListingMetadata", value)
}

// Listing is a sale offer bound to a single NFT
type Listing struct {
	ID              DBID            `json:"id"`
	CreationTime    CreationTime    `json:"created_at"`
	LastUpdatedTime LastUpdatedTime `json:"updated_at"`

	NFTID    DBID            `json:"nft_id"`
	SellerID DBID            `json:"seller_id"`
	Price    decimal.Decimal `json:"price"`

	ExpiresAt      sql.NullTime    `json:"expires_at"`
	Status         ListingStatus   `json:"status"`
	BlockchainTxID NullString      `json:"blockchain_tx_id"`
	Metadata       ListingMetadata `json:"listing_metadata,omitempty"`
}

// ListingHistory is one append-only ledger record. Rows are never mutated
// after insert.
type ListingHistory struct {
	ID        DBID `json:"id"`
	ListingID DBID `json:"listing_id"`
	NFTID     DBID `json:"nft_id"`

	Action   HistoryAction       `json:"action"`
	OldPrice decimal.NullDecimal `json:"old_price"`
	NewPrice decimal.NullDecimal `json:"new_price"`

	SellerID       DBID       `json:"seller_id"`
	BlockchainTxID NullString `json:"blockchain_tx_id"`
	Timestamp      time.Time  `json:"timestamp"`
}

// ListingCreateInput is the input to the list operation
type ListingCreateInput struct {
	NFTID     DBID
	Price     decimal.Decimal
	ExpiresAt *time.Time
	Metadata  ListingMetadata
}

// ListingUpdateInput mutates an active listing; nil fields are left unchanged
type ListingUpdateInput struct {
	Price     *decimal.Decimal
	ExpiresAt *time.Time
	Metadata  ListingMetadata
}

// ListingAnalytics is derived from all listings and history for one NFT
type ListingAnalytics struct {
	NFTID            DBID                `json:"nft_id"`
	TotalListings    int                 `json:"total_listings"`
	ActiveListings   int                 `json:"active_listings"`
	SoldListings     int                 `json:"sold_listings"`
	AveragePrice     decimal.Decimal     `json:"average_price"`
	MinPrice         decimal.NullDecimal `json:"min_price"`
	MaxPrice         decimal.NullDecimal `json:"max_price"`
	SuccessRate      float64             `json:"success_rate"`
	AvgActiveHours   float64             `json:"avg_active_hours"`
	CurrentlyListed  bool                `json:"currently_listed"`
	LastListedAt     sql.NullTime        `json:"last_listed_at"`
	TotalPriceVolume decimal.Decimal     `json:"total_price_volume"`
}

// ListingRepository represents the interface for interacting with persisted
// listings and their history ledger. Implementations must serialize lifecycle
// operations per NFT and write the history row in the same transaction as the
// listing and NFT mutations.
type ListingRepository interface {
	Create(context.Context, ListingCreateInput) (Listing, error)
	Deactivate(ctx context.Context, nftID DBID) (Listing, error)
	Update(ctx context.Context, nftID DBID, input ListingUpdateInput) (Listing, error)
	SoftDelete(ctx context.Context, listingID DBID) error
	GetByID(context.Context, DBID) (Listing, error)
	GetActiveByNFT(ctx context.Context, nftID DBID) (Listing, error)
	HistoryByNFT(ctx context.Context, nftID DBID) ([]ListingHistory, error)
	AnalyticsByNFT(ctx context.Context, nftID DBID) (ListingAnalytics, error)
}

// ErrListingNotFound is returned when a listing is not found by its ID
type ErrListingNotFound struct {
	ID DBID
}

func (e ErrListingNotFound) Error() string {
	return fmt.Sprintf("listing not found by id: %s", e.ID)
}

// ErrNoActiveListing is returned when an operation requires an active listing
// and the NFT has none.
type ErrNoActiveListing struct {
	NFTID DBID
}

func (e ErrNoActiveListing) Error() string {
	return fmt.Sprintf("nft %s has no active listing", e.NFTID)
}

// ErrAlreadyListed is returned when listing an NFT that already has an
// active listing.
type ErrAlreadyListed struct {
	NFTID DBID
}

func (e ErrAlreadyListed) Error() string {
	return fmt.Sprintf("nft %s already has an active listing", e.NFTID)
}

// ErrNotMinted is returned when listing an NFT that is not in the minted state
type ErrNotMinted struct {
	NFTID  DBID
	Status NFTStatus
}

func (e ErrNotMinted) Error() string {
	return fmt.Sprintf("nft %s cannot be listed in status %s", e.NFTID, e.Status)
}

// ErrListingDeleted is returned when deleting an already deleted listing
type ErrListingDeleted struct {
	ID DBID
}

func (e ErrListingDeleted) Error() string {
	return fmt.Sprintf("listing %s is already deleted", e.ID)
}
