package persist

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// NFTStatus is the lifecycle state of an NFT
type NFTStatus string

const (
	// NFTStatusPending is the state between creation and on-chain confirmation
	NFTStatusPending NFTStatus = "pending"
	// NFTStatusMinted means the on-chain counterpart exists
	NFTStatusMinted NFTStatus = "minted"
	// NFTStatusDeleted is terminal; the row is retained
	NFTStatusDeleted NFTStatus = "deleted"
)

// FlagType classifies a fraud verdict. The integer values are the wire
// representation; zero means not flagged and marshals as null.
type FlagType int

const (
	FlagTypeNone               FlagType = 0
	FlagTypePlagiarism         FlagType = 1
	FlagTypeSuspiciousActivity FlagType = 2
	FlagTypeFakeMetadata       FlagType = 3
	FlagTypeAIGenerated        FlagType = 4
)

func (f FlagType) String() string {
	switch f {
	case FlagTypePlagiarism:
		return "plagiarism"
	case FlagTypeSuspiciousActivity:
		return "suspicious_activity"
	case FlagTypeFakeMetadata:
		return "fake_metadata"
	case FlagTypeAIGenerated:
		return "ai_generated"
	default:
		return "none"
	}
}

// MarshalJSON emits the integer wire value, or null when not flagged
func (f FlagType) MarshalJSON() ([]byte, error) {
	if f == FlagTypeNone {
		return []byte("null"), nil
	}
	return json.Marshal(int(f))
}

// UnmarshalJSON accepts an integer, a known name, or null
func (f *FlagType) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = FlagTypeNone
		return nil
	}
	var i int
	if err := json.Unmarshal(b, &i); err == nil {
		if i < int(FlagTypeNone) || i > int(FlagTypeAIGenerated) {
			*f = FlagTypeNone
			return nil
		}
		*f = FlagType(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "plagiarism":
		*f = FlagTypePlagiarism
	case "suspicious_activity":
		*f = FlagTypeSuspiciousActivity
	case "fake_metadata":
		*f = FlagTypeFakeMetadata
	case "ai_generated":
		*f = FlagTypeAIGenerated
	default:
		*f = FlagTypeNone
	}
	return nil
}

// Value implements the database/sql driver Valuer interface for the FlagType type
func (f FlagType) Value() (driver.Value, error) {
	return int64(f), nil
}

// Scan implements the database/sql Scanner interface for the FlagType type
func (f *FlagType) Scan(value interface{}) error {
	if value == nil {
		*f = FlagTypeNone
		return nil
	}
	*f = FlagType(value.(int64))
	return nil
}

// NFT is the central marketplace entity
type NFT struct {
	ID              DBID            `json:"id"`
	CreationTime    CreationTime    `json:"created_at"`
	LastUpdatedTime LastUpdatedTime `json:"last_updated"`

	OwnerID       DBID          `json:"owner_id"`
	WalletAddress WalletAddress `json:"wallet_address"`

	Title       NullString      `json:"title"`
	Description NullString      `json:"description"`
	Category    NullString      `json:"category"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    NullString      `json:"image_url"`

	SuiObjectID NullString `json:"sui_object_id"`
	Status      NFTStatus  `json:"status"`

	IsFraud         bool            `json:"is_fraud"`
	ConfidenceScore float64         `json:"confidence_score"`
	FlagType        FlagType        `json:"flag_type"`
	Reason          NullString      `json:"reason"`
	EvidenceURLs    []string        `json:"evidence_urls"`
	AnalysisDetails AnalysisDetails `json:"analysis_details"`

	EmbeddingVector EmbeddingVector `json:"-"`

	IsListed      bool                `json:"is_listed"`
	ListingPrice  decimal.NullDecimal `json:"listing_price"`
	ListingStatus ListingStatus       `json:"listing_status,omitempty"`
	LastListedAt  sql.NullTime        `json:"last_listed_at"`
}

// NFTCreateInput carries everything needed to persist a freshly analyzed NFT
type NFTCreateInput struct {
	OwnerID       DBID
	WalletAddress WalletAddress
	Title         string
	Description   string
	Category      string
	Price         decimal.Decimal
	ImageURL      string

	Verdict   Verdict
	Embedding EmbeddingVector
}

// MarketplaceFilter narrows the paginated browse query
type MarketplaceFilter struct {
	Search         string
	MinPrice       *decimal.Decimal
	MaxPrice       *decimal.Decimal
	Category       string
	IncludeFlagged bool
	IncludePending bool
	Page           int
	Limit          int
}

// NFTRepository represents the interface for interacting with persisted NFTs
type NFTRepository interface {
	Create(context.Context, NFTCreateInput) (NFT, error)
	GetByID(context.Context, DBID) (NFT, error)
	GetByWallet(context.Context, WalletAddress) ([]NFT, error)
	ConfirmMint(ctx context.Context, id DBID, suiObjectID string) (NFT, error)
	Marketplace(context.Context, MarketplaceFilter) ([]NFT, int64, error)
	UpdateVerdict(ctx context.Context, id DBID, verdict Verdict) error
	UpdateEmbedding(ctx context.Context, id DBID, embedding EmbeddingVector) error
}

// ErrNFTNotFoundByID is returned when an NFT is not found by its ID
type ErrNFTNotFoundByID struct {
	ID DBID
}

func (e ErrNFTNotFoundByID) Error() string {
	return fmt.Sprintf("nft not found by id: %s", e.ID)
}

// ErrMintConflict is returned when confirm-mint addresses an NFT already
// minted under a different on-chain object id.
type ErrMintConflict struct {
	ID          DBID
	SuiObjectID string
}

func (e ErrMintConflict) Error() string {
	return fmt.Sprintf("nft %s already minted with a different object id than %s", e.ID, e.SuiObjectID)
}

// ErrNotMintable is returned when confirm-mint addresses a deleted NFT
type ErrNotMintable struct {
	ID     DBID
	Status NFTStatus
}

func (e ErrNotMintable) Error() string {
	return fmt.Sprintf("nft %s cannot be minted from status %s", e.ID, e.Status)
}
