package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/lib/pq"
)

const nftColumns = `ID,CREATED_AT,LAST_UPDATED,OWNER_ID,WALLET_ADDRESS,TITLE,DESCRIPTION,CATEGORY,PRICE,IMAGE_URL,SUI_OBJECT_ID,STATUS,IS_FRAUD,CONFIDENCE_SCORE,FLAG_TYPE,REASON,EVIDENCE_URLS,ANALYSIS_DETAILS,IS_LISTED,LISTING_PRICE,LISTING_STATUS,LAST_LISTED_AT`

// NFTRepository is a repository that stores NFTs in a postgres database
type NFTRepository struct {
	db *sql.DB

	createStmt          *sql.Stmt
	getByIDStmt         *sql.Stmt
	getByWalletStmt     *sql.Stmt
	updateVerdictStmt   *sql.Stmt
	updateEmbeddingStmt *sql.Stmt
}

// NewNFTRepository creates a new postgres repository for interacting with NFTs
func NewNFTRepository(db *sql.DB) *NFTRepository {
	ctx, cancel := context.WithTimeout(context.Background(), creationTimeout)
	defer cancel()

	createStmt, err := db.PrepareContext(ctx, `INSERT INTO nfts (ID,OWNER_ID,WALLET_ADDRESS,TITLE,DESCRIPTION,CATEGORY,PRICE,IMAGE_URL,STATUS,IS_FRAUD,CONFIDENCE_SCORE,FLAG_TYPE,REASON,EVIDENCE_URLS,ANALYSIS_DETAILS,EMBEDDING_VECTOR)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING `+nftColumns+`;`)
	checkNoErr(err)

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT `+nftColumns+` FROM nfts WHERE ID = $1 AND DELETED = false;`)
	checkNoErr(err)

	getByWalletStmt, err := db.PrepareContext(ctx, `SELECT `+nftColumns+` FROM nfts WHERE WALLET_ADDRESS = $1 AND DELETED = false ORDER BY CREATED_AT DESC;`)
	checkNoErr(err)

	updateVerdictStmt, err := db.PrepareContext(ctx, `UPDATE nfts SET IS_FRAUD = $2, CONFIDENCE_SCORE = $3, FLAG_TYPE = $4, REASON = $5, EVIDENCE_URLS = $6, ANALYSIS_DETAILS = $7, LAST_UPDATED = now() WHERE ID = $1 AND DELETED = false;`)
	checkNoErr(err)

	updateEmbeddingStmt, err := db.PrepareContext(ctx, `UPDATE nfts SET EMBEDDING_VECTOR = $2, LAST_UPDATED = now() WHERE ID = $1 AND DELETED = false;`)
	checkNoErr(err)

	return &NFTRepository{
		db:                  db,
		createStmt:          createStmt,
		getByIDStmt:         getByIDStmt,
		getByWalletStmt:     getByWalletStmt,
		updateVerdictStmt:   updateVerdictStmt,
		updateEmbeddingStmt: updateEmbeddingStmt,
	}
}

func scanNFT(row interface {
	Scan(dest ...interface{}) error
}) (persist.NFT, error) {
	nft := persist.NFT{}
	err := row.Scan(&nft.ID, &nft.CreationTime, &nft.LastUpdatedTime, &nft.OwnerID, &nft.WalletAddress,
		&nft.Title, &nft.Description, &nft.Category, &nft.Price, &nft.ImageURL,
		&nft.SuiObjectID, &nft.Status, &nft.IsFraud, &nft.ConfidenceScore, &nft.FlagType,
		&nft.Reason, pq.Array(&nft.EvidenceURLs), &nft.AnalysisDetails,
		&nft.IsListed, &nft.ListingPrice, &nft.ListingStatus, &nft.LastListedAt)
	return nft, err
}

// Create persists an NFT together with its fraud verdict and embedding in a
// single insert, so a readable row always carries its analysis outcome.
func (n *NFTRepository) Create(ctx context.Context, input persist.NFTCreateInput) (persist.NFT, error) {
	v := input.Verdict
	row := n.createStmt.QueryRowContext(ctx, persist.GenerateID(), input.OwnerID, input.WalletAddress,
		input.Title, input.Description, input.Category, input.Price, input.ImageURL,
		persist.NFTStatusPending, v.IsFraud, v.ConfidenceScore, v.FlagType, v.Reason,
		pq.Array(v.EvidenceURLs), v.Details, input.Embedding)
	return scanNFT(row)
}

// GetByID returns an NFT by its ID
func (n *NFTRepository) GetByID(ctx context.Context, id persist.DBID) (persist.NFT, error) {
	nft, err := scanNFT(n.getByIDStmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persist.NFT{}, persist.ErrNFTNotFoundByID{ID: id}
		}
		return persist.NFT{}, err
	}
	return nft, nil
}

// GetByWallet returns all NFTs owned by the given wallet address, newest first
func (n *NFTRepository) GetByWallet(ctx context.Context, wallet persist.WalletAddress) ([]persist.NFT, error) {
	rows, err := n.getByWalletStmt.QueryContext(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nfts := []persist.NFT{}
	for rows.Next() {
		nft, err := scanNFT(rows)
		if err != nil {
			return nil, err
		}
		nfts = append(nfts, nft)
	}
	return nfts, rows.Err()
}

// ConfirmMint transitions a pending NFT to minted under the given on-chain
// object id. The NFT row is locked for the duration of the transaction so
// concurrent confirmations serialize. Re-confirming with the same object id is
// a no-op; a different object id is a conflict. Any active listing is
// deactivated, leaving the NFT unlisted.
func (n *NFTRepository) ConfirmMint(ctx context.Context, id persist.DBID, suiObjectID string) (persist.NFT, error) {
	var nft persist.NFT
	err := runTx(ctx, n.db, func(tx *sql.Tx) error {
		var status persist.NFTStatus
		var current sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT STATUS,SUI_OBJECT_ID FROM nfts WHERE ID = $1 AND DELETED = false FOR UPDATE;`, id).Scan(&status, &current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persist.ErrNFTNotFoundByID{ID: id}
			}
			return err
		}

		switch status {
		case persist.NFTStatusMinted:
			if current.Valid && current.String == suiObjectID {
				// already confirmed with this object id
				break
			}
			return persist.ErrMintConflict{ID: id, SuiObjectID: suiObjectID}
		case persist.NFTStatusPending:
			if _, err := tx.ExecContext(ctx, `UPDATE nfts SET STATUS = $2, SUI_OBJECT_ID = $3, IS_LISTED = false, LISTING_STATUS = $4, LAST_UPDATED = now() WHERE ID = $1;`,
				id, persist.NFTStatusMinted, suiObjectID, persist.ListingStatusInactive); err != nil {
				// another NFT already holds this object id
				if isUniqueViolation(err) {
					return persist.ErrMintConflict{ID: id, SuiObjectID: suiObjectID}
				}
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE listings SET STATUS = $2, LAST_UPDATED = now() WHERE NFT_ID = $1 AND STATUS = $3;`,
				id, persist.ListingStatusInactive, persist.ListingStatusActive); err != nil {
				return err
			}
		default:
			return persist.ErrNotMintable{ID: id, Status: status}
		}

		nft, err = scanNFT(tx.QueryRowContext(ctx, `SELECT `+nftColumns+` FROM nfts WHERE ID = $1;`, id))
		return err
	})
	if err != nil {
		return persist.NFT{}, err
	}
	return nft, nil
}

// Marketplace returns a page of browsable NFTs plus the total count matching
// the filter. Flagged and pending NFTs are hidden unless explicitly included.
func (n *NFTRepository) Marketplace(ctx context.Context, filter persist.MarketplaceFilter) ([]persist.NFT, int64, error) {
	where := []string{"DELETED = false", "STATUS != 'deleted'"}
	args := []interface{}{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IncludeFlagged {
		where = append(where, "IS_FRAUD = false")
	}
	if !filter.IncludePending {
		where = append(where, fmt.Sprintf("STATUS = %s", arg(persist.NFTStatusMinted)))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(TITLE ILIKE %s OR DESCRIPTION ILIKE %s)", p, p))
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("CATEGORY = %s", arg(filter.Category)))
	}
	if filter.MinPrice != nil {
		where = append(where, fmt.Sprintf("PRICE >= %s", arg(*filter.MinPrice)))
	}
	if filter.MaxPrice != nil {
		where = append(where, fmt.Sprintf("PRICE <= %s", arg(*filter.MaxPrice)))
	}

	clause := strings.Join(where, " AND ")

	var total int64
	if err := n.db.QueryRowContext(ctx, `SELECT count(*) FROM nfts WHERE `+clause+`;`, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := fmt.Sprintf(`SELECT %s FROM nfts WHERE %s ORDER BY CREATED_AT DESC LIMIT %s OFFSET %s;`,
		nftColumns, clause, arg(limit), arg((page-1)*limit))

	rows, err := n.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	nfts := []persist.NFT{}
	for rows.Next() {
		nft, err := scanNFT(rows)
		if err != nil {
			return nil, 0, err
		}
		nfts = append(nfts, nft)
	}
	return nfts, total, rows.Err()
}

// UpdateVerdict replaces the fraud verdict fields of an NFT
func (n *NFTRepository) UpdateVerdict(ctx context.Context, id persist.DBID, verdict persist.Verdict) error {
	res, err := n.updateVerdictStmt.ExecContext(ctx, id, verdict.IsFraud, verdict.ConfidenceScore, verdict.FlagType, verdict.Reason, pq.Array(verdict.EvidenceURLs), verdict.Details)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return persist.ErrNFTNotFoundByID{ID: id}
	}
	return nil
}

// UpdateEmbedding replaces the stored embedding vector of an NFT
func (n *NFTRepository) UpdateEmbedding(ctx context.Context, id persist.DBID, embedding persist.EmbeddingVector) error {
	res, err := n.updateEmbeddingStmt.ExecContext(ctx, id, embedding)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return persist.ErrNFTNotFoundByID{ID: id}
	}
	return nil
}
