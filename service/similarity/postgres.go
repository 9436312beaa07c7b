package similarity

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/fraudguard-labs/fraudguard/service/persist"
)

// PostgresIndex stores embeddings in the nft_embeddings table and scores
// candidates in process. The corpus is small enough that a full scan per
// query is cheaper than maintaining an approximate index.
type PostgresIndex struct {
	db        *sql.DB
	dimension int

	upsertStmt *sql.Stmt
	getStmt    *sql.Stmt
	scanStmt   *sql.Stmt
}

// NewPostgresIndex creates an Index backed by a postgres database
func NewPostgresIndex(ctx context.Context, db *sql.DB, dimension int) (*PostgresIndex, error) {
	upsertStmt, err := db.PrepareContext(ctx, `INSERT INTO nft_embeddings (NFT_ID,EMBEDDING,NAME,CREATOR,IMAGE_URL) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (NFT_ID) DO UPDATE SET EMBEDDING = EXCLUDED.EMBEDDING, NAME = EXCLUDED.NAME, CREATOR = EXCLUDED.CREATOR, IMAGE_URL = EXCLUDED.IMAGE_URL, STORED_AT = now();`)
	if err != nil {
		return nil, err
	}

	getStmt, err := db.PrepareContext(ctx, `SELECT NFT_ID,EMBEDDING,NAME,CREATOR,IMAGE_URL,STORED_AT FROM nft_embeddings WHERE NFT_ID = $1;`)
	if err != nil {
		return nil, err
	}

	scanStmt, err := db.PrepareContext(ctx, `SELECT NFT_ID,EMBEDDING,NAME,CREATOR,IMAGE_URL,STORED_AT FROM nft_embeddings;`)
	if err != nil {
		return nil, err
	}

	return &PostgresIndex{
		db:         db,
		dimension:  dimension,
		upsertStmt: upsertStmt,
		getStmt:    getStmt,
		scanStmt:   scanStmt,
	}, nil
}

// Upsert stores or replaces the entry for its NFT
func (p *PostgresIndex) Upsert(ctx context.Context, entry Entry) error {
	if err := validate(p.dimension, entry.Vector); err != nil {
		return err
	}
	_, err := p.upsertStmt.ExecContext(ctx, entry.NFTID, entry.Vector, entry.Name, entry.Creator, entry.ImageURL)
	return err
}

// Query scans the stored corpus and returns up to limit entries whose cosine
// similarity with the vector is at least threshold, most similar first. Ties
// go to the newer entry.
func (p *PostgresIndex) Query(ctx context.Context, vector persist.EmbeddingVector, threshold float64, limit int) ([]persist.SimilarNFT, error) {
	if err := validate(p.dimension, vector); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := p.scanStmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		entry      Entry
		similarity float64
	}
	matches := []scored{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if entry.Vector.Dimension() != p.dimension {
			// skip rows stored under an older dimension
			continue
		}
		sim := Cosine(vector, entry.Vector)
		if sim >= threshold {
			matches = append(matches, scored{entry: entry, similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].similarity != matches[j].similarity {
			return matches[i].similarity > matches[j].similarity
		}
		return matches[i].entry.StoredAt.After(matches[j].entry.StoredAt)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]persist.SimilarNFT, len(matches))
	for i, match := range matches {
		results[i] = persist.SimilarNFT{
			NFTID:      match.entry.NFTID,
			Similarity: match.similarity,
			ImageURL:   match.entry.ImageURL,
		}
	}
	return results, nil
}

// Get returns the stored entry for an NFT, if any
func (p *PostgresIndex) Get(ctx context.Context, nftID persist.DBID) (Entry, bool, error) {
	entry, err := scanEntry(p.getStmt.QueryRowContext(ctx, nftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return entry, true, nil
}

func scanEntry(row interface {
	Scan(dest ...interface{}) error
}) (Entry, error) {
	entry := Entry{}
	err := row.Scan(&entry.NFTID, &entry.Vector, &entry.Name, &entry.Creator, &entry.ImageURL, &entry.StoredAt)
	return entry, err
}
