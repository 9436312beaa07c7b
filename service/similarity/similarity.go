package similarity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fraudguard-labs/fraudguard/service/persist"
	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultLimit caps the number of neighbors returned by a query
	DefaultLimit = 10

	// DuplicateThreshold marks a neighbor as a near duplicate
	DuplicateThreshold = 0.95
)

// ErrZeroVector is returned when an all-zero vector is indexed or queried;
// cosine similarity is undefined for it.
var ErrZeroVector = errors.New("similarity: zero vector")

// Entry is a stored embedding with the metadata surfaced in match results
type Entry struct {
	NFTID    persist.DBID
	Vector   persist.EmbeddingVector
	Name     string
	Creator  string
	ImageURL string
	StoredAt time.Time
}

// Index is a nearest-neighbor search over NFT embeddings
type Index interface {
	Upsert(ctx context.Context, entry Entry) error
	Query(ctx context.Context, vector persist.EmbeddingVector, threshold float64, limit int) ([]persist.SimilarNFT, error)
	Get(ctx context.Context, nftID persist.DBID) (Entry, bool, error)
}

// Cosine returns the cosine similarity of two equal-length vectors
func Cosine(a, b []float64) float64 {
	dot := floats.Dot(a, b)
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func validate(dimension int, vector persist.EmbeddingVector) error {
	if got := vector.Dimension(); got != dimension {
		return persist.ErrInvalidDimension{Want: dimension, Got: got}
	}
	for _, v := range vector {
		if v != 0 {
			return nil
		}
	}
	return ErrZeroVector
}

// MemoryIndex is an in-process Index, used when no database is wired and as
// the fixture store in tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[persist.DBID]Entry
}

// NewMemoryIndex creates an empty in-process index for vectors of the given dimension
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		entries:   map[persist.DBID]Entry{},
	}
}

// Upsert stores or replaces the entry for its NFT
func (m *MemoryIndex) Upsert(ctx context.Context, entry Entry) error {
	if err := validate(m.dimension, entry.Vector); err != nil {
		return err
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.NFTID] = entry
	return nil
}

// Query returns up to limit entries whose cosine similarity with the vector
// is at least threshold, most similar first. Ties go to the newer entry.
func (m *MemoryIndex) Query(ctx context.Context, vector persist.EmbeddingVector, threshold float64, limit int) ([]persist.SimilarNFT, error) {
	if err := validate(m.dimension, vector); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	m.mu.RLock()
	type scored struct {
		entry      Entry
		similarity float64
	}
	matches := make([]scored, 0, len(m.entries))
	for _, entry := range m.entries {
		sim := Cosine(vector, entry.Vector)
		if sim >= threshold {
			matches = append(matches, scored{entry: entry, similarity: sim})
		}
	}
	m.mu.RUnlock()

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
func (m *MemoryIndex) Get(ctx context.Context, nftID persist.DBID) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[nftID]
	return entry, ok, nil
}
