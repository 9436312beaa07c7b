package persist

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel is the vision stage's coarse risk classification
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
	RiskLevelUnknown  RiskLevel = "unknown"
)

// Recommendation is the decision stage's suggested enforcement action
type Recommendation string

const (
	RecommendationAllow        Recommendation = "ALLOW"
	RecommendationFlag         Recommendation = "FLAG"
	RecommendationBlock        Recommendation = "BLOCK"
	RecommendationManualReview Recommendation = "MANUAL_REVIEW"
)

// FraudIndicator is one named signal within the vision evidence
type FraudIndicator struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// VisionEvidence is the typed output of the vision stage. The embedding is
// carried in memory only and never serialized into the verdict document.
type VisionEvidence struct {
	Description       string                    `json:"description"`
	ArtisticStyle     string                    `json:"artistic_style,omitempty"`
	OverallFraudScore float64                   `json:"overall_fraud_score"`
	RiskLevel         RiskLevel                 `json:"risk_level"`
	FraudIndicators   map[string]FraudIndicator `json:"fraud_indicators"`
	UniquenessScore   float64                   `json:"uniqueness_score"`
	Error             string                    `json:"error,omitempty"`

	Embedding EmbeddingVector `json:"-"`
}

// SimilarNFT is one match returned by the similarity stage
type SimilarNFT struct {
	NFTID      DBID    `json:"nft_id"`
	Similarity float64 `json:"similarity"`
	ImageURL   string  `json:"image_url,omitempty"`
}

// SimilarityEvidence is the typed output of the similarity stage
type SimilarityEvidence struct {
	SimilarNFTs     []SimilarNFT `json:"similar_nfts"`
	MaxSimilarity   float64      `json:"max_similarity"`
	IsDuplicate     bool         `json:"is_duplicate"`
	SimilarityCount int          `json:"similarity_count"`
	EvidenceURLs    []string     `json:"evidence_urls,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// MetadataEvidence is the typed output of the metadata stage
type MetadataEvidence struct {
	QualityScore         float64  `json:"quality_score"`
	MetadataRisk         float64  `json:"metadata_risk"`
	SuspiciousIndicators []string `json:"suspicious_indicators"`
	Analysis             string   `json:"analysis,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// Decision is the typed output of the decision stage. FlagType is a pointer
// so that an explicit null from the model is distinguishable from "none".
type Decision struct {
	IsFraud         bool           `json:"is_fraud"`
	ConfidenceScore float64        `json:"confidence_score"`
	FlagType        *FlagType      `json:"flag_type"`
	Reason          string         `json:"reason"`
	PrimaryConcerns []string       `json:"primary_concerns,omitempty"`
	Recommendation  Recommendation `json:"recommendation"`
	Fallback        bool           `json:"fallback,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// AnalysisDetails is the verdict document persisted alongside the NFT. It is
// a typed record in memory and a single JSONB document at rest.
type AnalysisDetails struct {
	ImageAnalysis     VisionEvidence     `json:"image_analysis"`
	SimilarityResults SimilarityEvidence `json:"similarity_results"`
	MetadataAnalysis  MetadataEvidence   `json:"metadata_analysis"`
	LLMDecision       Decision           `json:"llm_decision"`
	AnalysisTimestamp time.Time          `json:"analysis_timestamp"`
}

// Value implements the database/sql driver Valuer interface for the AnalysisDetails type
func (a AnalysisDetails) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the database/sql Scanner interface for the AnalysisDetails type
func (a *AnalysisDetails) Scan(value interface{}) error {
	if value == nil {
		*a = AnalysisDetails{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return fmt.Errorf("cannot scan %T into AnalysisDetails", value)
}

// Verdict is the analyzer's complete decision record for one NFT
type Verdict struct {
	IsFraud         bool            `json:"is_fraud"`
	ConfidenceScore float64         `json:"confidence_score"`
	FlagType        FlagType        `json:"flag_type"`
	Reason          string          `json:"reason"`
	EvidenceURLs    []string        `json:"evidence_urls"`
	Details         AnalysisDetails `json:"analysis_details"`
}
