package persist

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestFlagTypeJSON(t *testing.T) {
	t.Run("none marshals as null", func(t *testing.T) {
		raw, err := json.Marshal(FlagTypeNone)
		require.NoError(t, err)
		assert.Equal(t, "null", string(raw))
	})

	t.Run("flagged values marshal as integers", func(t *testing.T) {
		raw, err := json.Marshal(FlagTypePlagiarism)
		require.NoError(t, err)
		assert.Equal(t, "1", string(raw))
	})

	t.Run("unmarshals integers, names, and null", func(t *testing.T) {
		cases := []struct {
			in   string
			want FlagType
		}{
			{"null", FlagTypeNone},
			{"0", FlagTypeNone},
			{"2", FlagTypeSuspiciousActivity},
			{"9", FlagTypeNone},
			{`"plagiarism"`, FlagTypePlagiarism},
			{`"ai_generated"`, FlagTypeAIGenerated},
			{`"something_else"`, FlagTypeNone},
		}
		for _, tc := range cases {
			var f FlagType
			require.NoError(t, json.Unmarshal([]byte(tc.in), &f), tc.in)
			assert.Equal(t, tc.want, f, tc.in)
		}
	})

	t.Run("string names", func(t *testing.T) {
		assert.Equal(t, "none", FlagTypeNone.String())
		assert.Equal(t, "plagiarism", FlagTypePlagiarism.String())
		assert.Equal(t, "suspicious_activity", FlagTypeSuspiciousActivity.String())
		assert.Equal(t, "fake_metadata", FlagTypeFakeMetadata.String())
		assert.Equal(t, "ai_generated", FlagTypeAIGenerated.String())
	})
}

func TestEmbeddingVector(t *testing.T) {
	t.Run("round trips through the driver encoding", func(t *testing.T) {
		vec := EmbeddingVector{0.1, -0.2, 0.3}
		value, err := vec.Value()
		require.NoError(t, err)

		var scanned EmbeddingVector
		require.NoError(t, scanned.Scan(value))
		assert.Equal(t, vec, scanned)
	})

	t.Run("empty vector stores as null", func(t *testing.T) {
		value, err := EmbeddingVector(nil).Value()
		require.NoError(t, err)
		assert.Nil(t, value)

		var scanned EmbeddingVector
		require.NoError(t, scanned.Scan(nil))
		assert.Nil(t, scanned)
		assert.Equal(t, 0, scanned.Dimension())
	})
}

func TestVisionEvidenceHidesEmbedding(t *testing.T) {
	evidence := VisionEvidence{
		Description: "a sunset",
		Embedding:   EmbeddingVector{0.1, 0.2},
	}
	raw, err := json.Marshal(evidence)
	require.NoError(t, err)

	decoded := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "Embedding")
	assert.NotContains(t, decoded, "embedding")
	assert.Equal(t, "a sunset", decoded["description"])
}

func TestAnalysisDetailsRoundTrip(t *testing.T) {
	flag := FlagTypePlagiarism
	details := AnalysisDetails{
		ImageAnalysis: VisionEvidence{
			Description: "copied work",
			RiskLevel:   RiskLevelHigh,
			FraudIndicators: map[string]FraudIndicator{
				"copied_artwork": {Detected: true, Confidence: 0.9, Evidence: "matches"},
			},
			OverallFraudScore: 0.9,
			Embedding:         EmbeddingVector{1, 2, 3},
		},
		SimilarityResults: SimilarityEvidence{
			SimilarNFTs:     []SimilarNFT{{NFTID: "other", Similarity: 0.97, ImageURL: "https://x/img.png"}},
			MaxSimilarity:   0.97,
			IsDuplicate:     true,
			SimilarityCount: 1,
		},
		MetadataAnalysis: MetadataEvidence{QualityScore: 0.4, MetadataRisk: 0.6, SuspiciousIndicators: []string{"generic title"}},
		LLMDecision: Decision{
			IsFraud:         true,
			ConfidenceScore: 0.92,
			FlagType:        &flag,
			Reason:          "near duplicate",
			Recommendation:  RecommendationBlock,
		},
		AnalysisTimestamp: time.Now().UTC().Truncate(time.Second),
	}

	value, err := details.Value()
	require.NoError(t, err)

	var scanned AnalysisDetails
	require.NoError(t, scanned.Scan(value))

	assert.Equal(t, details.ImageAnalysis.Description, scanned.ImageAnalysis.Description)
	assert.Equal(t, details.SimilarityResults, scanned.SimilarityResults)
	assert.Equal(t, details.MetadataAnalysis, scanned.MetadataAnalysis)
	assert.True(t, scanned.LLMDecision.IsFraud)
	require.NotNil(t, scanned.LLMDecision.FlagType)
	assert.Equal(t, FlagTypePlagiarism, *scanned.LLMDecision.FlagType)
	assert.True(t, details.AnalysisTimestamp.Equal(scanned.AnalysisTimestamp))

	// the in-memory embedding never reaches the stored document
	assert.Nil(t, scanned.ImageAnalysis.Embedding)
}

func TestNullStringValue(t *testing.T) {
	value, err := NullString("hello\\u0000world").Value()
	require.NoError(t, err)
	assert.Equal(t, "helloworld", value)

	var scanned NullString
	require.NoError(t, scanned.Scan(nil))
	assert.Equal(t, "", scanned.String())
}

func TestListingMetadataScan(t *testing.T) {
	meta := ListingMetadata{"source": "auto_relist", "attempt": float64(2)}
	value, err := meta.Value()
	require.NoError(t, err)

	var scanned ListingMetadata
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, meta, scanned)

	var fromNil ListingMetadata
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}
