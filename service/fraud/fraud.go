package fraud

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/service/media"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	"github.com/fraudguard-labs/fraudguard/service/similarity"
	"github.com/fraudguard-labs/fraudguard/util"
	"github.com/shopspring/decimal"
)

// VisionProvider answers a prompt about a base64-encoded JPEG
type VisionProvider interface {
	AnalyzeImage(ctx context.Context, prompt string, imageBase64 string) (string, error)
}

// TextProvider answers a single-shot completion prompt
type TextProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EmbeddingProvider maps text to a fixed-dimension vector
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) (persist.EmbeddingVector, error)
}

// Providers is the capability record the analyzer runs against. Any nil
// provider disables its stage, which then contributes neutral evidence.
type Providers struct {
	Vision VisionProvider
	Text   TextProvider
	Embed  EmbeddingProvider
	Index  similarity.Index
}

// Config carries the analyzer thresholds
type Config struct {
	// ConfidenceThreshold is the fraud boundary used by the fallback decision
	ConfidenceThreshold float64
	// SimilarityThreshold gates which index matches count as evidence
	SimilarityThreshold float64
	EmbeddingDimension  int
}

// ConfigFromEnv reads the analyzer thresholds from the environment
func ConfigFromEnv(ctx context.Context) Config {
	cfg := Config{
		ConfidenceThreshold: env.GetFloat64(ctx, "FRAUD_CONFIDENCE_THRESHOLD"),
		SimilarityThreshold: env.GetFloat64(ctx, "IMAGE_SIMILARITY_THRESHOLD"),
		EmbeddingDimension:  env.GetInt(ctx, "EMBEDDING_DIMENSION"),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.85
	}
	if c.EmbeddingDimension <= 0 {
		c.EmbeddingDimension = 768
	}
	return c
}

const (
	duplicateThreshold = similarity.DuplicateThreshold

	similarityLimit = 10

	// maxEvidenceURLs caps how many match images are surfaced in the verdict
	maxEvidenceURLs = 3
)

// NFTInput is everything the analyzer needs about a submission
type NFTInput struct {
	Title       string
	Description string
	Category    string
	Price       decimal.Decimal
	ImageURL    string
	Creator     string
}

// Analyzer runs the four-stage fraud pipeline. Each stage is a pure function
// of the input plus earlier stage outputs; provider failures degrade the
// stage to neutral evidence instead of failing the run, so Analyze always
// produces a verdict unless the context is done.
type Analyzer struct {
	providers Providers
	cfg       Config

	// fetchImage is swappable in tests
	fetchImage func(ctx context.Context, url string) (string, error)
}

// NewAnalyzer creates an analyzer over the given providers
func NewAnalyzer(providers Providers, cfg Config) *Analyzer {
	return &Analyzer{
		providers:  providers,
		cfg:        cfg.withDefaults(),
		fetchImage: media.FetchAsJPEG,
	}
}

// Analyze runs the pipeline and returns the verdict plus the embedding the
// vision stage produced, if any. The embedding is returned out of band so it
// never leaks into the persisted verdict document.
func (a *Analyzer) Analyze(ctx context.Context, input NFTInput) (persist.Verdict, persist.EmbeddingVector, error) {
	logger.For(ctx).Infof("starting fraud analysis for NFT: %s", input.Title)

	vision := a.analyzeImage(ctx, input)
	if err := ctx.Err(); err != nil {
		return persist.Verdict{}, nil, err
	}

	sim := a.checkSimilarity(ctx, vision.Embedding)
	if err := ctx.Err(); err != nil {
		return persist.Verdict{}, nil, err
	}

	meta := a.analyzeMetadata(ctx, input)
	if err := ctx.Err(); err != nil {
		return persist.Verdict{}, nil, err
	}

	decision := a.decide(ctx, input, vision, sim, meta)
	if err := ctx.Err(); err != nil {
		return persist.Verdict{}, nil, err
	}

	verdict := persist.Verdict{
		IsFraud:         decision.IsFraud,
		ConfidenceScore: decision.ConfidenceScore,
		FlagType:        util.FromPointer(decision.FlagType),
		Reason:          decision.Reason,
		EvidenceURLs:    sim.EvidenceURLs,
		Details: persist.AnalysisDetails{
			ImageAnalysis:     vision,
			SimilarityResults: sim,
			MetadataAnalysis:  meta,
			LLMDecision:       decision,
			AnalysisTimestamp: time.Now().UTC(),
		},
	}

	logger.For(ctx).Infof("fraud analysis complete: is_fraud=%t confidence=%.2f", verdict.IsFraud, verdict.ConfidenceScore)
	return verdict, vision.Embedding, nil
}

func neutralVision(errNote string) persist.VisionEvidence {
	return persist.VisionEvidence{
		RiskLevel:       persist.RiskLevelUnknown,
		FraudIndicators: map[string]persist.FraudIndicator{},
		Error:           errNote,
	}
}

func (a *Analyzer) analyzeImage(ctx context.Context, input NFTInput) persist.VisionEvidence {
	if a.providers.Vision == nil {
		return neutralVision("vision provider not configured")
	}

	imageBase64, err := a.fetchImage(ctx, input.ImageURL)
	if err != nil {
		logger.For(ctx).Warnf("image fetch failed for %s: %s", input.ImageURL, err)
		return neutralVision(fmt.Sprintf("image fetch failed: %s", err))
	}

	raw, err := a.providers.Vision.AnalyzeImage(ctx, visionPrompt(input), imageBase64)
	if err != nil {
		logger.For(ctx).Warnf("vision provider failed: %s", err)
		return neutralVision(fmt.Sprintf("vision provider failed: %s", err))
	}

	evidence, err := parseVisionEvidence(raw)
	if err != nil {
		logger.For(ctx).Warnf("vision response unparseable: %s", err)
		return neutralVision(fmt.Sprintf("vision response unparseable: %s", err))
	}

	if a.providers.Embed != nil && evidence.Description != "" {
		embedding, err := a.providers.Embed.Embed(ctx, evidence.Description)
		if err != nil {
			logger.For(ctx).Warnf("embedding provider failed: %s", err)
		} else if embedding.Dimension() == a.cfg.EmbeddingDimension {
			evidence.Embedding = embedding
		} else {
			logger.For(ctx).Warnf("embedding has dimension %d, want %d", embedding.Dimension(), a.cfg.EmbeddingDimension)
		}
	}

	return evidence
}

func parseVisionEvidence(raw string) (persist.VisionEvidence, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return persist.VisionEvidence{}, err
	}

	evidence := persist.VisionEvidence{
		Description:     asString(obj["description"], "Could not extract detailed description"),
		ArtisticStyle:   asString(obj["artistic_style"], ""),
		RiskLevel:       coerceRiskLevel(asString(obj["risk_level"], "")),
		UniquenessScore: clamp01(asFloat(obj["uniqueness_score"], 0.5)),
		FraudIndicators: map[string]persist.FraudIndicator{},
	}

	for key, value := range asObject(obj["fraud_indicators"]) {
		details := asObject(value)
		if details == nil {
			continue
		}
		evidence.FraudIndicators[key] = persist.FraudIndicator{
			Detected:   asBool(details["detected"], false),
			Confidence: clamp01(asFloat(details["confidence"], 0)),
			Evidence:   asString(details["evidence"], ""),
		}
	}

	// The overall score is always recomputed from the indicators rather than
	// trusted from the model
	score := 0.0
	for _, indicator := range evidence.FraudIndicators {
		if indicator.Detected && indicator.Confidence > score {
			score = indicator.Confidence
		}
	}
	evidence.OverallFraudScore = score

	return evidence, nil
}

func coerceRiskLevel(s string) persist.RiskLevel {
	switch persist.RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case persist.RiskLevelLow:
		return persist.RiskLevelLow
	case persist.RiskLevelMedium:
		return persist.RiskLevelMedium
	case persist.RiskLevelHigh:
		return persist.RiskLevelHigh
	case persist.RiskLevelCritical:
		return persist.RiskLevelCritical
	default:
		return persist.RiskLevelUnknown
	}
}

func (a *Analyzer) checkSimilarity(ctx context.Context, embedding persist.EmbeddingVector) persist.SimilarityEvidence {
	evidence := persist.SimilarityEvidence{SimilarNFTs: []persist.SimilarNFT{}}

	if a.providers.Index == nil {
		evidence.Error = "similarity index not configured"
		return evidence
	}
	if embedding.Dimension() == 0 {
		return evidence
	}

	matches, err := a.providers.Index.Query(ctx, embedding, a.cfg.SimilarityThreshold, similarityLimit)
	if err != nil {
		logger.For(ctx).Warnf("similarity query failed: %s", err)
		evidence.Error = fmt.Sprintf("similarity query failed: %s", err)
		return evidence
	}

	evidence.SimilarNFTs = matches
	evidence.SimilarityCount = len(matches)
	for _, match := range matches {
		if match.Similarity > evidence.MaxSimilarity {
			evidence.MaxSimilarity = match.Similarity
		}
		if match.ImageURL != "" && len(evidence.EvidenceURLs) < maxEvidenceURLs {
			evidence.EvidenceURLs = append(evidence.EvidenceURLs, match.ImageURL)
		}
	}
	evidence.IsDuplicate = evidence.MaxSimilarity > duplicateThreshold

	return evidence
}

// suspiciousKeywords trip the metadata pre-screen regardless of what the
// model says about the listing text
var suspiciousKeywords = []string{"fake", "copy", "stolen", "counterfeit"}

// dustPrice is the ceiling at and below which a listing price reads as an
// anomaly
var dustPrice = decimal.NewFromFloat(0.001)

// prescreen holds the deterministic keyword and price findings that do not
// need a model. They feed the metadata evidence on every path and floor the
// fallback decision when no model can weigh in.
type prescreen struct {
	indicators []string
	risk       float64

	// keyword is the first matched suspicious keyword, empty when none hit
	keyword   string
	dustPrice bool
}

func prescreenMetadata(input NFTInput) prescreen {
	p := prescreen{}

	text := strings.ToLower(input.Title + " " + input.Description)
	for _, keyword := range suspiciousKeywords {
		if strings.Contains(text, keyword) {
			p.indicators = append(p.indicators, fmt.Sprintf("suspicious keyword: %s", keyword))
			p.risk += 0.2
			if p.keyword == "" {
				p.keyword = keyword
			}
		}
	}
	if input.Price.LessThanOrEqual(dustPrice) {
		p.indicators = append(p.indicators, "price anomaly: near-zero listing price")
		p.risk += 0.1
		p.dustPrice = true
	}
	p.risk = clamp01(p.risk)

	return p
}

func (a *Analyzer) analyzeMetadata(ctx context.Context, input NFTInput) persist.MetadataEvidence {
	pre := prescreenMetadata(input)

	withPrescreen := func(e persist.MetadataEvidence) persist.MetadataEvidence {
		e.SuspiciousIndicators = append(e.SuspiciousIndicators, pre.indicators...)
		if pre.risk > e.MetadataRisk {
			e.MetadataRisk = pre.risk
		}
		return e
	}

	if a.providers.Text == nil {
		return withPrescreen(persist.MetadataEvidence{
			SuspiciousIndicators: []string{},
			Error:                "text provider not configured",
		})
	}

	raw, err := a.providers.Text.Complete(ctx, metadataPrompt(input))
	if err != nil {
		logger.For(ctx).Warnf("metadata analysis failed: %s", err)
		return withPrescreen(persist.MetadataEvidence{
			SuspiciousIndicators: []string{},
			Error:                fmt.Sprintf("metadata analysis failed: %s", err),
		})
	}

	obj, err := parseObject(raw)
	if err != nil {
		logger.For(ctx).Warnf("metadata response unparseable: %s", err)
		return withPrescreen(persist.MetadataEvidence{
			QualityScore:         0.5,
			MetadataRisk:         0.2,
			SuspiciousIndicators: []string{"LLM response parsing failed"},
			Analysis:             "Fallback analysis used",
		})
	}

	return withPrescreen(persist.MetadataEvidence{
		QualityScore:         clamp01(asFloat(obj["quality_score"], 0.5)),
		MetadataRisk:         clamp01(asFloat(obj["metadata_risk"], 0)),
		SuspiciousIndicators: asStringSlice(obj["suspicious_indicators"]),
		Analysis:             asString(obj["analysis"], ""),
	})
}

func (a *Analyzer) decide(ctx context.Context, input NFTInput, vision persist.VisionEvidence, sim persist.SimilarityEvidence, meta persist.MetadataEvidence) persist.Decision {
	if a.providers.Text == nil {
		return a.fallbackDecision(input, vision, sim, meta, "text provider not configured")
	}

	raw, err := a.providers.Text.Complete(ctx, decisionPrompt(input, vision, sim, meta))
	if err != nil {
		logger.For(ctx).Warnf("decision stage failed: %s", err)
		return a.fallbackDecision(input, vision, sim, meta, fmt.Sprintf("decision stage failed: %s", err))
	}

	logger.For(ctx).Debugf("decision response: %s", util.TruncateWithEllipsis(raw, 500))

	obj, err := parseObject(raw)
	if err != nil {
		logger.For(ctx).Warnf("decision response unparseable: %s", err)
		return a.fallbackDecision(input, vision, sim, meta, fmt.Sprintf("decision response unparseable: %s", err))
	}

	decision := persist.Decision{
		IsFraud:         asBool(obj["is_fraud"], false),
		ConfidenceScore: clamp01(asFloat(obj["confidence_score"], 0)),
		FlagType:        coerceFlagType(obj["flag_type"]),
		Reason:          asString(obj["reason"], "Analysis completed"),
		PrimaryConcerns: asStringSlice(obj["primary_concerns"]),
		Recommendation:  coerceRecommendation(asString(obj["recommendation"], "")),
	}

	// Models occasionally contradict themselves between the boolean and the
	// recommendation; trust the stronger signal.
	if decision.ConfidenceScore >= 0.7 && (decision.Recommendation == persist.RecommendationFlag || decision.Recommendation == persist.RecommendationBlock) {
		decision.IsFraud = true
	}
	if decision.ConfidenceScore < 0.3 && decision.Recommendation == persist.RecommendationAllow {
		decision.IsFraud = false
	}

	return decision
}

// fallbackDecision is the deterministic weighted formula used when the
// decision stage cannot run. Its confidence is capped below certainty. The
// keyword and dust-price screens floor the result: a keyword hit is flagged
// even when every other signal is neutral.
func (a *Analyzer) fallbackDecision(input NFTInput, vision persist.VisionEvidence, sim persist.SimilarityEvidence, meta persist.MetadataEvidence, errNote string) persist.Decision {
	combined := 0.5*vision.OverallFraudScore + 0.3*sim.MaxSimilarity + 0.2*meta.MetadataRisk

	var flagType *persist.FlagType
	switch {
	case combined > 0.8:
		flagType = util.ToPointer(persist.FlagTypePlagiarism)
	case combined > 0.6:
		flagType = util.ToPointer(persist.FlagTypeSuspiciousActivity)
	}

	recommendation := persist.RecommendationAllow
	if combined > 0.5 {
		recommendation = persist.RecommendationManualReview
	}

	decision := persist.Decision{
		IsFraud:         combined > a.cfg.ConfidenceThreshold,
		ConfidenceScore: math.Min(combined, 0.8),
		FlagType:        flagType,
		Reason:          fmt.Sprintf("Fallback analysis - combined risk: %.2f", combined),
		Recommendation:  recommendation,
		Fallback:        true,
		Error:           errNote,
	}

	pre := prescreenMetadata(input)
	if pre.keyword != "" {
		decision.IsFraud = true
		if decision.ConfidenceScore < 0.6 {
			decision.ConfidenceScore = 0.6
		}
		if decision.FlagType == nil {
			decision.FlagType = util.ToPointer(persist.FlagTypePlagiarism)
		}
		decision.Reason = fmt.Sprintf("Suspicious keyword detected: '%s'", pre.keyword)
		decision.Recommendation = persist.RecommendationManualReview
	}
	if pre.dustPrice {
		if decision.ConfidenceScore < 0.4 {
			decision.ConfidenceScore = 0.4
		}
		if pre.keyword == "" {
			decision.Reason = "Suspiciously low price detected"
			decision.Recommendation = persist.RecommendationManualReview
		}
	}

	return decision
}

func coerceFlagType(v interface{}) *persist.FlagType {
	switch value := v.(type) {
	case float64:
		f := persist.FlagType(int(value))
		if f > persist.FlagTypeNone && f <= persist.FlagTypeAIGenerated {
			return &f
		}
	case string:
		for f := persist.FlagTypePlagiarism; f <= persist.FlagTypeAIGenerated; f++ {
			if value == f.String() {
				flag := f
				return &flag
			}
		}
	}
	return nil
}

func coerceRecommendation(s string) persist.Recommendation {
	switch persist.Recommendation(strings.ToUpper(strings.TrimSpace(s))) {
	case persist.RecommendationAllow:
		return persist.RecommendationAllow
	case persist.RecommendationFlag:
		return persist.RecommendationFlag
	case persist.RecommendationBlock:
		return persist.RecommendationBlock
	default:
		return persist.RecommendationManualReview
	}
}
