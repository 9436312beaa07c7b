package fraud

import (
	"fmt"
	"strings"

	"github.com/fraudguard-labs/fraudguard/service/persist"
)

func visionPrompt(input NFTInput) string {
	creator := input.Creator
	if creator == "" {
		creator = "Unknown"
	}
	description := input.Description
	if description == "" {
		description = "No description"
	}

	return fmt.Sprintf(`You are an expert NFT fraud detection analyst. Analyze this NFT image for potential fraud indicators.

NFT Metadata:
- Name: %s
- Creator: %s
- Description: %s
- Category: %s

Please provide a detailed analysis in the following JSON format:

{
    "description": "Detailed visual description of the image (minimum 100 words)",
    "artistic_style": "Art style classification (e.g., pixel art, 3D render, photography, digital art, etc.)",
    "fraud_indicators": {
        "low_effort_generation": {"detected": true/false, "confidence": 0.0-1.0, "evidence": "Specific visual evidence"},
        "stolen_artwork": {"detected": true/false, "confidence": 0.0-1.0, "evidence": "Signs of watermarks, inconsistent styles, etc."},
        "ai_generated": {"detected": true/false, "confidence": 0.0-1.0, "evidence": "AI generation artifacts, inconsistencies"},
        "template_usage": {"detected": true/false, "confidence": 0.0-1.0, "evidence": "Generic templates, common patterns"},
        "metadata_mismatch": {"detected": true/false, "confidence": 0.0-1.0, "evidence": "Image doesn't match claimed description/name"},
        "copyright_violation": {"detected": true/false, "confidence": 0.0-1.0, "evidence": "Recognizable copyrighted characters or logos"},
        "inappropriate_content": {"detected": true/false, "confidence": 0.0-1.0, "evidence": "Content policy concerns"}
    },
    "overall_fraud_score": 0.0-1.0,
    "risk_level": "low/medium/high/critical",
    "uniqueness_score": 0.0-1.0,
    "recommendation": "clear recommendation based on analysis"
}

Focus on identifying:
1. Signs of plagiarism or stolen content
2. Low-effort AI generation
3. Template reuse
4. Metadata inconsistencies
5. Quality and artistic merit
6. Uniqueness and originality

Be thorough but concise. Provide specific evidence for each fraud indicator.`,
		input.Title, creator, description, input.Category)
}

func metadataPrompt(input NFTInput) string {
	return fmt.Sprintf(`Analyze this NFT metadata for fraud indicators:

Name: %s
Description: %s
Category: %s
Price: %s

Look for:
1. Low-quality or generic descriptions
2. Suspicious keywords indicating fraud
3. Price anomalies
4. Inconsistencies in naming and description

Respond in JSON format:
{
    "quality_score": 0.0-1.0,
    "suspicious_indicators": ["list of concerns"],
    "metadata_risk": 0.0-1.0,
    "analysis": "brief explanation"
}`,
		input.Title, input.Description, input.Category, input.Price.String())
}

func decisionPrompt(input NFTInput, vision persist.VisionEvidence, sim persist.SimilarityEvidence, meta persist.MetadataEvidence) string {
	indicators := []string{}
	for key, indicator := range vision.FraudIndicators {
		if indicator.Detected {
			indicators = append(indicators, fmt.Sprintf("%s (%.2f)", key, indicator.Confidence))
		}
	}

	return fmt.Sprintf(`You are an expert NFT fraud detection AI. Based on comprehensive analysis, determine if this NFT is fraudulent.

NFT Information:
Name: %s
Description: %s
Category: %s
Price: %s

Analysis Results:

Image Analysis:
- Fraud Score: %.2f
- Risk Level: %s
- Detected Indicators: [%s]

Similarity Analysis:
- Max Similarity: %.2f
- Similar NFTs Found: %d
- Is Duplicate: %t

Metadata Analysis:
- Quality Score: %.2f
- Suspicious Indicators: [%s]
- Metadata Risk: %.2f

Based on this comprehensive analysis, make a final fraud determination.

Respond in JSON format:
{
    "is_fraud": true/false,
    "confidence_score": 0.0-1.0,
    "flag_type": 1-4 (1=plagiarism, 2=suspicious_activity, 3=fake_metadata, 4=ai_generated) or null,
    "reason": "clear explanation of decision",
    "primary_concerns": ["list of main issues"],
    "recommendation": "ALLOW/FLAG/BLOCK/MANUAL_REVIEW"
}`,
		input.Title, input.Description, input.Category, input.Price.String(),
		vision.OverallFraudScore, vision.RiskLevel, strings.Join(indicators, ", "),
		sim.MaxSimilarity, len(sim.SimilarNFTs), sim.IsDuplicate,
		meta.QualityScore, strings.Join(meta.SuspiciousIndicators, ", "), meta.MetadataRisk)
}
