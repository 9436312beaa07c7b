package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/service/persist"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
)

const (
	requestTimeout = 30 * time.Second

	defaultTextModel      = openai.GPT4TurboPreview
	defaultVisionModel    = openai.GPT4VisionPreview
	defaultEmbeddingModel = string(openai.SmallEmbedding3)

	defaultMaxConcurrent = 16
)

// Client implements the vision, text, and embedding provider contracts on
// top of the OpenAI API. One client is shared across all pipelines; a
// weighted semaphore caps in-flight requests.
type Client struct {
	client *openai.Client
	sem    *semaphore.Weighted

	textModel      string
	visionModel    string
	embeddingModel string
	dimension      int
}

// NewClient builds a provider client from the environment. It returns nil
// when OPENAI_API_KEY is unset, which disables every model-backed stage.
func NewClient(ctx context.Context) *Client {
	apiKey := env.GetString(ctx, "OPENAI_API_KEY")
	if apiKey == "" {
		logger.For(ctx).Warn("OPENAI_API_KEY not set, model providers disabled")
		return nil
	}

	maxConcurrent := env.GetInt(ctx, "PROVIDER_MAX_CONCURRENT")
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	c := &Client{
		client:         openai.NewClient(apiKey),
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		textModel:      env.GetString(ctx, "OPENAI_TEXT_MODEL"),
		visionModel:    env.GetString(ctx, "OPENAI_VISION_MODEL"),
		embeddingModel: env.GetString(ctx, "OPENAI_EMBEDDING_MODEL"),
		dimension:      env.GetInt(ctx, "EMBEDDING_DIMENSION"),
	}
	if c.textModel == "" {
		c.textModel = defaultTextModel
	}
	if c.visionModel == "" {
		c.visionModel = defaultVisionModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultEmbeddingModel
	}
	if c.dimension <= 0 {
		c.dimension = 768
	}
	return c
}

// acquire blocks until a request slot is free or the context is done
func (c *Client) acquire(ctx context.Context) (release func(), err error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.sem.Release(1) }, nil
}

// AnalyzeImage submits a prompt plus a base64 JPEG to the vision model and
// returns the raw completion text.
func (c *Client) AnalyzeImage(ctx context.Context, prompt string, imageBase64 string) (string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.visionModel,
		Temperature: 0.1,
		MaxTokens:   1000,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/jpeg;base64," + imageBase64,
				}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Complete submits a single-shot text prompt and returns the raw completion
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.textModel,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("text completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("text completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed maps text to a fixed-dimension vector
func (c *Client) Embed(ctx context.Context, text string) (persist.EmbeddingVector, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: empty response")
	}

	raw := resp.Data[0].Embedding
	vector := make(persist.EmbeddingVector, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}

	if vector.Dimension() != c.dimension {
		return nil, persist.ErrInvalidDimension{Want: c.dimension, Got: vector.Dimension()}
	}
	return vector, nil
}
