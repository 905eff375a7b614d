// Package embedding wraps the OpenAI embeddings API behind the pipeline's
// error taxonomy, with retry and a circuit breaker on the transient path.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/knowledge"
	"github.com/tcredex/knowledge-api/pkg/circuitbreaker"
	"github.com/tcredex/knowledge-api/pkg/config"
	"github.com/tcredex/knowledge-api/pkg/retry"
)

const credentialGuidance = "the configured credential was rejected by the embedding service; " +
	"this credential class is not valid for embedding calls (an Anthropic sk-ant-... key " +
	"cannot be used here), configure an OpenAI API key with embeddings access"

// Result is one embedded text: the vector plus its share of the reported
// token usage.
type Result struct {
	Vector []float32
	Tokens int
}

type Client struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
	cb         *circuitbreaker.CircuitBreaker
	retryCfg   retry.Config
	logger     *zap.Logger
}

// New validates the credential and builds a client. A missing or malformed
// key fails here, before any network call.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &knowledge.ConfigurationError{
			Setting: "embedding.apiKey",
			Reason:  "not configured",
		}
	}
	if !strings.HasPrefix(cfg.APIKey, "sk-") {
		return nil, &knowledge.ConfigurationError{
			Setting: "embedding.apiKey",
			Reason:  `malformed key, expected the "sk-" prefix`,
		}
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cb := circuitbreaker.New("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger,
	})

	retryCfg := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		IsRetryable:    isTransient,
		Logger:         logger,
	}

	logger.Info("Embedding client initialized",
		zap.String("model", model),
		zap.Int("dimensions", cfg.Dimensions),
	)

	return &Client{
		client:     openai.NewClient(cfg.APIKey),
		model:      model,
		dimensions: cfg.Dimensions,
		timeout:    timeout,
		cb:         cb,
		retryCfg:   retryCfg,
		logger:     logger,
	}, nil
}

// Dimensions returns the expected vector width.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Embed generates the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) (Result, error) {
	results, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// EmbedQuery embeds a search query, returning only the vector.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	result, err := c.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return result.Vector, nil
}

// EmbedBatch generates embeddings for all texts in one upstream request,
// preserving input order 1:1. Token usage is divided evenly across the
// batch's inputs since the service reports only a total.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp openai.EmbeddingResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			var apiErr error
			resp, apiErr = c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(c.model),
			})
			return apiErr
		})
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, &knowledge.EmbeddingAPIError{
			Err: fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(texts)),
		}
	}

	perText := int(math.Round(float64(resp.Usage.TotalTokens) / float64(len(texts))))

	results := make([]Result, len(texts))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		copy(vector, data.Embedding)

		if c.dimensions > 0 && len(vector) != c.dimensions {
			return nil, &knowledge.EmbeddingAPIError{
				Err: fmt.Errorf("unexpected vector width %d, expected %d", len(vector), c.dimensions),
			}
		}

		// The service echoes each input's position; rely on it rather than
		// on response ordering.
		results[data.Index] = Result{Vector: vector, Tokens: perText}
	}

	c.logger.Debug("Batch embeddings generated",
		zap.Int("count", len(results)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return results, nil
}

// classify maps an upstream failure into the pipeline's error taxonomy. A
// credential rejection carries remediation guidance instead of the raw
// upstream message.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if credentialRejected(apiErr) {
			return &knowledge.EmbeddingAPIError{
				StatusCode: apiErr.HTTPStatusCode,
				Guidance:   credentialGuidance,
				Err:        err,
			}
		}
		return &knowledge.EmbeddingAPIError{
			StatusCode: apiErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &knowledge.EmbeddingAPIError{Err: err}
}

func credentialRejected(apiErr *openai.APIError) bool {
	if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 {
		return true
	}
	if code, ok := apiErr.Code.(string); ok && code == "invalid_api_key" {
		return true
	}
	return false
}

// isTransient keeps retries away from credential and request errors; only
// rate limits, server errors, and transport failures get another attempt.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return true
}
