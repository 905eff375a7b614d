package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/knowledge"
	"github.com/tcredex/knowledge-api/pkg/circuitbreaker"
	"github.com/tcredex/knowledge-api/pkg/config"
	"github.com/tcredex/knowledge-api/pkg/retry"
)

func TestNewRejectsMissingKey(t *testing.T) {
	_, err := New(config.EmbeddingConfig{}, zap.NewNop())

	var configErr *knowledge.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "embedding.apiKey", configErr.Setting)
}

func TestNewRejectsMalformedKey(t *testing.T) {
	// An Anthropic-style key is caught before any network call.
	for _, key := range []string{"api-key-123", "Bearer abc", "pk-test"} {
		_, err := New(config.EmbeddingConfig{APIKey: key}, zap.NewNop())

		var configErr *knowledge.ConfigurationError
		require.ErrorAs(t, err, &configErr, "key %q should be rejected", key)
	}
}

func TestNewAcceptsValidKey(t *testing.T) {
	client, err := New(config.EmbeddingConfig{
		APIKey:     "sk-test-key",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, 1536, client.Dimensions())
}

func TestClassifyCredentialRejection(t *testing.T) {
	upstream := &openai.APIError{
		HTTPStatusCode: 401,
		Message:        "Incorrect API key provided",
	}

	err := classify(upstream)

	var apiErr *knowledge.EmbeddingAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.CredentialRejected())
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "sk-ant")
	// The raw upstream message is replaced by guidance but kept in the
	// chain.
	assert.True(t, errors.Is(err, upstream) || errors.As(err, &upstream))
}

func TestClassifyInvalidKeyCode(t *testing.T) {
	err := classify(&openai.APIError{
		HTTPStatusCode: 400,
		Code:           "invalid_api_key",
	})

	var apiErr *knowledge.EmbeddingAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.CredentialRejected())
}

func TestClassifyServerError(t *testing.T) {
	err := classify(&openai.APIError{HTTPStatusCode: 503})

	var apiErr *knowledge.EmbeddingAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.CredentialRejected())
	assert.Equal(t, 503, apiErr.StatusCode)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limit", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 500}, true},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"network failure", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isTransient(tt.err))
		})
	}
}

func newTestClient(t *testing.T, baseURL string, dims int) *Client {
	t.Helper()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = baseURL + "/v1"

	return &Client{
		client:     openai.NewClientWithConfig(cfg),
		model:      string(openai.SmallEmbedding3),
		dimensions: dims,
		timeout:    5 * time.Second,
		cb:         circuitbreaker.New("embedding-test", circuitbreaker.Config{}),
		retryCfg: retry.Config{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
			IsRetryable:  isTransient,
		},
		logger: zap.NewNop(),
	}
}

func TestEmbedBatchPreservesOrderAndSplitsTokens(t *testing.T) {
	// The service echoes each input's index; return the data out of order to
	// make sure placement relies on it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 2, "embedding": [0.3, 0.3, 0.3]},
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.1, 0.1]},
				{"object": "embedding", "index": 1, "embedding": [0.2, 0.2, 0.2]}
			],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 30, "total_tokens": 30}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)

	results, err := c.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []float32{0.1, 0.1, 0.1}, results[0].Vector)
	assert.Equal(t, []float32{0.2, 0.2, 0.2}, results[1].Vector)
	assert.Equal(t, []float32{0.3, 0.3, 0.3}, results[2].Vector)

	for _, result := range results {
		assert.Equal(t, 10, result.Tokens)
	}
}

func TestEmbedBatchRejectsWrongVectorWidth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 5, "total_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)

	_, err := c.EmbedBatch(context.Background(), []string{"only"})

	var apiErr *knowledge.EmbeddingAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Error(), "vector width")
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", 3)

	results, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}
