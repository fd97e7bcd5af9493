package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rerr "github.com/TheMonk2121/rehydrate/internal/errors"
)

// DefaultEndpoint is the default embedding service endpoint.
const DefaultEndpoint = "http://localhost:11434"

// httpPoolSize is the connection pool size for the embedding client.
const httpPoolSize = 4

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// Endpoint is the embedding service base URL.
	Endpoint string
	// Model is the embedding model name.
	Model string
	// Dimensions is the vector dimension (0 = auto-detect).
	Dimensions int
	// BatchSize is texts per request.
	BatchSize int
	// Timeout bounds a single embedding request.
	Timeout time.Duration
	// MaxRetries is retry attempts for transient failures.
	MaxRetries int
	// MaxQPS caps requests per second (0 = unlimited).
	MaxQPS float64
	// SkipHealthCheck skips the startup probe (testing).
	SkipHealthCheck bool
}

// HTTPEmbedder generates embeddings via an Ollama-compatible HTTP API.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport // kept for connection cleanup
	limiter   *rate.Limiter
	config    HTTPConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*HTTPEmbedder)(nil)

// embedRequest is the request body for /api/embed.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// embedResponse is the response body from /api/embed.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEmbedder creates an embedder backed by an external embedding service.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	// Short IdleConnTimeout: CLI runs are short-lived and connections
	// should be cleaned up quickly after interrupt.
	transport := &http.Transport{
		MaxIdleConns:        httpPoolSize,
		MaxIdleConnsPerHost: httpPoolSize,
		MaxConnsPerHost:     httpPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   false,
	}

	// No http.Client.Timeout: it would override the per-request context
	// timeouts used below.
	client := &http.Client{
		Transport: transport,
	}

	var limiter *rate.Limiter
	if cfg.MaxQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxQPS), 1)
	}

	e := &HTTPEmbedder{
		client:    client,
		transport: transport,
		limiter:   limiter,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		if !e.probe(checkCtx) {
			transport.CloseIdleConnections()
			return nil, rerr.New(rerr.ErrCodeEmbeddingUnavailable,
				fmt.Sprintf("embedding service unreachable at %s", cfg.Endpoint), nil).
				WithSuggestion("start the embedding service or set embeddings.provider to 'static'")
		}

		// Auto-detect dimensions from a probe embedding
		if cfg.Dimensions == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = dims
		}
	}

	if e.dims == 0 {
		e.dims = StaticDimensions
	}

	return e, nil
}

// probe checks if the embedding service responds.
func (e *HTTPEmbedder) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// detectDimensions auto-detects embedding dimensions from a test embedding.
func (e *HTTPEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(embeddings[0]), nil
}

// Embed generates embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.doEmbedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		results = append(results, batch...)
	}

	return results, nil
}

// doEmbedWithRetry wraps doEmbed with exponential backoff.
func (e *HTTPEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := rerr.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	return rerr.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
}

// doEmbed performs a single embedding request.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	body, err := json.Marshal(embedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(result.Embeddings))
	}

	for i, emb := range result.Embeddings {
		if len(emb) != e.dims && e.dims != 0 {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(emb), e.dims)
		}
	}

	return result.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	return e.modelName
}

// Available checks if the embedding service responds.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	return e.probe(checkCtx)
}

// Close releases resources.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
