package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerr "github.com/TheMonk2121/rehydrate/internal/errors"
)

const testHTTPDims = 8

// newEmbedServer serves a minimal Ollama-compatible embedding API.
func newEmbedServer(t *testing.T, requestCount *int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		if requestCount != nil {
			*requestCount++
		}

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var texts []string
		switch v := req.Input.(type) {
		case string:
			texts = []string{v}
		case []any:
			for _, item := range v {
				texts = append(texts, item.(string))
			}
		}

		embeddings := make([][]float32, len(texts))
		for i, text := range texts {
			vec := make([]float32, testHTTPDims)
			vec[int(text[0])%testHTTPDims] = 1.0
			embeddings[i] = vec
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: embeddings})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEmbedder_DetectsDimensions(t *testing.T) {
	srv := newEmbedServer(t, nil)

	e, err := NewHTTPEmbedder(context.Background(), HTTPConfig{
		Endpoint: srv.URL,
		Model:    "test-model",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, testHTTPDims, e.Dimensions())
	assert.Equal(t, "test-model", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestHTTPEmbedder_Embed(t *testing.T) {
	srv := newEmbedServer(t, nil)

	e, err := NewHTTPEmbedder(context.Background(), HTTPConfig{
		Endpoint:   srv.URL,
		Model:      "test-model",
		Dimensions: testHTTPDims,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "query text")
	require.NoError(t, err)
	require.Len(t, v, testHTTPDims)

	// Blank input short-circuits to a zero vector without a request
	zero, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range zero {
		assert.Zero(t, x)
	}
}

func TestHTTPEmbedder_BatchChunking(t *testing.T) {
	var requests int
	srv := newEmbedServer(t, &requests)

	e, err := NewHTTPEmbedder(context.Background(), HTTPConfig{
		Endpoint:   srv.URL,
		Model:      "test-model",
		Dimensions: testHTTPDims,
		BatchSize:  2,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	requests = 0
	texts := []string{"a", "b", "c", "d", "e"}
	results, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, 3, requests, "5 texts at batch size 2 should take 3 requests")
}

func TestHTTPEmbedder_ServiceUnreachable(t *testing.T) {
	_, err := NewHTTPEmbedder(context.Background(), HTTPConfig{
		Endpoint: "http://127.0.0.1:1",
		Model:    "test-model",
	})
	require.Error(t, err)
	assert.Equal(t, rerr.ErrCodeEmbeddingUnavailable, rerr.GetCode(err))
}

func TestHTTPEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(context.Background(), HTTPConfig{
		Endpoint:   srv.URL,
		Model:      "missing-model",
		Dimensions: testHTTPDims,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "status 404")
}

func TestHTTPEmbedder_DimensionMismatch(t *testing.T) {
	srv := newEmbedServer(t, nil)

	e, err := NewHTTPEmbedder(context.Background(), HTTPConfig{
		Endpoint:   srv.URL,
		Model:      "test-model",
		Dimensions: 32, // server returns 8
		MaxRetries: 1,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "dimension")
}

func TestHTTPEmbedder_ClosedRejectsCalls(t *testing.T) {
	srv := newEmbedServer(t, nil)

	e, err := NewHTTPEmbedder(context.Background(), HTTPConfig{
		Endpoint:   srv.URL,
		Model:      "test-model",
		Dimensions: testHTTPDims,
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestNewEmbedder_ProviderSelection(t *testing.T) {
	srv := newEmbedServer(t, nil)
	ctx := context.Background()

	static, err := NewEmbedder(ctx, "static", HTTPConfig{})
	require.NoError(t, err)
	assert.IsType(t, &StaticEmbedder{}, static)

	httpEmb, err := NewEmbedder(ctx, "http", HTTPConfig{Endpoint: srv.URL, Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPEmbedder{}, httpEmb)
	_ = httpEmb.Close()

	// Auto-detect falls back to static when the service is down
	fallback, err := NewEmbedder(ctx, "", HTTPConfig{Endpoint: "http://127.0.0.1:1", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &StaticEmbedder{}, fallback)

	_, err = NewEmbedder(ctx, "quantum", HTTPConfig{})
	assert.Error(t, err)
}
