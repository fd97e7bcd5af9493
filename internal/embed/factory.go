package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NewEmbedder creates an embedder for the named provider.
// Provider "http" requires a reachable embedding service; "static" always
// works offline. An empty provider auto-detects: HTTP if the service
// responds, otherwise static.
func NewEmbedder(ctx context.Context, provider string, cfg HTTPConfig) (Embedder, error) {
	switch strings.ToLower(provider) {
	case "static":
		return NewStaticEmbedder(), nil

	case "http":
		return NewHTTPEmbedder(ctx, cfg)

	case "":
		e, err := NewHTTPEmbedder(ctx, cfg)
		if err == nil {
			return e, nil
		}
		slog.Debug("embedding_service_unavailable_falling_back",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("error", err.Error()))
		return NewStaticEmbedder(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", provider)
	}
}
