package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/config"
)

// Providers are the process-wide model handles shared by every request.
type Providers struct {
	Embedder  Embedder
	Generator Generator
}

// Ready checks both handles; a nil handle is reported as not configured.
func (p Providers) Ready(ctx context.Context) map[string]error {
	return map[string]error{
		"embedder":  Ready(ctx, p.Embedder),
		"generator": Ready(ctx, p.Generator),
	}
}

// NewProviders builds the embedding and generation clients named by cfg and
// wraps them with the configured per-call timeouts. The "hash" provider
// embeds offline and generates through an OpenAI-compatible endpoint only
// when one is configured.
func NewProviders(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (Providers, error) {
	var p Providers

	switch cfg.Provider {
	case "", "openai":
		client := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbedModel, cfg.OpenAIChatModel, cfg.Temperature)
		p.Embedder, p.Generator = client, client
	case "genai":
		client, err := NewGenAIClient(ctx, cfg.GenAIAPIKey, cfg.GenAIEmbedModel, cfg.GenAIChatModel, cfg.Temperature)
		if err != nil {
			return Providers{}, err
		}
		p.Embedder, p.Generator = client, client
	case "hash":
		p.Embedder = NewHashEmbedder(cfg.HashDimensions)
		if cfg.OpenAIAPIKey != "" || cfg.OpenAIBaseURL != "" {
			p.Generator = NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, "", cfg.OpenAIChatModel, cfg.Temperature)
		}
	default:
		return Providers{}, fmt.Errorf("unsupported ai provider: %s (use 'openai', 'genai' or 'hash')", cfg.Provider)
	}

	if logger != nil {
		fields := []zap.Field{zap.String("embedder", p.Embedder.Name())}
		if p.Generator != nil {
			fields = append(fields, zap.String("generator", p.Generator.Name()))
		} else {
			logger.Warn("no generation model configured; answers will report models unavailable")
		}
		logger.Info("model providers created", fields...)
	}

	p.Embedder = WithEmbedTimeout(p.Embedder, cfg.EmbedTimeout)
	p.Generator = WithGenerateTimeout(p.Generator, cfg.GenerateTimeout)
	return p, nil
}
