package ai

import (
	"context"
	"time"

	"taskpilot/internal/adapters/config"
	"taskpilot/pkg/errors"
)

// NewProvider creates the chat provider selected by configuration.
func NewProvider(ctx context.Context, cfg config.AIConfig, timeout time.Duration) (ChatProvider, error) {
	switch cfg.Provider {
	case providerNameGemini:
		return NewGeminiProvider(ctx, cfg.GeminiKey, cfg.RateLimitRPM)
	case providerNameOpenAI:
		return NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBase, cfg.RateLimitRPM, timeout), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown AI provider: %s", cfg.Provider)
	}
}
