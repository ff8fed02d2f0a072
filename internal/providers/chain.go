package providers

import (
	"github.com/mohammad-safakhou/wxbrief/config"
	"github.com/mohammad-safakhou/wxbrief/internal/httpx"
)

// Chain builds the provider order from configuration: every configured
// OpenRouter model in order, then Gemini as the deep fallback. Retry pacing
// belongs to the router, so the HTTP client underneath makes single attempts.
func Chain(cfg config.ProvidersConfig) ([]Provider, error) {
	client := httpx.NewClient(cfg.AttemptTimeout, 0, 0)
	var chain []Provider
	if cfg.OpenRouter.APIKey != "" {
		for _, model := range cfg.OpenRouter.Models {
			chain = append(chain, NewOpenRouter(client, cfg.OpenRouter.BaseURL, cfg.OpenRouter.APIKey, model))
		}
	}
	if cfg.Gemini.APIKey != "" {
		g, err := NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		chain = append(chain, g)
	}
	return chain, nil
}
