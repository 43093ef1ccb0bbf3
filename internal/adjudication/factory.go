package adjudication

import (
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/localization"
	"fmt"
	"strings"
)

// NewFromConfig picks the adjudicator variant once, at construction.
// The http provider requires a base URL, as Config.Validate does.
func NewFromConfig(cfg config.AdjudicatorConfig, loc *localization.Localizer) (Adjudicator, error) {
	if cfg.Provider != config.ProviderHTTP {
		return NewHeuristicAdjudicator(loc), nil
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("adjudication: provider %q needs a base URL", cfg.Provider)
	}

	prompts := DefaultPrompts()
	if cfg.PromptFile != "" {
		p, err := LoadPrompts(cfg.PromptFile)
		if err != nil {
			return nil, err
		}
		prompts = p
	}

	opts := []HTTPOption{WithPrompts(prompts)}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	a, err := NewHTTPAdjudicator(cfg.BaseURL, cfg.APIKey, cfg.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("adjudication: %w", err)
	}
	return a, nil
}
