package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/keypool"
	"github.com/ternarybob/aestimo/internal/tokens"
)

// NewFromConfig builds the credential pool and call executor for the
// configured provider. The returned pool is shared with the executor so
// callers can inspect availability and stats.
func NewFromConfig(cfg *common.Config, tracker *tokens.Tracker, logger arbor.ILogger) (*Executor, *keypool.Pool, error) {
	keys := cfg.ProviderAPIKeys()
	if len(keys) == 0 {
		return nil, nil, fmt.Errorf("no API keys configured for provider %s", cfg.LLM.DefaultProvider)
	}

	pool, err := keypool.New(keys, cfg.Pool, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create credential pool: %w", err)
	}

	var backend Backend
	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderClaude:
		backend = NewClaudeBackend(cfg.Claude.MaxTokens, logger)
	case common.LLMProviderGemini:
		backend = NewGeminiBackend(logger)
	default:
		return nil, nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.DefaultProvider)
	}

	executor, err := NewExecutor(pool, backend, cfg.ProviderModels(), cfg, tracker, logger)
	if err != nil {
		return nil, nil, err
	}

	return executor, pool, nil
}
