package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
)

// ClaudeBackend generates content through the Anthropic API, caching one
// client per API key.
type ClaudeBackend struct {
	mu        sync.Mutex
	clients   map[string]*anthropic.Client
	maxTokens int
	logger    arbor.ILogger
}

// NewClaudeBackend creates a Claude backend. maxTokens is the default output
// budget applied when a request does not set its own.
func NewClaudeBackend(maxTokens int, logger arbor.ILogger) *ClaudeBackend {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ClaudeBackend{
		clients:   make(map[string]*anthropic.Client),
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Name returns the provider name used in logs and usage accounting
func (b *ClaudeBackend) Name() string {
	return "claude"
}

func (b *ClaudeBackend) client(apiKey string) *anthropic.Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	if client, ok := b.clients[apiKey]; ok {
		return client
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	b.clients[apiKey] = &client
	return &client
}

// Generate runs one message call with the given credential and model
func (b *ClaudeBackend) Generate(ctx context.Context, apiKey, model string, req *Request) (string, Usage, error) {
	client := b.client(apiKey)

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", Usage{}, classifyAPIError(err, model)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", Usage{}, fmt.Errorf("empty text in Claude response")
	}

	usage := Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	return text, usage, nil
}
