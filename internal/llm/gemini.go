package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// GeminiBackend generates content through the Gemini API. Clients are cached
// per API key so credential rotation does not rebuild transport state on
// every call.
type GeminiBackend struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
	logger  arbor.ILogger
}

// NewGeminiBackend creates a Gemini backend with an empty client cache
func NewGeminiBackend(logger arbor.ILogger) *GeminiBackend {
	return &GeminiBackend{
		clients: make(map[string]*genai.Client),
		logger:  logger,
	}
}

// Name returns the provider name used in logs and usage accounting
func (b *GeminiBackend) Name() string {
	return "gemini"
}

func (b *GeminiBackend) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if client, ok := b.clients[apiKey]; ok {
		return client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	b.clients[apiKey] = client
	return client, nil
}

// Generate runs one content generation call with the given credential and
// model. API errors come back classified as rate-limit or model-unavailable
// outcomes where the message allows it.
func (b *GeminiBackend) Generate(ctx context.Context, apiKey, model string, req *Request) (string, Usage, error) {
	client, err := b.client(ctx, apiKey)
	if err != nil {
		return "", Usage{}, err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", Usage{}, classifyAPIError(err, model)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", Usage{}, fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return "", Usage{}, fmt.Errorf("empty text in Gemini response")
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return text, usage, nil
}
