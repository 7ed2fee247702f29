// Package llm wraps the chat-completion and embedding endpoints behind small
// interfaces so the engine and tool server never touch provider SDK types.
// The concrete implementation uses github.com/sashabaranov/go-openai and
// speaks to either Azure OpenAI (deployment-based routing) or the plain
// OpenAI API, chosen from config.
package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ecomops/opsloop/pkg/config"
)

// ErrNotConfigured is returned by the disabled client wired in when no LLM
// credentials are present. Callers treat it like any other LLM failure and
// fall back to their deterministic paths.
var ErrNotConfigured = errors.New("llm not configured")

// Client produces a completion for a system+user prompt pair. The engine
// depends on this interface only; tests inject scripted fakes.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Embedder turns text into a vector. Only the tool server uses it (incident
// memory storage and similarity search).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// chatAPI captures the subset of the go-openai client the adapter uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIClient implements Client and Embedder over the OpenAI-compatible
// chat-completions API.
type OpenAIClient struct {
	api            chatAPI
	model          string
	temperature    float32
	embeddingModel string
}

var _ Client = (*OpenAIClient)(nil)
var _ Embedder = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from config. A non-empty Deployment routes
// through Azure OpenAI: the deployment name replaces the model in the URL
// path, so the mapper ignores the requested model entirely.
func NewOpenAIClient(cfg config.LLMConfig, emb config.EmbeddingConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	var clientCfg openai.ClientConfig
	switch {
	case cfg.Deployment != "":
		if cfg.Endpoint == "" {
			return nil, errors.New("llm: deployment set but endpoint missing")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Deployment
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	case cfg.Endpoint != "":
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		clientCfg.BaseURL = cfg.Endpoint
	default:
		clientCfg = openai.DefaultConfig(cfg.APIKey)
	}

	return &OpenAIClient{
		api:            openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		temperature:    cfg.Temperature,
		embeddingModel: emb.Model,
	}, nil
}

// Complete sends a two-message chat (system + user) and returns the first
// choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for a single text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response carried no data")
	}
	return resp.Data[0].Embedding, nil
}

// Disabled is a Client/Embedder that always reports ErrNotConfigured. Wired
// in when no API key is present so the planner, synthesizer and memory store
// run their fallback paths instead of panicking on a nil client.
type Disabled struct{}

func (Disabled) Complete(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrNotConfigured
}

// NewFromConfig returns an OpenAI-backed client when credentials are present
// and Disabled otherwise. The second return reports whether a real client was
// built, for startup logging.
func NewFromConfig(cfg config.LLMConfig, emb config.EmbeddingConfig) (Client, bool) {
	client, err := NewOpenAIClient(cfg, emb)
	if err != nil {
		return Disabled{}, false
	}
	return client, true
}
