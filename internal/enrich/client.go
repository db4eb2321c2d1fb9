package enrich

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lakewatch/lakewatch-rca/internal/config"
)

// LLMClient produces one chat completion for a system/user message pair.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ChatClient talks to a Databricks model-serving endpoint through its
// OpenAI-compatible route. The endpoint name is passed as the model.
type ChatClient struct {
	client *openai.Client
	model  string
}

func NewChatClient(cfg config.AIConfig) *ChatClient {
	clientConfig := openai.DefaultConfig(cfg.Token)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &ChatClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Endpoint,
	}
}

func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
