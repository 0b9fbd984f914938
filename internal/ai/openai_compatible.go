package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"policymitr/internal/rag"
)

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAIGenerator answers prompts through any OpenAI-compatible chat
// completion endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(cfg ChatConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is empty")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

func (g *OpenAIGenerator) Name() string {
	return "openai:" + g.model
}

func (g *OpenAIGenerator) Complete(ctx context.Context, c rag.AssembledContext) (string, error) {
	return g.CompleteText(ctx, BuildPrompt(c))
}

// CompleteText sends prompt as a single user message.
func (g *OpenAIGenerator) CompleteText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.request(prompt, false))
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty llm choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Stream calls onChunk with every content delta and returns the full answer.
// An onChunk error aborts the stream.
func (g *OpenAIGenerator) Stream(ctx context.Context, c rag.AssembledContext, onChunk func(chunk string) error) (string, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(BuildPrompt(c), true))
	if err != nil {
		return "", fmt.Errorf("llm stream request failed: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read llm stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		text := resp.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

func (g *OpenAIGenerator) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: stream,
	}
}
