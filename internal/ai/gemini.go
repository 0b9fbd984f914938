package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"policymitr/internal/rag"
)

type GeminiConfig struct {
	APIKey        string
	Model         string
	FallbackModel string
	// BaseURL overrides the Gemini API endpoint; used by tests.
	BaseURL string
}

// GeminiGenerator calls the Gemini API. When the primary model reports an
// exhausted quota the same prompt is sent once to the fallback model.
type GeminiGenerator struct {
	client        *genai.Client
	model         string
	fallbackModel string
	logger        *zap.Logger
}

func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiGenerator{
		client:        client,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		logger:        logger,
	}, nil
}

func (g *GeminiGenerator) Name() string {
	return "gemini:" + g.model
}

func (g *GeminiGenerator) Complete(ctx context.Context, c rag.AssembledContext) (string, error) {
	return g.CompleteText(ctx, BuildPrompt(c))
}

func (g *GeminiGenerator) CompleteText(ctx context.Context, prompt string) (string, error) {
	text, err := g.generate(ctx, g.model, prompt)
	if err != nil && g.fallbackModel != "" && IsQuotaError(err) {
		g.logger.Warn("gemini quota exhausted, using fallback model",
			zap.String("model", g.model),
			zap.String("fallback", g.fallbackModel),
		)
		text, err = g.generate(ctx, g.fallbackModel, prompt)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Stream emits the answer as Gemini produces it. Switching to the fallback
// model is only possible before the first chunk was delivered.
func (g *GeminiGenerator) Stream(ctx context.Context, c rag.AssembledContext, onChunk func(chunk string) error) (string, error) {
	prompt := BuildPrompt(c)
	full, delivered, err := g.stream(ctx, g.model, prompt, onChunk)
	if err != nil && !delivered && g.fallbackModel != "" && IsQuotaError(err) {
		g.logger.Warn("gemini quota exhausted, streaming from fallback model",
			zap.String("model", g.model),
			zap.String("fallback", g.fallbackModel),
		)
		full, _, err = g.stream(ctx, g.fallbackModel, prompt, onChunk)
	}
	if err != nil {
		return "", err
	}
	return full, nil
}

func (g *GeminiGenerator) generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini %s generate failed: %w", model, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini %s returned no text", model)
	}
	return text, nil
}

func (g *GeminiGenerator) stream(ctx context.Context, model, prompt string, onChunk func(string) error) (string, bool, error) {
	var full strings.Builder
	delivered := false
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), nil) {
		if err != nil {
			return "", delivered, fmt.Errorf("gemini %s stream failed: %w", model, err)
		}
		if resp == nil {
			continue
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		full.WriteString(text)
		delivered = true
		if err := onChunk(text); err != nil {
			return "", delivered, err
		}
	}
	return full.String(), delivered, nil
}

// IsQuotaError reports whether err looks like a rate limit or exhausted
// quota from a hosted model.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "exhausted")
}
