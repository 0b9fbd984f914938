package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"policymitr/internal/ai"
)

const (
	recommendInputLimit = 2000
	maxRecommendations  = 5
)

var (
	NoModelRecommendations = []string{"AI recommendations require a configured language model."}
	NoRecommendations      = []string{"No recommendations available."}
)

// Recommend suggests related schemes a citizen should know about. Without a
// model, or with an unusable answer, it returns a single explanatory entry.
func (a *Analyzer) Recommend(ctx context.Context, text string) []string {
	if a.llm == nil {
		return append([]string(nil), NoModelRecommendations...)
	}
	list, err := a.recommendLLM(ctx, text)
	if err != nil {
		a.logger.Warn("policy recommendations failed", zap.Error(err))
		return append([]string(nil), NoRecommendations...)
	}
	return list
}

func (a *Analyzer) recommendLLM(ctx context.Context, text string) ([]string, error) {
	prompt := `Based on this policy, suggest 5 related government schemes or policies a citizen should know about. Return a JSON array of strings.

Policy:
` + truncateRunes(text, recommendInputLimit) + `

RESPOND WITH ONLY A JSON ARRAY OF STRINGS.`

	raw, err := a.llm.CompleteText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("recommendation request failed: %w", err)
	}
	var items []string
	if err := json.Unmarshal([]byte(ai.StripCodeFence(raw)), &items); err != nil {
		return nil, fmt.Errorf("parse recommendations json failed: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
		if len(out) == maxRecommendations {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("recommendations are empty")
	}
	return out, nil
}
