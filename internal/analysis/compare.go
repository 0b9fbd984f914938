package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"policymitr/internal/ai"
)

type Comparison struct {
	Comparison     string   `json:"comparison"`
	Similarities   []string `json:"similarities"`
	Differences    []string `json:"differences"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// Compare asks the model to contrast two policies. It never fails: without a
// model, or with an unusable answer, the comparison text explains why.
func (a *Analyzer) Compare(ctx context.Context, textA, textB string) *Comparison {
	if a.llm == nil {
		return &Comparison{
			Comparison:   "AI comparison requires a configured language model.",
			Similarities: []string{},
			Differences:  []string{},
		}
	}
	cmp, err := a.compareLLM(ctx, textA, textB)
	if err != nil {
		a.logger.Warn("policy comparison failed", zap.Error(err))
		return &Comparison{
			Comparison:   "Comparison is unavailable right now, please try again later.",
			Similarities: []string{},
			Differences:  []string{},
		}
	}
	return cmp
}

func (a *Analyzer) compareLLM(ctx context.Context, textA, textB string) (*Comparison, error) {
	prompt := `Compare these two government policies and return a JSON with:
- "comparison": Overall comparison summary (200 words)
- "similarities": Array of similarity points
- "differences": Array of difference points
- "recommendation": Which policy is better for citizens

Policy A:
` + truncateRunes(textA, compareInputLimit) + `

Policy B:
` + truncateRunes(textB, compareInputLimit) + `

RESPOND WITH ONLY VALID JSON.`

	raw, err := a.llm.CompleteText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("comparison request failed: %w", err)
	}
	var cmp Comparison
	if err := json.Unmarshal([]byte(ai.StripCodeFence(raw)), &cmp); err != nil {
		return nil, fmt.Errorf("parse comparison json failed: %w", err)
	}
	if cmp.Similarities == nil {
		cmp.Similarities = []string{}
	}
	if cmp.Differences == nil {
		cmp.Differences = []string{}
	}
	return &cmp, nil
}
