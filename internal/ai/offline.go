package ai

import (
	"context"
	"strings"

	"policymitr/internal/rag"
)

const (
	offlinePrefix   = "*(AI Offline Mode)* "
	offlineNoAnswer = offlinePrefix + "I'm sorry, I couldn't find a direct answer in the policy. Without a language model, my reasoning is limited."
)

// OfflineGenerator answers without a language model by quoting the evidence
// that shares the most keywords with the question.
type OfflineGenerator struct {
	// TopN is how many evidence passages are quoted; zero means rag.DefaultLexicalTopN.
	TopN int
}

func (OfflineGenerator) Name() string {
	return "offline"
}

func (g OfflineGenerator) Complete(_ context.Context, c rag.AssembledContext) (string, error) {
	n := g.TopN
	if n <= 0 {
		n = rag.DefaultLexicalTopN
	}
	hits := rag.LexicalScore(c.Query, c.Evidence)
	if len(hits) == 0 {
		return offlineNoAnswer, nil
	}
	if len(hits) > n {
		hits = hits[:n]
	}
	quoted := make([]string, len(hits))
	for i, h := range hits {
		quoted[i] = c.Evidence[h.Index]
	}
	return offlinePrefix + "I found this in the policy: \n\n" + strings.Join(quoted, "\n\n") +
		"\n\n(Note: For better conversational replies, please configure a language model.)", nil
}

func (g OfflineGenerator) Stream(ctx context.Context, c rag.AssembledContext, onChunk func(chunk string) error) (string, error) {
	answer, err := g.Complete(ctx, c)
	if err != nil {
		return "", err
	}
	if err := onChunk(answer); err != nil {
		return "", err
	}
	return answer, nil
}

// IsOfflineAnswer reports whether answer was produced by OfflineGenerator.
func IsOfflineAnswer(answer string) bool {
	return strings.HasPrefix(answer, offlinePrefix)
}
