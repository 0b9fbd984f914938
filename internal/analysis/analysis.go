// Package analysis turns extracted policy text into a summary, a plain
// language version, a category, numbered clauses and a difficulty score.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"policymitr/internal/ai"
)

const (
	llmInputLimit     = 15000
	compareInputLimit = 3000
	defaultDifficulty = 50
)

var Categories = []string{
	"Health", "Education", "Finance", "Agriculture",
	"Infrastructure", "Social Welfare", "Environment",
	"Technology", "Defense", "Other",
}

type Clause struct {
	Number      int    `json:"clause_number"`
	Text        string `json:"clause_text"`
	Explanation string `json:"explanation"`
}

type Result struct {
	Summary         string        `json:"summary"`
	Simplified      string        `json:"simplified"`
	Category        string        `json:"category"`
	Clauses         []Clause      `json:"clauses"`
	DifficultyScore int           `json:"difficulty_score"`
	Confidence      float64       `json:"ai_confidence"`
	ProcessingTime  time.Duration `json:"-"`
	Source          string        `json:"-"`
}

// TextCompleter is the part of a generator the analyzer needs.
type TextCompleter interface {
	CompleteText(ctx context.Context, prompt string) (string, error)
}

// Analyzer asks a model for a JSON analysis and falls back to the rule based
// one when no model is configured or the answer is unusable.
type Analyzer struct {
	llm    TextCompleter
	rules  Rules
	logger *zap.Logger
}

func NewAnalyzer(llm TextCompleter, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{llm: llm, logger: logger}
}

func (a *Analyzer) Analyze(ctx context.Context, text string) *Result {
	started := time.Now()
	if a.llm != nil {
		res, err := a.analyzeLLM(ctx, text)
		if err == nil {
			res.ProcessingTime = time.Since(started)
			return res
		}
		a.logger.Warn("llm policy analysis failed, using rules", zap.Error(err))
	}
	res := a.rules.Analyze(text)
	res.ProcessingTime = time.Since(started)
	return res
}

func (a *Analyzer) analyzeLLM(ctx context.Context, text string) (*Result, error) {
	raw, err := a.llm.CompleteText(ctx, analysisPrompt(truncateRunes(text, llmInputLimit)))
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	var res Result
	if err := json.Unmarshal([]byte(ai.StripCodeFence(raw)), &res); err != nil {
		return nil, fmt.Errorf("parse analysis json failed: %w", err)
	}
	if strings.TrimSpace(res.Summary) == "" {
		return nil, errors.New("analysis has no summary")
	}
	res.Category = normalizeCategory(res.Category)
	if res.DifficultyScore <= 0 || res.DifficultyScore > 100 {
		res.DifficultyScore = defaultDifficulty
	}
	for i := range res.Clauses {
		if res.Clauses[i].Number == 0 {
			res.Clauses[i].Number = i + 1
		}
	}
	res.Confidence = 0.95
	res.Source = "llm"
	return &res, nil
}

func analysisPrompt(text string) string {
	return `You are an expert legal AI assistant. Analyze the following government policy and return a JSON object with EXACTLY these keys:
- "summary": A concise summary of the policy (around 100-150 words).
- "simplified": A very simple, plain-English explanation for a 10-year-old.
- "category": The best fitting category (` + strings.Join(Categories, ", ") + `).
- "clauses": An array of objects, where each object has:
    - "clause_number": Integer (1, 2, 3...)
    - "clause_text": The original or slightly compressed text of a key clause.
    - "explanation": Simple plain-English explanation of this clause.
- "difficulty_score": A number out of 100 estimating how hard it is to read (higher = harder).

Analyze this policy text:
` + text + `

RESPOND WITH ONLY VALID JSON. Do not include markdown formatting or backticks around the json.`
}

func normalizeCategory(category string) string {
	c := strings.TrimSpace(category)
	for _, known := range Categories {
		if strings.EqualFold(c, known) {
			return known
		}
	}
	return "Other"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
