package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) CompleteText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const samplePolicy = `The Pradhan Mantri Kisan Samman Nidhi scheme provides income support to all landholding farmer families.

Eligible farmers shall furnish land records to the district office pursuant to the guidelines issued by the ministry.

Short line.

Payments commence in the first quarter and are transferred in three equal instalments to bank accounts.`

func TestAnalyzer_LLM(t *testing.T) {
	var prompt string
	llm := completerFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n" + `{"summary":"Income support for farmers.","simplified":"Farmers get money.","category":"agriculture","clauses":[{"clause_text":"c1","explanation":"e1"}],"difficulty_score":40}` + "\n```", nil
	})
	res := NewAnalyzer(llm, nil).Analyze(context.Background(), samplePolicy)

	assert.Equal(t, "llm", res.Source)
	assert.Equal(t, "Income support for farmers.", res.Summary)
	assert.Equal(t, "Agriculture", res.Category)
	assert.Equal(t, 40, res.DifficultyScore)
	require.Len(t, res.Clauses, 1)
	assert.Equal(t, 1, res.Clauses[0].Number)
	assert.Contains(t, prompt, "Kisan Samman Nidhi")
}

func TestAnalyzer_FallsBackToRules(t *testing.T) {
	tests := []struct {
		name string
		llm  TextCompleter
	}{
		{"no model", nil},
		{"model error", completerFunc(func(context.Context, string) (string, error) { return "", errors.New("429 quota") })},
		{"bad json", completerFunc(func(context.Context, string) (string, error) { return "I cannot help", nil })},
		{"empty summary", completerFunc(func(context.Context, string) (string, error) { return `{"summary":""}`, nil })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewAnalyzer(tt.llm, nil).Analyze(context.Background(), samplePolicy)
			assert.Equal(t, "rules", res.Source)
			assert.Equal(t, "Agriculture", res.Category)
			assert.NotEmpty(t, res.Summary)
		})
	}
}

func TestRules_Clauses(t *testing.T) {
	clauses := ExtractClauses(samplePolicy)
	require.Len(t, clauses, 3)
	assert.Equal(t, 1, clauses[0].Number)
	assert.Equal(t, 3, clauses[2].Number)
	assert.Contains(t, clauses[1].Explanation, "provide land records")
	assert.Contains(t, clauses[1].Explanation, "under the guidelines")
	assert.Contains(t, clauses[2].Text, "Payments commence")

	long := strings.Repeat("para with enough words to count as a clause.\n\n", 15)
	assert.Len(t, ExtractClauses(long), maxClauses)
}

func TestRules_Summarize(t *testing.T) {
	short := "Only a few words here."
	assert.Equal(t, short, Summarize(short))

	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("This sentence has exactly eight words in it. ")
	}
	summary := Summarize(b.String())
	assert.Equal(t, 4, strings.Count(summary, "."))
}

func TestRules_Simplify(t *testing.T) {
	assert.Equal(t, "as per the rules, so we use it", Simplify("in accordance with the rules, therefore we utilize it"))
}

func TestRules_ClassifyAndDifficulty(t *testing.T) {
	assert.Equal(t, "Health", Classify("Free hospital treatment and medical insurance cover"))
	assert.Equal(t, "Other", Classify("Nothing specific"))
	assert.Equal(t, 10, Difficulty("few words"))
	assert.Equal(t, 100, Difficulty(strings.Repeat("word ", 6000)))
	assert.Equal(t, 20, Difficulty(strings.Repeat("word ", 1000)))
}

func TestAnalyzer_Compare(t *testing.T) {
	cmp := NewAnalyzer(nil, nil).Compare(context.Background(), "a", "b")
	assert.Contains(t, cmp.Comparison, "requires")
	assert.NotNil(t, cmp.Similarities)

	llm := completerFunc(func(_ context.Context, p string) (string, error) {
		assert.Contains(t, p, "Policy A:\nfirst")
		return `{"comparison":"A is broader","similarities":["both help farmers"],"differences":[],"recommendation":"A"}`, nil
	})
	cmp = NewAnalyzer(llm, nil).Compare(context.Background(), "first", "second")
	assert.Equal(t, "A is broader", cmp.Comparison)
	assert.Equal(t, []string{"both help farmers"}, cmp.Similarities)
	assert.Equal(t, "A", cmp.Recommendation)
}

func TestAnalyzer_Recommend(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, NoModelRecommendations, NewAnalyzer(nil, nil).Recommend(ctx, samplePolicy))

	var prompt string
	llm := completerFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n[\"PM Fasal Bima Yojana\", \" \", \"Kisan Credit Card\", \"a\", \"b\", \"c\", \"d\"]\n```", nil
	})
	got := NewAnalyzer(llm, nil).Recommend(ctx, strings.Repeat("x", 3000))
	assert.Equal(t, []string{"PM Fasal Bima Yojana", "Kisan Credit Card", "a", "b", "c"}, got)
	assert.Contains(t, prompt, "suggest 5 related government schemes")
	assert.NotContains(t, prompt, strings.Repeat("x", 2001))

	failures := []completerFunc{
		func(context.Context, string) (string, error) { return "", errors.New("timeout") },
		func(context.Context, string) (string, error) { return "Try the farmer schemes.", nil },
		func(context.Context, string) (string, error) { return "[]", nil },
	}
	for _, f := range failures {
		assert.Equal(t, NoRecommendations, NewAnalyzer(f, nil).Recommend(ctx, samplePolicy))
	}
}
