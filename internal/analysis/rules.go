package analysis

import (
	"regexp"
	"strings"
)

const (
	summarySentences   = 4
	summaryMaxRunes    = 600
	shortTextWords     = 30
	maxClauses         = 10
	minParagraphRunes  = 30
	clauseTextRunes    = 500
	clauseExplainRunes = 200
)

// Ordered so that multi-word phrases are replaced before their parts.
var simplifications = []struct{ from, to string }{
	{"in accordance with", "as per"},
	{"pursuant to", "under"},
	{"notwithstanding", "despite"},
	{"subsequently", "then"},
	{"henceforth", "from now on"},
	{"therefore", "so"},
	{"utilize", "use"},
	{"commence", "start"},
	{"terminate", "end"},
	{"endeavour", "try"},
	{"furnish", "provide"},
	{"procure", "get"},
}

var categoryKeywords = map[string][]string{
	"Health":         {"health", "hospital", "medical", "disease", "insurance cover", "patient", "vaccin"},
	"Education":      {"education", "school", "student", "scholarship", "teacher", "university", "literacy"},
	"Finance":        {"finance", "tax", "bank", "loan", "credit", "budget", "subsidy", "pension"},
	"Agriculture":    {"farmer", "agricultur", "crop", "irrigation", "kisan", "harvest", "fertili"},
	"Infrastructure": {"road", "highway", "bridge", "railway", "housing", "construction", "urban"},
	"Social Welfare": {"welfare", "women", "child", "disabilit", "ration", "poverty", "senior citizen"},
	"Environment":    {"environment", "pollution", "forest", "climate", "wildlife", "emission", "waste"},
	"Technology":     {"digital", "technology", "internet", "software", "data", "cyber", "telecom"},
	"Defense":        {"defence", "defense", "army", "military", "border", "armed forces"},
}

var sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)

// Rules is the model-free analyzer.
type Rules struct{}

func (Rules) Analyze(text string) *Result {
	text = strings.TrimSpace(text)
	summary := Summarize(text)
	return &Result{
		Summary:         summary,
		Simplified:      Simplify(summary),
		Category:        Classify(text),
		Clauses:         ExtractClauses(text),
		DifficultyScore: Difficulty(text),
		Confidence:      0.5,
		Source:          "rules",
	}
}

// Simplify replaces legal wording with everyday words.
func Simplify(text string) string {
	for _, r := range simplifications {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	return text
}

// Summarize keeps short texts whole and otherwise returns the first sentences.
func Summarize(text string) string {
	if len(strings.Fields(text)) < shortTextWords {
		return text
	}
	flat := strings.Join(strings.Fields(text), " ")
	ends := sentenceEnd.FindAllStringIndex(flat, summarySentences)
	summary := flat
	if len(ends) == summarySentences {
		summary = flat[:ends[summarySentences-1][1]]
	}
	summary = strings.TrimSpace(summary)
	if r := []rune(summary); len(r) > summaryMaxRunes {
		summary = string(r[:summaryMaxRunes]) + "..."
	}
	return summary
}

// Classify picks the category whose keywords occur most often, or "Other".
func Classify(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := "Other", 0
	for _, category := range Categories {
		score := 0
		for _, kw := range categoryKeywords[category] {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best, bestScore = category, score
		}
	}
	return best
}

// ExtractClauses treats the first substantial paragraphs as clauses.
func ExtractClauses(text string) []Clause {
	var clauses []Clause
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if len([]rune(para)) <= minParagraphRunes {
			continue
		}
		clauses = append(clauses, Clause{
			Number:      len(clauses) + 1,
			Text:        truncateRunes(para, clauseTextRunes),
			Explanation: Simplify(truncateRunes(para, clauseExplainRunes)),
		})
		if len(clauses) == maxClauses {
			break
		}
	}
	return clauses
}

// Difficulty grows with length: one point per 50 words, clamped to [10, 100].
func Difficulty(text string) int {
	return min(100, max(10, len(strings.Fields(text))/50))
}
