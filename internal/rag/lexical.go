package rag

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLexicalTopN is how many keyword hits the fallback path keeps.
const DefaultLexicalTopN = 2

// LexicalHit is the keyword score of the chunk at Index.
type LexicalHit struct {
	Index int `json:"index"`
	Score int `json:"score"`
}

// LexicalTokens lower-cases query, splits it on anything that is not a letter,
// digit or combining mark and keeps words longer than three characters, which
// drops most stopwords.
func LexicalTokens(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// LexicalScore counts, for every chunk, how many query tokens occur in it as
// case-insensitive substrings. Only chunks with a positive score are
// returned, best first, ties kept in input order.
func LexicalScore(query string, chunks []string) []LexicalHit {
	tokens := LexicalTokens(query)
	if len(tokens) == 0 {
		return nil
	}
	var hits []LexicalHit
	for i, chunk := range chunks {
		lower := strings.ToLower(chunk)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, LexicalHit{Index: i, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits
}
