package rag

import (
	"sort"
	"unicode/utf8"
)

const (
	DefaultMaxEvidence = 5
	DefaultMaxHistory  = 5
)

// Assembler bounds the material handed to the generator. MaxChars of zero
// disables the character budget.
type Assembler struct {
	MaxEvidence int
	MaxHistory  int
	MaxChars    int
}

// Validate rejects negative limits.
func (a Assembler) Validate() error {
	switch {
	case a.MaxEvidence < 0:
		return &ConfigError{Field: "max_evidence", Reason: "must not be negative"}
	case a.MaxHistory < 0:
		return &ConfigError{Field: "max_history", Reason: "must not be negative"}
	case a.MaxChars < 0:
		return &ConfigError{Field: "max_context_chars", Reason: "must not be negative"}
	}
	return nil
}

// Assemble is Assembler{MaxEvidence: maxEvidence, MaxHistory: maxHistory}.Assemble.
func Assemble(evidence []string, history []ConversationTurn, query string, maxEvidence, maxHistory int) AssembledContext {
	return Assembler{MaxEvidence: maxEvidence, MaxHistory: maxHistory}.Assemble(evidence, history, query)
}

// Assemble keeps the first MaxEvidence evidence strings (the caller ranks
// them) and the MaxHistory most recent turns in chronological order. With a
// budget, evidence is dropped from the lowest ranked end first, then history
// from the oldest end. The query is never cut.
func (a Assembler) Assemble(evidence []string, history []ConversationTurn, query string) AssembledContext {
	ev := evidence
	if len(ev) > a.MaxEvidence {
		ev = ev[:max(a.MaxEvidence, 0)]
	}
	out := AssembledContext{
		Evidence: append(make([]string, 0, len(ev)), ev...),
		History:  windowHistory(history, a.MaxHistory),
		Query:    query,
	}
	if a.MaxChars <= 0 {
		return out
	}

	size := out.Size()
	for size > a.MaxChars && len(out.Evidence) > 0 {
		last := len(out.Evidence) - 1
		size -= utf8.RuneCountInString(out.Evidence[last])
		out.Evidence = out.Evidence[:last]
	}
	for size > a.MaxChars && len(out.History) > 0 {
		size -= utf8.RuneCountInString(out.History[0].Content)
		out.History = out.History[1:]
	}
	return out
}

// windowHistory returns the n most recent turns, oldest first. Turns with
// equal timestamps keep their relative input order.
func windowHistory(history []ConversationTurn, n int) []ConversationTurn {
	if n <= 0 || len(history) == 0 {
		return []ConversationTurn{}
	}
	sorted := append([]ConversationTurn(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}
