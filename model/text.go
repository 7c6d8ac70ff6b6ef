package model

import (
	"strings"
	"unicode"
)

// Terminal punctuation and closer sets shared by the sentence splitter and
// the paragraph normalizer. Full-width forms cover CJK lesson text.
const (
	terminalRunes  = ".!?…。！？"
	fullwidthRunes = "。！？"
	closerRunes    = "\"'”’»›)]}）】」』'"
)

func isTerminal(r rune) bool {
	return strings.ContainsRune(terminalRunes, r)
}

func isFullwidthTerminal(r rune) bool {
	return strings.ContainsRune(fullwidthRunes, r)
}

func isCloser(r rune) bool {
	return strings.ContainsRune(closerRunes, r)
}

// SplitSentences splits text into sentences. A sentence boundary is a run of
// terminal punctuation (clusters like "?!" or "..." count as one), followed
// by any closing quotes or brackets, followed by whitespace or end of text.
// Trailing closers stay attached to the sentence they close, so `"Stop!" he
// said.` yields two sentences with the quote on the first. Text left over
// without terminal punctuation forms a final sentence of its own.
func SplitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var sentences []string
	start := 0
	i := 0
	for i < len(runes) {
		if !isTerminal(runes[i]) {
			i++
			continue
		}
		fullwidth := isFullwidthTerminal(runes[i])
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
			fullwidth = fullwidth || isFullwidthTerminal(runes[i])
		}
		for i+1 < len(runes) && isCloser(runes[i+1]) {
			i++
		}
		// ASCII terminals only break on whitespace or end of text, so
		// decimals and in-word dots do not split a sentence. Full-width
		// marks break unconditionally: CJK prose carries no spaces.
		if !fullwidth && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			i++
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		i++
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start = i
	}
	if start < len(runes) {
		sentence := strings.TrimSpace(string(runes[start:]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
	}
	return sentences
}

// CountSentences returns the sentence count of text under SplitSentences.
func CountSentences(text string) int {
	return len(SplitSentences(text))
}

// SplitParagraphs splits a lesson body into paragraphs on blank lines. Runs
// of blank lines collapse into a single break; leading and trailing
// whitespace is trimmed from every paragraph and empty paragraphs drop out.
func SplitParagraphs(body string) []string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	var paragraphs []string
	for _, block := range strings.Split(normalized, "\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			if n := len(paragraphs); n > 0 && paragraphs[n-1] != "" {
				paragraphs = append(paragraphs, "")
			}
			continue
		}
		if n := len(paragraphs); n > 0 && paragraphs[n-1] != "" {
			// Single newlines inside a paragraph join with a space.
			paragraphs[n-1] = paragraphs[n-1] + " " + block
			continue
		}
		if n := len(paragraphs); n > 0 && paragraphs[n-1] == "" {
			paragraphs[n-1] = block
			continue
		}
		paragraphs = append(paragraphs, block)
	}
	if n := len(paragraphs); n > 0 && paragraphs[n-1] == "" {
		paragraphs = paragraphs[:n-1]
	}
	return paragraphs
}

// JoinParagraphs reassembles paragraphs with blank-line separators.
func JoinParagraphs(paragraphs []string) string {
	return strings.Join(paragraphs, "\n\n")
}

// EnsureTerminalPunctuation guarantees a paragraph ends with terminal
// punctuation. When the paragraph ends in closing quotes or brackets without
// a terminal mark before them, the period goes before the closers; otherwise
// a period is appended.
func EnsureTerminalPunctuation(paragraph string) string {
	trimmed := strings.TrimRight(paragraph, " \t\n")
	if trimmed == "" {
		return trimmed
	}
	runes := []rune(trimmed)
	end := len(runes)
	for end > 0 && isCloser(runes[end-1]) {
		end--
	}
	if end > 0 && isTerminal(runes[end-1]) {
		return trimmed
	}
	return string(runes[:end]) + "." + string(runes[end:])
}
