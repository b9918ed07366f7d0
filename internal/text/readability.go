package text

import (
	"strings"
)

// Score computes a Flesch-Kincaid style grade level for text. Words are
// whitespace-delimited tokens, sentences are the non-empty segments between
// runs of '.', '!' or '?', and syllables are estimated by counting maximal
// vowel runs per word. Degenerate input (no words) scores 0, and the result
// is clamped so it never goes negative. Pure function, deterministic.
func Score(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	sentences := countSentences(text)

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	grade := 0.39*(float64(len(words))/float64(sentences)) +
		11.8*(float64(syllables)/float64(len(words))) - 15.59
	if grade < 0 {
		return 0
	}
	return grade
}

// countSentences splits on runs of sentence terminators and counts the
// non-empty segments. A trailing fragment with no terminator is still a
// sentence, so any text with at least one word counts at least one.
func countSentences(text string) int {
	count := 0
	hasContent := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if hasContent {
				count++
				hasContent = false
			}
		default:
			if !isSpace(r) {
				hasContent = true
			}
		}
	}
	if hasContent {
		count++
	}
	return count
}

// countSyllables counts maximal vowel runs. An all-consonant word still
// counts as one syllable ("rhythm" without vowels would otherwise be zero).
func countSyllables(word string) int {
	count := 0
	prevVowel := false
	for _, r := range strings.ToLower(word) {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if count == 0 {
		return 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
