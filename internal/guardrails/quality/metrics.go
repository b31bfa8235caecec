package quality

import (
	"strings"
	"unicode"
)

// TextMetrics are the deterministic counts computed before any scoring.
type TextMetrics struct {
	Words          int     `json:"words"`
	Sentences      int     `json:"sentences"`
	Paragraphs     int     `json:"paragraphs"`
	UniqueWords    int     `json:"unique_words"`
	Characters     int     `json:"characters"`
	AvgSentenceLen float64 `json:"avg_sentence_len"`
	AvgSyllables   float64 `json:"avg_syllables_per_word"`
	GradeLevel     float64 `json:"flesch_kincaid_grade"`
}

// computeMetrics derives all basic metrics from the content.
func computeMetrics(content string) TextMetrics {
	words := strings.Fields(content)
	sentences := countSentences(content)
	paragraphs := countParagraphs(content)

	unique := make(map[string]bool, len(words))
	totalSyllables := 0
	for _, w := range words {
		clean := strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if clean != "" {
			unique[clean] = true
		}
		totalSyllables += countSyllables(clean)
	}

	m := TextMetrics{
		Words:       len(words),
		Sentences:   sentences,
		Paragraphs:  paragraphs,
		UniqueWords: len(unique),
		Characters:  len(content),
	}
	if sentences > 0 {
		m.AvgSentenceLen = float64(len(words)) / float64(sentences)
	}
	if len(words) > 0 {
		m.AvgSyllables = float64(totalSyllables) / float64(len(words))
	}
	// Flesch-Kincaid grade level.
	if len(words) > 0 && sentences > 0 {
		m.GradeLevel = 0.39*m.AvgSentenceLen + 11.8*m.AvgSyllables - 15.59
		if m.GradeLevel < 0 {
			m.GradeLevel = 0
		}
	}
	return m
}

func countSentences(content string) int {
	n := 0
	inSentence := false
	for _, r := range content {
		switch {
		case r == '.' || r == '!' || r == '?':
			if inSentence {
				n++
				inSentence = false
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			inSentence = true
		}
	}
	if inSentence {
		n++
	}
	return n
}

func countParagraphs(content string) int {
	n := 0
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) != "" {
			n++
		}
	}
	return n
}

// countSyllables approximates syllables by counting vowel groups, with a
// correction for a trailing silent 'e'. Minimum one syllable per word.
func countSyllables(word string) int {
	if word == "" {
		return 0
	}
	const vowels = "aeiouy"
	groups := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune(vowels, r)
		if isVowel && !prevVowel {
			groups++
		}
		prevVowel = isVowel
	}
	if groups > 1 && strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") {
		groups--
	}
	if groups < 1 {
		groups = 1
	}
	return groups
}

// readabilityScore maps a Flesch-Kincaid grade level onto the 0-5 scale.
// Grade 8 scores a 5; each 4 grades above costs a point.
func readabilityScore(grade float64) float64 {
	return clamp(5-(grade-8)/4, 0, 5)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
