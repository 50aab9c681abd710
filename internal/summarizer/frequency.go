// Package summarizer produces an extractive digest of an indexed corpus.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Frequency ranks sentences by the normalized frequency of their content words.
type Frequency struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{
		tokenPattern:    regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`),
		sentencePattern: regexp.MustCompile(`[^.!?।॥]+[.!?।॥]+`),
		stopwords:       stopwords(),
	}
}

// Summarize returns up to maxSentences of the highest scoring sentences in their original order.
func (s *Frequency) Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	text = strings.Join(strings.Fields(text), " ")
	sentences := s.sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}

	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = s.tokenPattern.FindAllString(strings.ToLower(sent), -1)
		for _, tok := range tokens[i] {
			if _, stop := s.stopwords[tok]; !stop {
				freq[tok]++
			}
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i := range sentences {
		score := 0.0
		for _, tok := range tokens[i] {
			score += freq[tok]
		}
		if maxF > 0 {
			score /= maxF
		}
		// Long sentences would otherwise always win.
		if n := len(tokens[i]); n > 0 {
			score /= math.Sqrt(float64(n))
		}
		scores[i] = ranked{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	picked := make([]int, n)
	for i := range picked {
		picked[i] = scores[i].idx
	}
	sort.Ints(picked)
	out := make([]string, n)
	for i, idx := range picked {
		out[i] = strings.TrimSpace(sentences[idx])
	}
	return strings.Join(out, " ")
}

func stopwords() map[string]struct{} {
	words := []string{
		// Nepali
		"र", "छ", "छन्", "हो", "थियो", "थिए", "को", "का", "की", "ले", "लाई", "मा", "बाट", "पनि", "यो", "त्यो", "यस", "उनी", "भएको", "गरेको", "हुन्छ", "तथा", "एक", "अनि", "भने",
		// English
		"a", "an", "the", "and", "or", "of", "in", "on", "to", "is", "are", "was", "were", "it", "this", "that", "for", "with", "as", "by",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
