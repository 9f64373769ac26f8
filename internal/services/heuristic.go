package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"docqa/internal/models"
)

const (
	heuristicName = "heuristic"

	// maxHeuristicSentences caps how many context sentences make up an offline answer
	maxHeuristicSentences = 3

	heuristicNote    = "(Answer assembled from the document text without the primary language model.)"
	notFoundTemplate = "I could not find information relevant to your question \"%s\" in this document."
	minKeywordRunes  = 4
)

// HeuristicBackend answers without a language model by picking the context
// sentences that share the most keywords with the question.
type HeuristicBackend struct{}

// NewHeuristicBackend creates the offline backend that terminates every fallback chain
func NewHeuristicBackend() *HeuristicBackend {
	return &HeuristicBackend{}
}

// Name implements Backend
func (h *HeuristicBackend) Name() string {
	return heuristicName
}

// Generate implements Backend. It never fails; with no matching sentence it
// returns a not-found message naming the question.
func (h *HeuristicBackend) Generate(_ context.Context, req models.GenerationRequest) (string, error) {
	keywords := extractKeywords(req.Question)
	sentences := splitSentences(req.Context)

	type scored struct {
		text  string
		score int
	}
	var candidates []scored
	for _, s := range sentences {
		words := wordSet(s)
		score := 0
		for _, kw := range keywords {
			if words[kw] {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{text: s, score: score})
		}
	}

	if len(candidates) == 0 {
		return fmt.Sprintf(notFoundTemplate, req.Question), nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxHeuristicSentences {
		candidates = candidates[:maxHeuristicSentences]
	}

	picked := make([]string, len(candidates))
	for i, c := range candidates {
		picked[i] = c.text
	}

	return strings.Join(picked, " ") + "\n\n" + heuristicNote, nil
}

// extractKeywords lower-cases the question, strips punctuation from each word
// and keeps distinct words longer than three characters.
func extractKeywords(question string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, word := range strings.Fields(question) {
		word = normalizeWord(word)
		if len([]rune(word)) < minKeywordRunes || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	return keywords
}

// wordSet returns the normalized words of a sentence, so a keyword only
// matches a whole word ("data" does not match "metadata").
func wordSet(sentence string) map[string]bool {
	words := make(map[string]bool)
	for _, word := range strings.Fields(sentence) {
		if word = normalizeWord(word); word != "" {
			words[word] = true
		}
	}
	return words
}

func normalizeWord(word string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, word))
}

// splitSentences breaks text at '.', '!' or '?' followed by whitespace, and at newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.Join(strings.Fields(current.String()), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			flush()
		}
	}
	flush()

	return sentences
}
