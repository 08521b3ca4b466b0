package classifier

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// Suggestion is the configured pattern closest to an uncategorized description.
// It is a debugging aid for rule authors and never assigns a category.
type Suggestion struct {
	Category string
	Pattern  string
	Score    int // 0-100
}

// SuggestThreshold is the minimum score for Suggest to return anything.
const SuggestThreshold = 60

type fuzzyPattern struct {
	normalized string
	category   string
	source     string
}

// FuzzyMatcher ranks category patterns by similarity to a description.
type FuzzyMatcher struct {
	patterns []fuzzyPattern
}

// NewFuzzyMatcher indexes every category pattern.
func NewFuzzyMatcher(categories []patterns.Category) *FuzzyMatcher {
	fm := &FuzzyMatcher{}
	for _, cat := range categories {
		for _, p := range cat.Patterns {
			fm.patterns = append(fm.patterns, fuzzyPattern{
				normalized: strings.ToUpper(p.Source),
				category:   cat.Name,
				source:     p.Source,
			})
		}
	}
	return fm
}

// Suggest returns the best pattern scoring at least SuggestThreshold against
// any word run of the description.
func (fm *FuzzyMatcher) Suggest(description string) (Suggestion, bool) {
	ranked := fm.Rank(description, 1)
	if len(ranked) == 0 || ranked[0].Score < SuggestThreshold {
		return Suggestion{}, false
	}
	return ranked[0], true
}

// Rank returns up to limit suggestions, best first. Equal scores keep declaration order.
func (fm *FuzzyMatcher) Rank(description string, limit int) []Suggestion {
	normalized := strings.ToUpper(strings.TrimSpace(description))
	if normalized == "" || len(fm.patterns) == 0 {
		return nil
	}
	words := strings.Fields(normalized)

	results := make([]Suggestion, 0, len(fm.patterns))
	for _, p := range fm.patterns {
		score := fuzzyScore(normalized, p.normalized)
		// Merchant names are usually one token of a longer description.
		for _, w := range words {
			score = max(score, fuzzyScore(w, p.normalized))
		}
		results = append(results, Suggestion{Category: p.category, Pattern: p.source, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// fuzzyScore calculates a similarity score between two strings (0-100).
func fuzzyScore(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}

	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0
	}
	if strings.Contains(s1, s2) {
		return 75 + (25 * len(r2) / len(r1))
	}
	if strings.Contains(s2, s1) {
		return 75 + (25 * len(r1) / len(r2))
	}

	maxLen := max(len(r1), len(r2))
	levenshteinScore := 100 * (maxLen - fuzzy.LevenshteinDistance(s1, s2)) / maxLen

	// Subsequence matches rank by how early the pattern starts matching.
	fuzzyLibScore := 0
	if rank := fuzzy.RankMatch(s2, s1); rank >= 0 && rank < len(r1) {
		fuzzyLibScore = 60 - (rank * 40 / len(r1))
	}

	return max(levenshteinScore, fuzzyLibScore)
}
