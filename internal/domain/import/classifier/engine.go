package classifier

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// match is a category pattern tagged with its declaration ordinal.
// Ordinals run across all categories, so the lowest one is the first match.
type match struct {
	ordinal  int
	category string
	pattern  string
}

type regexPattern struct {
	match
	re *regexp.Regexp
}

// Engine finds the first declared category pattern matching a description.
// Literal patterns share one Aho-Corasick automaton, regular expressions are
// evaluated in declaration order until they can no longer beat the best literal hit.
type Engine struct {
	matcher  *ahocorasick.Matcher
	literals []match // indexed like the automaton dictionary
	regexes  []regexPattern
}

// NewEngine compiles the category patterns of cfg.
func NewEngine(categories []patterns.Category) *Engine {
	e := &Engine{}

	seen := make(map[string]bool)
	var dict []string
	ordinal := 0
	for _, cat := range categories {
		for _, p := range cat.Patterns {
			m := match{ordinal: ordinal, category: cat.Name, pattern: p.Source}
			ordinal++

			if !p.Literal {
				e.regexes = append(e.regexes, regexPattern{match: m, re: p.Regex})
				continue
			}
			key := strings.ToUpper(p.Source)
			// A repeated literal can never win over its first declaration.
			if seen[key] {
				continue
			}
			seen[key] = true
			dict = append(dict, key)
			e.literals = append(e.literals, m)
		}
	}
	if len(dict) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return e
}

// Match returns the first matching pattern for an uppercase description.
func (e *Engine) Match(upper string) (match, bool) {
	best := match{ordinal: -1}

	if e.matcher != nil {
		for _, idx := range e.matcher.MatchThreadSafe([]byte(upper)) {
			if idx < 0 || idx >= len(e.literals) {
				continue
			}
			if m := e.literals[idx]; best.ordinal < 0 || m.ordinal < best.ordinal {
				best = m
			}
		}
	}

	for _, rp := range e.regexes {
		if best.ordinal >= 0 && rp.ordinal > best.ordinal {
			break
		}
		if rp.re.MatchString(upper) {
			best = rp.match
			break
		}
	}

	return best, best.ordinal >= 0
}

// PatternCount returns the number of distinct patterns loaded.
func (e *Engine) PatternCount() int {
	return len(e.literals) + len(e.regexes)
}
