package catalogue

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// tokenWeight scales the token-based scores so a whole-string match outranks them
const tokenWeight = 0.95

// FuzzyMatch returns the closest food name and a confidence in [0, 100].
// Ties go to the lexicographically smallest name. An empty catalogue or a query
// with no letters or digits returns (query, 0).
func (c *Catalogue) FuzzyMatch(query string) (string, int) {
	if _, ok := c.records[query]; ok {
		return query, 100
	}

	q := normalize(query)
	if len(c.names) == 0 || q == "" {
		return query, 0
	}

	best, bestScore := query, -1
	for _, name := range c.names {
		score := similarity(q, normalize(name))
		if score > bestScore {
			best, bestScore = name, score
		}
	}

	return best, bestScore
}

// similarity is the best of the whole-string, token-sort and token-set ratios
func similarity(a, b string) int {
	score := ratio(a, b)
	if ts := weighted(tokenSortRatio(a, b)); ts > score {
		score = ts
	}
	if ts := weighted(tokenSetRatio(a, b)); ts > score {
		score = ts
	}
	return score
}

func weighted(score int) int {
	return int(math.Round(float64(score) * tokenWeight))
}

// ratio is the Levenshtein similarity 100*(len(a)+len(b)-dist)/(len(a)+len(b))
func ratio(a, b string) int {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * float64(total-dist) / float64(total)))
}

func tokenSortRatio(a, b string) int {
	return ratio(sortedTokens(a), sortedTokens(b))
}

func tokenSetRatio(a, b string) int {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var common, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(withA, withB)
	if base != "" {
		if r := ratio(base, withA); r > best {
			best = r
		}
		if r := ratio(base, withB); r > best {
			best = r
		}
	}
	return best
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

// normalize lowercases, replaces anything but letters and digits with spaces and
// collapses whitespace
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
