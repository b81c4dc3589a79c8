// Package mentor answers a fixed set of food-startup questions by phrase lookup
package mentor

import "strings"

// NoAnswer is returned when no known phrase occurs in the question
const NoAnswer = "No direct answer found. Try simpler phrases."

// Entry pairs a lowercase trigger phrase with its answer
type Entry struct {
	Phrase string `json:"phrase"`
	Answer string `json:"answer"`
}

// FAQ is checked in order; the first phrase found in the question wins
var FAQ = []Entry{
	{Phrase: "how to get fssai", Answer: "Go to fssai.gov.in, register as a food business, and apply for a license."},
	{Phrase: "how to find manufacturers", Answer: "Search local co-packers via IndiaMART or use the supplier finder section."},
	{Phrase: "how to reduce waste", Answer: "Combine redundant steps and switch to reusable packaging."},
	{Phrase: "what schemes are available", Answer: "Look into PMFME, StartupTN, and state agriculture subsidies."},
}

// Answer looks question up in FAQ. found is false when NoAnswer is returned.
func Answer(question string) (answer string, found bool) {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return NoAnswer, false
	}
	for _, e := range FAQ {
		if strings.Contains(q, e.Phrase) {
			return e.Answer, true
		}
	}
	return NoAnswer, false
}
