package search

import "strings"

// Stop words to filter out when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}#*`"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// keywordCoverage returns the fraction of distinct query keywords found in any of fields.
// A query made only of stop words has no coverage.
func keywordCoverage(query string, fields ...string) float32 {
	keywords := make(map[string]bool)
	for _, word := range tokenizeAndFilter(query) {
		keywords[word] = true
	}
	if len(keywords) == 0 {
		return 0
	}

	found := 0
	seen := make(map[string]bool, len(keywords))
	for _, field := range fields {
		for _, word := range tokenizeAndFilter(field) {
			if keywords[word] && !seen[word] {
				seen[word] = true
				found++
			}
		}
	}
	return float32(found) / float32(len(keywords))
}
