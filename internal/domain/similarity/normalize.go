// Package similarity provides the scoring tasks used by the engine: TF-IDF
// cosine similarity for text, normalised edit distance, and a URL check for
// media responses.
package similarity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	foldCaser = cases.Fold()

	// tokens are runs of two or more letters, digits or underscores.
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)
)

// tokenize case-folds s and splits it into terms.
func tokenize(s string) []string {
	return tokenPattern.FindAllString(foldCaser.String(s), -1)
}

// wordCount counts whitespace separated words.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
