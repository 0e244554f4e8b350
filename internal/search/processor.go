package search

import (
	"strings"
	"unicode"
)

// ProcessQuery normalizes a question for embedding and keyword search: trims, collapses
// whitespace runs to one space and drops other control characters.
func ProcessQuery(question string) string {
	question = strings.TrimSpace(question)
	var b strings.Builder
	b.Grow(len(question))
	wasSpace := false
	for _, r := range question {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
