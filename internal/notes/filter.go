package notes

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter returns the notes whose content contains query, compared after
// Unicode case folding, in their original order. An empty query returns
// notes itself.
func Filter(notes Collection, query string) Collection {
	if query == "" {
		return notes
	}
	// A Caser keeps per-call state and must not be shared.
	fold := cases.Fold()
	q := fold.String(query)

	out := make(Collection, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(fold.String(n.Content), q) {
			out = append(out, n)
		}
	}
	return out
}
