package main

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// resolveLevel turns a CLI/UI query into a concrete level. Exact number
// wins, then exact (case-folded) name, then fuzzy name match. A fuzzy
// query whose best two candidates rank identically is rejected as
// ambiguous rather than guessed at.
func resolveLevel(levels []Level, query string) (*Level, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", ErrNotFound)
	}
	if lvl := findLevel(levels, query); lvl != nil {
		return lvl, nil
	}

	names := make([]string, len(levels))
	for i := range levels {
		names[i] = levels[i].Name
	}
	for i, name := range names {
		if strings.EqualFold(query, name) {
			return &levels[i], nil
		}
	}

	ranks := fuzzy.RankFindFold(query, names)
	if len(ranks) == 0 {
		return nil, fmt.Errorf("no level matches %q: %w", query, ErrNotFound)
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	for _, r := range ranks {
		if r.OriginalIndex != best.OriginalIndex && r.Distance == best.Distance {
			return nil, fmt.Errorf("%q matches both %q and %q: %w",
				query, best.Target, r.Target, ErrAmbiguous)
		}
	}
	return &levels[best.OriginalIndex], nil
}
