// Package suggest computes fuzzy "did you mean" hints for unknown
// filter/test/function/macro names.
package suggest

import "github.com/sahilm/fuzzy"

// Find returns the best fuzzy match for name among candidates, or "" if
// fuzzy found nothing close enough to be worth suggesting.
func Find(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return ""
	}
	return candidates[matches[0].Index]
}
