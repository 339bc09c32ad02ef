package pathmap

import (
	"path"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// CleanPath normalizes a raw path string: surrounding whitespace and carriage
// returns go away, escaped spaces are unescaped, backslashes become forward
// slashes, `**/` glob prefixes are dropped, and `.`/`..` segments are
// resolved. Cleaning is idempotent.
func CleanPath(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "**/", "")
	cleaned = strings.ReplaceAll(cleaned, "\r", "")
	cleaned = strings.ReplaceAll(cleaned, "\\ ", " ")
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")

	cleaned = path.Clean(cleaned)
	if cleaned == "." {
		return ""
	}

	return cleaned
}

// Resolve cleans the uploaded path and matches it against the tree, returning
// the canonical path and whether a match was found.
//
// When ancestors is positive, a candidate is only accepted if it shares at
// least ancestors+1 trailing path segments with the input, or the two are
// case-insensitively identical, or one is a suffix of the other. This guards
// against matching an unrelated file that happens to share a filename.
// ancestors <= 0 disables the guard.
func (t *Tree) Resolve(uploaded string, ancestors int) (string, bool) {
	cleaned := CleanPath(uploaded)
	if cleaned == "" {
		return "", false
	}

	match := t.match(cleaned, ancestors)
	if match == "" {
		return "", false
	}

	if ancestors > 0 && !checkAncestors(cleaned, match, ancestors) {
		return "", false
	}

	return match, true
}

func (t *Tree) match(cleaned string, ancestors int) string {
	components := splitPath(cleaned)
	reversed := make([]string, len(components))

	for i, component := range components {
		reversed[len(components)-1-i] = component
	}

	results := t.lookup(reversed)
	if len(results) == 0 {
		return ""
	}

	if len(results) == 1 {
		return results[0]
	}

	if rooted(cleaned) && ancestors > 0 {
		return shortestCandidate(results)
	}

	return bestMatch(cleaned, results)
}

// rooted reports whether the cleaned path still points outside the
// repository (absolute, or escaping upwards through `..`).
func rooted(cleaned string) bool {
	return strings.HasPrefix(strings.ReplaceAll(cleaned, ".", ""), "/")
}

// shortestCandidate picks the candidate with the fewest characters; rooted
// uploaded paths carry no usable repo-relative prefix, so the least nested
// entry is the safest disambiguation. Earlier candidates win ties.
func shortestCandidate(results []string) string {
	best := results[0]
	for _, candidate := range results[1:] {
		if len(candidate) < len(best) {
			best = candidate
		}
	}

	return best
}

// bestMatch returns the candidate most similar to the uploaded path, using a
// character-level diff ratio. Candidates are scanned in reverse result order
// and only a strictly better ratio replaces the current best, matching the
// tie-break behavior relied on by resolution determinism.
func bestMatch(cleaned string, results []string) string {
	differ := diffmatchpatch.New()

	best := ""
	bestRatio := -1.0

	for i := len(results) - 1; i >= 0; i-- {
		candidate := results[i]

		r := similarity(differ, cleaned, candidate)
		if r > bestRatio {
			best, bestRatio = candidate, r
		}
	}

	return best
}

// similarity is the classic difflib ratio: twice the number of common
// characters over the total length of both strings.
func similarity(differ *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}

	common := 0
	for _, diff := range differ.DiffMain(a, b, false) {
		if diff.Type == diffmatchpatch.DiffEqual {
			common += len(diff.Text)
		}
	}

	return 2 * float64(common) / float64(len(a)+len(b))
}

// checkAncestors requires the matched path to share enough trailing segments
// with the uploaded path.
func checkAncestors(uploaded, match string, ancestors int) bool {
	pl := lower(uploaded)
	ml := lower(match)

	if pl == ml {
		return true
	}

	plSegments := strings.Split(pl, "/")
	mlSegments := strings.Split(ml, "/")

	if len(mlSegments) < len(plSegments) && strings.HasSuffix(pl, ml) {
		return true
	}

	keep := ancestors + 1
	if keep > len(plSegments) {
		keep = len(plSegments)
	}

	suffix := strings.Join(plSegments[len(plSegments)-keep:], "/")

	return strings.HasSuffix(ml, suffix)
}

func splitPath(p string) []string {
	return strings.Split(p, "/")
}

func lower(s string) string {
	return strings.ToLower(s)
}
