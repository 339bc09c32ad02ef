package pathfix

import (
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/covmerge/covmerge/pkg/pathmap"
)

// tocAncestors is the ancestor-overlap requirement used for table-of-contents
// resolution of uploaded paths.
const tocAncestors = 1

// Options configures a Fixer.
type Options struct {
	// Fixes are the user `pattern::replacement` rewrite rules.
	Fixes *UserFixes
	// Includes are the user `[!]pattern` include/exclude rules.
	Includes *UserIncludes
	// TOC is the repository file list at the uploaded commit; nil when no
	// table of contents was uploaded.
	TOC *pathmap.Tree
	// DisableDefaultFixes skips table-of-contents resolution even when a ToC
	// is present.
	DisableDefaultFixes bool
}

// Fixer turns raw uploaded paths into canonical repo-relative paths, or
// rejects them. Resolution is deterministic: the same raw path against the
// same rule set and table of contents always yields the same answer.
//
// A Fixer records which raw paths mapped to which results so unusual
// outcomes (many raw paths collapsing onto one file, large rejection counts)
// can be reported after an upload finishes.
type Fixer struct {
	fixes               *UserFixes
	includes            *UserIncludes
	toc                 *pathmap.Tree
	disableDefaultFixes bool

	mu         sync.Mutex
	calculated map[string]map[string]struct{}
	rejected   map[string]struct{}
}

// New creates a Fixer from the given options.
func New(opts Options) *Fixer {
	return &Fixer{
		fixes:               opts.Fixes,
		includes:            opts.Includes,
		toc:                 opts.TOC,
		disableDefaultFixes: opts.DisableDefaultFixes,
		calculated:          make(map[string]map[string]struct{}),
		rejected:            make(map[string]struct{}),
	}
}

// Fix resolves one raw path. The second return is false when the path is
// rejected; rejection is not an error, the file is simply dropped from the
// report.
func (f *Fixer) Fix(raw string) (string, bool) {
	fixed, ok := f.fix(raw)
	f.record(raw, fixed, ok)

	return fixed, ok
}

func (f *Fixer) fix(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	cleaned := clean(raw)
	if cleaned == "" {
		return "", false
	}

	cleaned = f.fixes.Apply(cleaned)

	switch {
	case f.toc != nil && !f.disableDefaultFixes:
		resolved, ok := f.toc.Resolve(cleaned, tocAncestors)
		if !ok {
			return "", false
		}

		cleaned = resolved
	case f.toc == nil:
		cleaned = StripKnownNoise(cleaned)
	}

	// User rules apply both before and after resolution.
	cleaned = f.fixes.Apply(cleaned)

	if !f.includes.Match(cleaned) {
		return "", false
	}

	return cleaned, true
}

// clean is the pre-resolution normalization: backslashes become slashes and
// leading "./", "../" and "/" segments are dropped before the path is
// syntactically cleaned.
func clean(raw string) string {
	cleaned := strings.ReplaceAll(raw, "\\", "/")

	for {
		trimmed := strings.TrimPrefix(cleaned, "./")
		trimmed = strings.TrimPrefix(trimmed, "../")
		trimmed = strings.TrimPrefix(trimmed, "/")

		if trimmed == cleaned {
			break
		}

		cleaned = trimmed
	}

	cleaned = path.Clean(cleaned)
	if cleaned == "." {
		return ""
	}

	return cleaned
}

func (f *Fixer) record(raw, fixed string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !ok {
		f.rejected[raw] = struct{}{}

		return
	}

	set, exists := f.calculated[fixed]
	if !exists {
		set = make(map[string]struct{}, 1)
		f.calculated[fixed] = set
	}

	set[raw] = struct{}{}
}

// maxLoggedPaths caps the diagnostic samples in one log record.
const maxLoggedPaths = 10

// LogUnusualResults reports resolution diagnostics for one finished upload:
// rejected raw paths and distinct raw paths that collapsed onto the same
// resolved file. It never changes resolution behavior.
func (f *Fixer) LogUnusualResults(logger *slog.Logger, sessionID int) {
	if logger == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.rejected) > 0 {
		logger.Info("some uploaded paths were rejected",
			slog.Int("session", sessionID),
			slog.Int("count", len(f.rejected)),
			slog.Any("samples", sortedSamples(f.rejected, maxLoggedPaths)),
		)
	}

	var collisions []string

	for fixed, raws := range f.calculated {
		if len(raws) >= 2 {
			collisions = append(collisions, fixed)
		}
	}

	if len(collisions) > 0 {
		sort.Strings(collisions)

		logger.Info("distinct raw paths resolved to the same file",
			slog.Int("session", sessionID),
			slog.Int("count", len(collisions)),
			slog.Any("samples", collisions[:min(len(collisions), maxLoggedPaths)]),
		)
	}
}

func sortedSamples(set map[string]struct{}, limit int) []string {
	samples := make([]string, 0, len(set))
	for raw := range set {
		samples = append(samples, raw)
	}

	sort.Strings(samples)

	return samples[:min(len(samples), limit)]
}
