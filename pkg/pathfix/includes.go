package pathfix

import (
	"fmt"
	"regexp"
	"strings"
)

// matchAllPattern short-circuits inclusion; its negation disables exclusion.
const matchAllPattern = ".*"

// UserIncludes filters resolved paths against user `[!]pattern` rules: a path
// survives when it matches at least one include pattern (or none were
// declared) and matches no exclude pattern.
type UserIncludes struct {
	declared   bool
	includeAll bool
	includes   []*regexp.Regexp
	excludes   []*regexp.Regexp
}

// ParseUserIncludes compiles the pattern list. Patterns are matched against
// the start of the path.
func ParseUserIncludes(patterns []string) (*UserIncludes, error) {
	ui := &UserIncludes{}
	if len(patterns) == 0 {
		return ui, nil
	}

	ui.declared = true

	var includes, excludes []string

	excludeAll := true

	for _, pattern := range patterns {
		if negated := strings.TrimPrefix(pattern, "!"); negated != pattern {
			if negated != matchAllPattern {
				excludes = append(excludes, negated)
			} else {
				excludeAll = false
			}

			continue
		}

		includes = append(includes, pattern)
	}

	hasMatchAll := false

	for _, pattern := range includes {
		if pattern == matchAllPattern {
			hasMatchAll = true

			break
		}
	}

	if hasMatchAll || len(includes) == 0 {
		ui.includeAll = true
	} else {
		for _, pattern := range includes {
			compiled, err := regexp.Compile("^(?:" + pattern + ")")
			if err != nil {
				return nil, fmt.Errorf("include pattern %q: %w", pattern, err)
			}

			ui.includes = append(ui.includes, compiled)
		}
	}

	if excludeAll {
		for _, pattern := range excludes {
			compiled, err := regexp.Compile("^(?:" + pattern + ")")
			if err != nil {
				return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
			}

			ui.excludes = append(ui.excludes, compiled)
		}
	}

	return ui, nil
}

// Match reports whether the path should stay in the report.
func (ui *UserIncludes) Match(path string) bool {
	if ui == nil || !ui.declared {
		return true
	}

	if path == "" {
		return false
	}

	if !ui.includeAll && !matchAny(ui.includes, path) {
		return false
	}

	return !matchAny(ui.excludes, path)
}

func matchAny(patterns []*regexp.Regexp, path string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(path) {
			return true
		}
	}

	return false
}
