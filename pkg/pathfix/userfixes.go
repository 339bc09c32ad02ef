package pathfix

import (
	"fmt"
	"regexp"
	"strings"
)

// fixRuleSeparator splits a user fix rule into its pattern and replacement.
const fixRuleSeparator = "::"

// UserFixes holds the user-declared `pattern::replacement` rewrite rules from
// the repository configuration. A rule with an empty pattern prepends its
// replacement, a rule whose pattern is a literal prefix swaps that prefix for
// the replacement, and anything else is a start-anchored, glob-flavored
// regex substitution.
type UserFixes struct {
	rules []fixRule
}

type fixRule struct {
	prepend string
	literal string
	pattern *regexp.Regexp

	replacement string
}

// ParseUserFixes compiles an ordered rule list. Rules without the `::`
// separator or with a pattern that does not compile are rejected rather than
// silently skipped; a half-applied rule set would make path resolution
// non-deterministic across re-processings.
func ParseUserFixes(rules []string) (*UserFixes, error) {
	fixes := &UserFixes{}

	for _, raw := range rules {
		pattern, replacement, ok := strings.Cut(raw, fixRuleSeparator)
		if !ok {
			return nil, fmt.Errorf("fix rule %q: missing %q separator", raw, fixRuleSeparator)
		}

		replacement = strings.TrimSuffix(replacement, "/")

		switch {
		case pattern == "":
			fixes.rules = append(fixes.rules, fixRule{prepend: replacement})
		case !hasRegexMeta(pattern):
			literal := strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "/")
			fixes.rules = append(fixes.rules, fixRule{literal: literal, replacement: replacement})
		default:
			compiled, err := regexp.Compile("^(?:" + globToRegex(pattern) + ")")
			if err != nil {
				return nil, fmt.Errorf("fix rule %q: %w", raw, err)
			}

			fixes.rules = append(fixes.rules, fixRule{pattern: compiled, replacement: replacement})
		}
	}

	return fixes, nil
}

// Empty reports whether no rules were declared.
func (f *UserFixes) Empty() bool {
	return f == nil || len(f.rules) == 0
}

// Apply runs the rules, in order, against a path. Apply happens both before
// and after table-of-contents resolution, so every rule converges on its own
// output: prefixes are not prepended twice and substitutions anchor on a
// pattern their own replacement no longer matches.
func (f *UserFixes) Apply(path string) string {
	if f.Empty() || path == "" {
		return path
	}

	for _, rule := range f.rules {
		path = rule.apply(path)
	}

	return path
}

func (r fixRule) apply(path string) string {
	switch {
	case r.prepend != "":
		if path != r.prepend && !strings.HasPrefix(path, r.prepend+"/") {
			return r.prepend + "/" + path
		}

		return path
	case r.literal != "":
		return r.applyLiteral(path)
	case r.pattern != nil:
		loc := r.pattern.FindStringIndex(path)
		if loc == nil {
			return path
		}

		return joinFixed(r.replacement, path[loc[1]:])
	}

	return path
}

func (r fixRule) applyLiteral(path string) string {
	if path == r.literal {
		return r.replacement
	}

	rest, found := strings.CutPrefix(path, r.literal+"/")
	if !found {
		return path
	}

	return joinFixed(r.replacement, rest)
}

// joinFixed glues a replacement onto the unmatched remainder of the path,
// normalizing the slash on the boundary.
func joinFixed(replacement, rest string) string {
	rest = strings.TrimPrefix(rest, "/")

	if replacement == "" {
		return rest
	}

	if rest == "" {
		return replacement
	}

	return replacement + "/" + rest
}

// globToRegex translates the glob conveniences allowed in fix rules into
// regex form: `a/**/b` becomes `a/.*/b` and a lone `*` matches one path
// segment. A leading slash anchors nothing and is dropped.
func globToRegex(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "/")
	pattern = strings.ReplaceAll(pattern, "**", `.*`)

	var out strings.Builder

	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' && (i == 0 || pattern[i-1] != '.') {
			out.WriteString(`[^\/\n]+`)

			continue
		}

		out.WriteByte(pattern[i])
	}

	return out.String()
}

func hasRegexMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*+?[](){}^$|.\`)
}
