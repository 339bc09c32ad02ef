package pathfix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covmerge/covmerge/pkg/pathfix"
	"github.com/covmerge/covmerge/pkg/pathmap"
)

func newFixer(t *testing.T, fixes, patterns, toc []string) *pathfix.Fixer {
	t.Helper()

	userFixes, err := pathfix.ParseUserFixes(fixes)
	require.NoError(t, err)

	includes, err := pathfix.ParseUserIncludes(patterns)
	require.NoError(t, err)

	opts := pathfix.Options{Fixes: userFixes, Includes: includes}
	if len(toc) > 0 {
		opts.TOC = pathmap.NewTree(toc)
	}

	return pathfix.New(opts)
}

func TestFixerWithoutRulesStripsKnownNoise(t *testing.T) {
	t.Parallel()

	fixer := newFixer(t, nil, nil, nil)

	got, ok := fixer.Fix("simple/path/to/something.py")
	assert.True(t, ok)
	assert.Equal(t, "simple/path/to/something.py", got)

	_, ok = fixer.Fix("")
	assert.False(t, ok)

	got, ok = fixer.Fix("bower_components/sample.js")
	assert.True(t, ok)
	assert.Empty(t, got, "noise-only path strips to nothing")
}

func TestFixerWithTOC(t *testing.T) {
	t.Parallel()

	fixer := newFixer(t, nil, nil, []string{"file_1.py", "folder/file_2.py"})

	cases := []struct {
		raw   string
		want  string
		found bool
	}{
		{"fafafa/file_2.py", "", false},
		{"folder/file_2.py", "folder/file_2.py", true},
		{"file_1.py", "file_1.py", true},
		{"bad_path.py", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, found := fixer.Fix(tc.raw)
		assert.Equal(t, tc.found, found, "fix %q", tc.raw)
		assert.Equal(t, tc.want, got, "fix %q", tc.raw)
	}
}

func TestFixerExcludePattern(t *testing.T) {
	t.Parallel()

	fixer := newFixer(t, nil, []string{"!simple/path"}, nil)

	got, ok := fixer.Fix("notsimple/path/to/something.py")
	assert.True(t, ok)
	assert.Equal(t, "notsimple/path/to/something.py", got)

	got, ok = fixer.Fix("simple/notapath/to/something.py")
	assert.True(t, ok)
	assert.Equal(t, "simple/notapath/to/something.py", got)

	_, ok = fixer.Fix("simple/path/to/something.py")
	assert.False(t, ok)
}

func TestFixerCustomPrefixSwap(t *testing.T) {
	t.Parallel()

	fixer := newFixer(t, []string{"before/::after/"}, nil, nil)

	cases := map[string]string{
		"before/path/to/something.py":       "after/path/to/something.py",
		"after/path/to/something.py":        "after/path/to/something.py",
		"after/before/path/to/something.py": "after/before/path/to/something.py",
		"simple/notapath/to/something.py":   "simple/notapath/to/something.py",
	}

	for raw, want := range cases {
		got, ok := fixer.Fix(raw)
		assert.True(t, ok, "fix %q", raw)
		assert.Equal(t, want, got, "fix %q", raw)
	}
}

func TestFixerRegexRuleAndIgnore(t *testing.T) {
	t.Parallel()

	fixer := newFixer(t,
		[]string{`(?s:before/tests\-[^\/]+)::after/`},
		[]string{"!complex/path", "!simple/notapath.*"},
		nil,
	)

	got, ok := fixer.Fix("before/tests-apples/test.js")
	assert.True(t, ok)
	assert.Equal(t, "after/test.js", got)

	_, ok = fixer.Fix("complex/path/to/something.py")
	assert.False(t, ok)

	_, ok = fixer.Fix("simple/notapath/to/something.py")
	assert.False(t, ok)

	got, ok = fixer.Fix("notsimple/path/to/something.py")
	assert.True(t, ok)
	assert.Equal(t, "notsimple/path/to/something.py", got)
}

func TestFixerIsDeterministic(t *testing.T) {
	t.Parallel()

	fixer := newFixer(t,
		[]string{"build/::", "::src/"},
		[]string{"src/.*"},
		[]string{"src/app/main.go", "src/app/util.go"},
	)

	raw := `build\src\app\main.go`

	first, ok := fixer.Fix(raw)
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		again, okAgain := fixer.Fix(raw)
		assert.True(t, okAgain)
		assert.Equal(t, first, again)
	}
}

func TestUserFixes(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		fixes, err := pathfix.ParseUserFixes(nil)
		require.NoError(t, err)
		assert.True(t, fixes.Empty())
		assert.Equal(t, "simple/path.c", fixes.Apply("simple/path.c"))
	})

	t.Run("add prefix", func(t *testing.T) {
		t.Parallel()

		fixes, err := pathfix.ParseUserFixes([]string{"::added_prefix"})
		require.NoError(t, err)
		assert.Equal(t, "added_prefix/simple/path.c", fixes.Apply("simple/path.c"))
		assert.Equal(t, "added_prefix/simple/path.c", fixes.Apply(fixes.Apply("simple/path.c")), "re-applying converges")
	})

	t.Run("remove prefix", func(t *testing.T) {
		t.Parallel()

		fixes, err := pathfix.ParseUserFixes([]string{"prefix_to_remove::"})
		require.NoError(t, err)
		assert.Equal(t, "simple/path.c", fixes.Apply("simple/path.c"))
		assert.Equal(t, "third_path.py", fixes.Apply("prefix_to_remove/third_path.py"))
		assert.Equal(t, "thisisnot/prefix_to_remove/third_path.py", fixes.Apply("thisisnot/prefix_to_remove/third_path.py"))
	})

	t.Run("swap prefix", func(t *testing.T) {
		t.Parallel()

		fixes, err := pathfix.ParseUserFixes([]string{"prefix_to_remove::add"})
		require.NoError(t, err)
		assert.Equal(t, "add/third_path.py", fixes.Apply("prefix_to_remove/third_path.py"))
		assert.Equal(t, "added_prefix/second_path.java", fixes.Apply("added_prefix/second_path.java"))
	})

	t.Run("regex", func(t *testing.T) {
		t.Parallel()

		fixes, err := pathfix.ParseUserFixes([]string{`(?s:prefix_to_remove/test\-[^\/]+)::add`})
		require.NoError(t, err)
		assert.Equal(t, "add/path.py", fixes.Apply("prefix_to_remove/test-third_folder/path.py"))
		assert.Equal(t, "add/path.py", fixes.Apply("prefix_to_remove/test-fourth_folder/path.py"))
		assert.Equal(t, "add", fixes.Apply("prefix_to_remove/test-fourth_oops.py"))
		assert.Equal(t, "thisisnot/prefix_to_remove/test-third_path.py", fixes.Apply("thisisnot/prefix_to_remove/test-third_path.py"))
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()

		_, err := pathfix.ParseUserFixes([]string{"no-separator"})
		require.Error(t, err)
	})
}

func TestUserIncludes(t *testing.T) {
	t.Parallel()

	t.Run("match all shortcut", func(t *testing.T) {
		t.Parallel()

		includes, err := pathfix.ParseUserIncludes([]string{".*", "!vendor/.*"})
		require.NoError(t, err)
		assert.True(t, includes.Match("src/main.go"))
		assert.False(t, includes.Match("vendor/lib/a.go"))
	})

	t.Run("exclusion disabled", func(t *testing.T) {
		t.Parallel()

		includes, err := pathfix.ParseUserIncludes([]string{"!.*", "!vendor/.*"})
		require.NoError(t, err)
		assert.True(t, includes.Match("vendor/lib/a.go"))
	})

	t.Run("must match an include", func(t *testing.T) {
		t.Parallel()

		includes, err := pathfix.ParseUserIncludes([]string{"src/.*"})
		require.NoError(t, err)
		assert.True(t, includes.Match("src/main.go"))
		assert.False(t, includes.Match("lib/m.go"))
	})
}

func TestBasePathFixerPrefersPlainResolution(t *testing.T) {
	t.Parallel()

	fixer := newFixer(t, nil, nil, []string{"path.c", "another/path.py", "root/another/path.py"})
	baseAware := fixer.ForSourceFile("root/coverage.xml")

	// Plain resolution succeeds; the base-aware retry must not override it.
	got, ok := baseAware.Fix("another/path.py")
	assert.True(t, ok)
	assert.Equal(t, "another/path.py", got)

	got, ok = baseAware.Fix("sample/path.c")
	assert.True(t, ok)
	assert.Equal(t, "path.c", got)
}

func TestBasePathFixerFallsBackToBase(t *testing.T) {
	t.Parallel()

	// Two files with the same name make the bare filename unresolvable on
	// its own; joining the report file's directory disambiguates.
	fixer := newFixer(t, nil, nil, []string{"proj/a/file.py", "proj/b/file.py"})
	baseAware := fixer.ForSourceFile("proj/a/report.xml")

	_, ok := fixer.Fix("file.py")
	require.False(t, ok, "plain resolution cannot disambiguate")

	got, ok := baseAware.Fix("file.py")
	assert.True(t, ok)
	assert.Equal(t, "proj/a/file.py", got)
}
