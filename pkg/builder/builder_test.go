package builder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covmerge/covmerge/pkg/coverage"
	"github.com/covmerge/covmerge/pkg/pathfix"
	"github.com/covmerge/covmerge/pkg/pathmap"
	"github.com/covmerge/covmerge/pkg/report"
)

func newFixer(t *testing.T, toc []string) *pathfix.Fixer {
	t.Helper()

	return pathfix.New(pathfix.Options{TOC: pathmap.NewTree(toc)})
}

func TestCreateFileResolvesPath(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{
		SessionID: 3,
		Fixer:     newFixer(t, []string{"src/app/main.go"}),
	})

	fb, err := s.CreateFile("C:\\build\\src\\app\\main.go", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.Equal(t, "src/app/main.go", fb.Path())
}

func TestCreateFileRejectsUnresolvablePath(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{
		Fixer: newFixer(t, []string{"src/app/main.go"}),
	})

	fb, err := s.CreateFile("vendor/github.com/other/dep.go", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, fb)
}

func TestWithFixerResolvesAmbiguousFilename(t *testing.T) {
	t.Parallel()

	// "metrics.go" alone matches two TOC entries, so the plain fixer
	// rejects it. Anchored at the report file's directory it becomes
	// unambiguous.
	fixer := newFixer(t, []string{"client/metrics.go", "server/metrics.go"})

	s := NewSession(Options{SessionID: 2, Fixer: fixer})

	fb, err := s.CreateFile("metrics.go", time.Time{})
	require.NoError(t, err)
	require.Nil(t, fb)

	view := s.WithFixer(fixer.ForSourceFile("server/coverage.out"))

	fb, err = view.CreateFile("metrics.go", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.Equal(t, "server/metrics.go", fb.Path())

	// The view shares the session's label index and id.
	fb.Append(1, LineEvent{Value: coverage.HitCount(1)})
	line, ok := fb.Finish().Line(1)
	require.True(t, ok)
	require.Len(t, line.Sessions, 1)
	assert.Equal(t, 2, line.Sessions[0].SessionID)
}

func TestCreateFileExpiredSource(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	s := NewSession(Options{
		Fixer:  newFixer(t, []string{"src/app/main.go"}),
		MaxAge: 12 * time.Hour,
		Clock:  func() time.Time { return now },
	})

	_, err := s.CreateFile("src/app/main.go", now.Add(-24*time.Hour))
	var expired *ReportExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, "src/app/main.go", expired.Path)

	fb, err := s.CreateFile("src/app/main.go", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, fb)
}

func TestAppendMergesRepeatedLines(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{
		SessionID: 1,
		Fixer:     newFixer(t, []string{"src/app/main.go"}),
	})

	fb, err := s.CreateFile("src/app/main.go", time.Time{})
	require.NoError(t, err)

	fb.Append(4, LineEvent{Value: coverage.HitCount(0)})
	fb.Append(4, LineEvent{Value: coverage.HitCount(2)})
	fb.Append(4, LineEvent{Value: coverage.HitCount(2)})

	f := fb.Finish()
	require.NotNil(t, f)

	line, ok := f.Line(4)
	require.True(t, ok)
	require.Len(t, line.Sessions, 1)
	assert.Equal(t, 1, line.Sessions[0].SessionID)
	assert.Equal(t, 2, line.Value.Hits())
}

func TestAppendCombinesPartials(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{
		Fixer: newFixer(t, []string{"src/app/main.go"}),
	})

	fb, err := s.CreateFile("src/app/main.go", time.Time{})
	require.NoError(t, err)

	fb.Append(2, LineEvent{
		Value: coverage.Fraction(1, 2),
		Type:  report.TypeBranch,
		Partials: []coverage.Span{
			{Start: 1, End: 5, Hits: 1},
			{Start: 9, End: 12, Hits: 0},
		},
	})
	fb.Append(2, LineEvent{
		Value: coverage.Fraction(1, 2),
		Type:  report.TypeBranch,
		Partials: []coverage.Span{
			{Start: 5, End: 7, Hits: 1},
			{Start: 8, End: 9, Hits: 0},
		},
	})

	line, ok := fb.Finish().Line(2)
	require.True(t, ok)
	require.Len(t, line.Sessions, 1)
	assert.Equal(t, []coverage.Span{
		{Start: 1, End: 7, Hits: 1},
		{Start: 8, End: 12, Hits: 0},
	}, line.Sessions[0].Partials)
}

func TestLabelHintsTranslateThroughSessionIndex(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{
		SessionID:  0,
		Fixer:      newFixer(t, []string{"src/app/main.go"}),
		LabelAware: true,
	})

	fb, err := s.CreateFile("src/app/main.go", time.Time{})
	require.NoError(t, err)

	fb.Append(1, LineEvent{
		Value:  coverage.HitCount(1),
		Labels: []LabelHint{LabelByName(""), LabelByName("test_alpha")},
	})
	fb.Append(2, LineEvent{
		Value:  coverage.HitCount(1),
		Labels: []LabelHint{LabelByName("test_alpha"), LabelByName("test_beta")},
	})

	f := fb.Finish()

	line, _ := f.Line(1)
	require.Len(t, line.Datapoints, 1)
	assert.Equal(t, []int{0, 1}, line.Datapoints[0].LabelIDs)

	line, _ = f.Line(2)
	require.Len(t, line.Datapoints, 1)
	assert.Equal(t, []int{1, 2}, line.Datapoints[0].LabelIDs)

	idx := s.Labels()
	require.NotNil(t, idx)

	label, ok := idx.LabelOf(2)
	require.True(t, ok)
	assert.Equal(t, "test_beta", label)
}

func TestLabelUnawareSessionsCarryNoDatapoints(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{
		Fixer: newFixer(t, []string{"src/app/main.go"}),
	})

	fb, err := s.CreateFile("src/app/main.go", time.Time{})
	require.NoError(t, err)

	fb.Append(1, LineEvent{
		Value:  coverage.HitCount(1),
		Labels: []LabelHint{LabelByName("test_alpha")},
	})

	line, _ := fb.Finish().Line(1)
	assert.Nil(t, line.Datapoints)
	assert.Nil(t, s.Labels())
}

func TestFinishNilWhenEmpty(t *testing.T) {
	t.Parallel()

	s := NewSession(Options{
		Fixer: newFixer(t, []string{"src/app/main.go"}),
	})

	fb, err := s.CreateFile("src/app/main.go", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, fb.Finish())
}
