package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covmerge/covmerge/pkg/coverage"
)

func sampleReport(t *testing.T) *Report {
	t.Helper()

	r := New()

	first := r.AddSession(&Session{Type: SessionUploaded, Flags: []string{"unit"}})
	second := r.AddSession(&Session{Type: SessionUploaded, Flags: []string{"integration"}})

	f := r.EnsureFile("pkg/server/handler.go")
	f.AddLine(1, hitLine(first, 1))
	f.AddLine(2, hitLine(first, 0))
	f.AddLine(2, hitLine(second, 3))
	f.AddLine(3, hitLine(second, 0))

	g := r.EnsureFile("pkg/server/router.go")
	g.AddLine(10, hitLine(second, 1))

	return r
}

func TestSessionIDsAreNeverReused(t *testing.T) {
	t.Parallel()

	r := New()

	first := r.AddSession(&Session{Type: SessionUploaded})
	second := r.AddSession(&Session{Type: SessionUploaded})

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	deleted := r.DeleteSessions(first)
	assert.Equal(t, []int{0}, deleted)

	third := r.AddSession(&Session{Type: SessionUploaded})
	assert.Equal(t, 2, third)
	assert.Equal(t, []int{1, 2}, r.SessionIDs())
}

func TestDeleteSessionsDropsEmptyLinesAndFiles(t *testing.T) {
	t.Parallel()

	r := sampleReport(t)

	r.DeleteSessions(1)

	// router.go only had session 1 data and must disappear entirely.
	_, ok := r.File("pkg/server/router.go")
	assert.False(t, ok)

	f, ok := r.File("pkg/server/handler.go")
	require.True(t, ok)

	line, ok := f.Line(2)
	require.True(t, ok)
	require.Len(t, line.Sessions, 1)
	assert.Equal(t, 0, line.Sessions[0].SessionID)
	assert.Equal(t, 0, line.Value.Hits())
}

func TestDeleteSessionsUnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	r := sampleReport(t)

	assert.Nil(t, r.DeleteSessions(99))
	assert.Equal(t, 2, r.FileCount())
	assert.Equal(t, 2, r.SessionCount())
}

func TestMergeFoldsFiles(t *testing.T) {
	t.Parallel()

	r := New()
	sid := r.AddSession(&Session{Type: SessionUploaded})
	r.EnsureFile("a.go").AddLine(1, hitLine(sid, 0))

	other := New()
	other.EnsureFile("a.go").AddLine(1, hitLine(sid, 2))
	other.EnsureFile("b.go").AddLine(4, hitLine(sid, 1))

	r.Merge(other)

	f, ok := r.File("a.go")
	require.True(t, ok)

	line, ok := f.Line(1)
	require.True(t, ok)
	assert.Equal(t, 2, line.Value.Hits())

	_, ok = r.File("b.go")
	assert.True(t, ok)

	// Merge clones, so mutating the source afterwards leaves r alone.
	other.EnsureFile("b.go").AddLine(5, hitLine(sid, 1))
	f, _ = r.File("b.go")
	assert.Equal(t, 1, f.Len())
}

func TestSessionsByFlag(t *testing.T) {
	t.Parallel()

	r := sampleReport(t)

	assert.Equal(t, []int{0}, r.SessionsByFlag("unit"))
	assert.Equal(t, []int{0, 1}, r.SessionsByFlag("unit", "integration"))
	assert.Empty(t, r.SessionsByFlag("smoke"))
}

func TestRemoveLabels(t *testing.T) {
	t.Parallel()

	r := New()
	sid := r.AddSession(&Session{Type: SessionCarriedForward})

	idx := r.EnsureLabels()
	la := idx.Add("test_a")
	lb := idx.Add("test_b")

	f := r.EnsureFile("a.go")
	f.AddLine(1, Line{
		Value:    coverage.HitCount(1),
		Sessions: []LineSession{{SessionID: sid, Value: coverage.HitCount(1)}},
		Datapoints: []Datapoint{
			{SessionID: sid, Value: coverage.HitCount(1), LabelIDs: []int{la, lb}},
		},
	})
	f.AddLine(2, Line{
		Value:    coverage.HitCount(1),
		Sessions: []LineSession{{SessionID: sid, Value: coverage.HitCount(1)}},
		Datapoints: []Datapoint{
			{SessionID: sid, Value: coverage.HitCount(1), LabelIDs: []int{la}},
		},
	})

	changed := r.RemoveLabels([]int{sid}, []int{la})
	require.True(t, changed)

	line, _ := f.Line(1)
	require.Len(t, line.Datapoints, 1)
	assert.Equal(t, []int{lb}, line.Datapoints[0].LabelIDs)

	// The second line's only datapoint lost its last label and is gone,
	// but the session's line value survives.
	line, _ = f.Line(2)
	assert.Empty(t, line.Datapoints)
	require.Len(t, line.Sessions, 1)
	assert.Equal(t, 1, line.Value.Hits())
}

func TestStripSubsetDatapointsAfterLineMerge(t *testing.T) {
	t.Parallel()

	r := New()
	sid := r.AddSession(&Session{Type: SessionCarriedForward})

	idx := r.EnsureLabels()
	la := idx.Add("test_a")
	lb := idx.Add("test_b")

	// Two separate observations of the same line, one per label. Merging
	// must keep them as distinct datapoints, or stripping by label would
	// miss the stale attribution.
	f := r.EnsureFile("a.go")
	f.AddLine(1, Line{
		Value:    coverage.HitCount(1),
		Sessions: []LineSession{{SessionID: sid, Value: coverage.HitCount(1)}},
		Datapoints: []Datapoint{
			{SessionID: sid, Value: coverage.HitCount(1), LabelIDs: []int{la}},
		},
	})
	f.AddLine(1, Line{
		Value:    coverage.HitCount(1),
		Sessions: []LineSession{{SessionID: sid, Value: coverage.HitCount(1)}},
		Datapoints: []Datapoint{
			{SessionID: sid, Value: coverage.HitCount(1), LabelIDs: []int{lb}},
		},
	})

	assert.Equal(t, []int{la, lb}, r.SessionLabelIDs(sid))

	changed := r.StripSubsetDatapoints(sid, []int{la})
	require.True(t, changed)

	assert.Equal(t, []int{lb}, r.SessionLabelIDs(sid))

	line, _ := f.Line(1)
	require.Len(t, line.Datapoints, 1)
	assert.Equal(t, []int{lb}, line.Datapoints[0].LabelIDs)
}

func TestDropLabelsIfPlaceholderOnly(t *testing.T) {
	t.Parallel()

	r := New()

	assert.False(t, r.DropLabelsIfPlaceholderOnly())

	r.EnsureLabels()
	assert.True(t, r.DropLabelsIfPlaceholderOnly())
	assert.Nil(t, r.Labels())

	r.EnsureLabels().Add("test_a")
	assert.False(t, r.DropLabelsIfPlaceholderOnly())
	assert.NotNil(t, r.Labels())
}

func TestTotals(t *testing.T) {
	t.Parallel()

	r := sampleReport(t)
	t2 := r.Totals()

	assert.Equal(t, 2, t2.Files)
	assert.Equal(t, 4, t2.Lines)
	assert.Equal(t, 3, t2.Hits)
	assert.Equal(t, 1, t2.Misses)
	assert.Equal(t, 2, t2.Sessions)
	assert.Equal(t, "75", t2.Coverage)
}

func TestTotalsCountsPartialLines(t *testing.T) {
	t.Parallel()

	sid := 0

	f := NewFile("a.go")
	f.AddLine(1, hitLine(sid, 2))
	f.AddLine(2, hitLine(sid, 0))
	f.AddLine(3, Line{
		Value:    coverage.Fraction(1, 2),
		Type:     TypeBranch,
		Sessions: []LineSession{{SessionID: sid, Value: coverage.Fraction(1, 2)}},
	})
	f.AddLine(4, Line{
		Value:    coverage.Bool(true),
		Sessions: []LineSession{{SessionID: sid, Value: coverage.Bool(true)}},
	})

	totals := FileTotals(f)

	// A partially covered branch or a bare boolean hit is a partial, not
	// a full hit.
	assert.Equal(t, 4, totals.Lines)
	assert.Equal(t, 1, totals.Hits)
	assert.Equal(t, 2, totals.Partials)
	assert.Equal(t, 1, totals.Misses)
	assert.Equal(t, "25", totals.Coverage)
}

func TestRatio(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Ratio(0, 0))
	assert.Equal(t, "100", Ratio(7, 7))
	assert.Equal(t, "0", Ratio(0, 3))
	assert.Equal(t, "50", Ratio(1, 2))
	assert.Equal(t, "83.33333", Ratio(5, 6))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	r := sampleReport(t)
	clone := r.Clone()

	clone.EnsureFile("pkg/server/handler.go").AddLine(7, hitLine(0, 1))
	clone.DeleteSessions(1)

	f, _ := r.File("pkg/server/handler.go")
	_, ok := f.Line(7)
	assert.False(t, ok)
	assert.Equal(t, 2, r.SessionCount())
	assert.Equal(t, clone.NextSessionID(), r.NextSessionID())
}
