package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covmerge/covmerge/pkg/coverage"
	"github.com/covmerge/covmerge/pkg/report"
)

func sampleReport() *report.Report {
	r := report.New()
	sid := r.AddSession(&report.Session{Type: report.SessionUploaded, Flags: []string{"unit"}})

	f := r.EnsureFile("pkg/server/handler.go")
	f.AddLine(1, report.Line{
		Value:    coverage.HitCount(1),
		Sessions: []report.LineSession{{SessionID: sid, Value: coverage.HitCount(1)}},
	})
	f.AddLine(3, report.Line{
		Value:    coverage.HitCount(0),
		Sessions: []report.LineSession{{SessionID: sid, Value: coverage.HitCount(0)}},
	})

	return r
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{true, false} {
		store := New("mem://covmerge-test/roundtrip", compress)
		ctx := context.Background()

		digest, err := store.Put(ctx, "abc123", sampleReport())
		require.NoError(t, err)
		assert.NotEmpty(t, digest)

		ok, err := store.Exists(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.Get(ctx, "abc123")
		require.NoError(t, err)

		assert.Equal(t, []string{"pkg/server/handler.go"}, got.FileNames())
		assert.Equal(t, []int{0}, got.SessionIDs())

		f, _ := got.File("pkg/server/handler.go")
		line, okLine := f.Line(1)
		require.True(t, okLine)
		assert.Equal(t, 1, line.Value.Hits())

		require.NoError(t, store.Delete(ctx, "abc123"))

		ok, err = store.Exists(ctx, "abc123")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := New("mem://covmerge-test/missing", true)

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
}
