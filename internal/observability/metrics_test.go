package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewEngineMetrics(t *testing.T) {
	t.Parallel()

	em, err := NewEngineMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, em)

	// Recording against noop instruments must not panic.
	ctx := context.Background()
	em.RecordUpload(ctx, UploadMerged, 40*time.Millisecond)
	em.RecordFile(ctx, FileResolved)
	em.RecordDecodeFailure(ctx, "lcov")
	em.RecordSweep(ctx, 2, 1)
}

func TestNilEngineMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var em *EngineMetrics

	ctx := context.Background()
	em.RecordUpload(ctx, UploadFailed, time.Second)
	em.RecordFile(ctx, FileCorrupt)
	em.RecordDecodeFailure(ctx, "gocover")
	em.RecordSweep(ctx, 0, 0)
}

func TestNewExporter(t *testing.T) {
	t.Parallel()

	exp, err := NewExporter()
	require.NoError(t, err)
	assert.NotNil(t, exp.Handler())

	em, err := exp.Metrics()
	require.NoError(t, err)
	assert.NotNil(t, em)
}
