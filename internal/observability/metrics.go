package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricUploadsTotal   = "covmerge.uploads.total"
	metricFilesTotal     = "covmerge.files.total"
	metricMergeDuration  = "covmerge.merge.duration.seconds"
	metricSessionsSwept  = "covmerge.carryforward.sessions.total"
	metricDecodeFailures = "covmerge.decode.failures.total"

	attrStatus  = "status"
	attrOutcome = "outcome"
	attrFormat  = "format"
	attrSweep   = "sweep"
)

// Upload statuses.
const (
	UploadMerged = "merged"
	UploadEmpty  = "empty"
	UploadFailed = "failed"
)

// Per-file outcomes.
const (
	FileResolved = "resolved"
	FileRejected = "rejected"
	FileExpired  = "expired"
	FileCorrupt  = "corrupt"
	FileUnknown  = "unknown_format"
)

// Carryforward sweep kinds.
const (
	SweepDeleted  = "deleted"
	SweepModified = "modified"
)

// mergeDurationBoundaries covers single-file merges measured in
// milliseconds up to monorepo uploads taking tens of seconds.
var mergeDurationBoundaries = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// EngineMetrics holds the OTel instruments recorded by the merge pipeline.
type EngineMetrics struct {
	uploadsTotal   metric.Int64Counter
	filesTotal     metric.Int64Counter
	mergeDuration  metric.Float64Histogram
	sessionsSwept  metric.Int64Counter
	decodeFailures metric.Int64Counter
}

// NewEngineMetrics creates the engine instruments from the given meter.
func NewEngineMetrics(mt metric.Meter) (*EngineMetrics, error) {
	b := newMetricBuilder(mt)

	em := &EngineMetrics{
		uploadsTotal:   b.counter(metricUploadsTotal, "Upload merge transactions by status", "{upload}"),
		filesTotal:     b.counter(metricFilesTotal, "Uploaded coverage files by processing outcome", "{file}"),
		mergeDuration:  b.histogram(metricMergeDuration, "Merge transaction duration in seconds", "s", mergeDurationBoundaries...),
		sessionsSwept:  b.counter(metricSessionsSwept, "Carryforward sessions deleted or modified by cleanup", "{session}"),
		decodeFailures: b.counter(metricDecodeFailures, "Decoder failures by format", "{failure}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return em, nil
}

// RecordUpload records one finished merge transaction.
func (em *EngineMetrics) RecordUpload(ctx context.Context, status string, duration time.Duration) {
	if em == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	em.uploadsTotal.Add(ctx, 1, attrs)
	em.mergeDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFile records the outcome of one uploaded coverage file.
func (em *EngineMetrics) RecordFile(ctx context.Context, outcome string) {
	if em == nil {
		return
	}

	em.filesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// RecordDecodeFailure records a decoder failure for a format.
func (em *EngineMetrics) RecordDecodeFailure(ctx context.Context, format string) {
	if em == nil {
		return
	}

	em.decodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(attrFormat, format)))
}

// RecordSweep records carryforward cleanup results.
func (em *EngineMetrics) RecordSweep(ctx context.Context, deleted, modified int) {
	if em == nil {
		return
	}

	if deleted > 0 {
		em.sessionsSwept.Add(ctx, int64(deleted), metric.WithAttributes(attribute.String(attrSweep, SweepDeleted)))
	}

	if modified > 0 {
		em.sessionsSwept.Add(ctx, int64(modified), metric.WithAttributes(attribute.String(attrSweep, SweepModified)))
	}
}
