package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/covmerge/covmerge/internal/observability"
	"github.com/covmerge/covmerge/pkg/builder"
	"github.com/covmerge/covmerge/pkg/decoder"
	"github.com/covmerge/covmerge/pkg/pathfix"
	"github.com/covmerge/covmerge/pkg/pathmap"
	"github.com/covmerge/covmerge/pkg/report"
	"github.com/covmerge/covmerge/pkg/upload"
	"github.com/covmerge/covmerge/pkg/useryaml"
)

// Pipeline processes raw upload envelopes end to end: parse the envelope,
// probe and decode each coverage file, resolve paths, build files and run
// the merge transaction. It is safe for sequential reuse across uploads;
// per-commit exclusivity is the caller's responsibility.
type Pipeline struct {
	Registry *decoder.Registry
	Config   *useryaml.Config
	Logger   *slog.Logger
	Metrics  *observability.EngineMetrics

	// Clock stands in for time.Now in tests.
	Clock func() time.Time

	// TOC overrides the envelope's table of contents when non-nil, for
	// local runs where the file list comes from the working tree.
	TOC []string
}

// UploadMeta is the identifying metadata of one upload.
type UploadMeta struct {
	Flags    []string
	Name     string
	Archive  string
	Provider string
	Build    string
	Job      string
	URL      string
}

// Process merges one raw upload against the previous report. The previous
// report is never mutated; on success the returned Result carries the new
// report to persist.
func (p *Pipeline) Process(ctx context.Context, previous *report.Report, raw []byte, meta UploadMeta) (*Result, error) {
	started := p.now()

	result, err := p.process(ctx, previous, raw, meta)
	if err != nil {
		status := observability.UploadFailed
		if errors.Is(err, ErrEmptyUpload) {
			status = observability.UploadEmpty
		}

		p.Metrics.RecordUpload(ctx, status, p.now().Sub(started))

		return nil, err
	}

	p.Metrics.RecordUpload(ctx, observability.UploadMerged, p.now().Sub(started))

	return result, nil
}

func (p *Pipeline) process(ctx context.Context, previous *report.Report, raw []byte, meta UploadMeta) (*Result, error) {
	envelope, err := upload.ParseLegacy(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upload envelope: %w", err)
	}

	fixer, err := p.newFixer(envelope)
	if err != nil {
		return nil, err
	}

	session := &report.Session{
		Type:     report.SessionUploaded,
		Flags:    meta.Flags,
		Name:     meta.Name,
		Archive:  meta.Archive,
		Provider: meta.Provider,
		Build:    meta.Build,
		Job:      meta.Job,
		URL:      meta.URL,
		Env:      envelope.Env,
		Time:     p.now().Unix(),
	}

	tx := Start(previous, session, p.Config)

	bs := builder.NewSession(builder.Options{
		SessionID:  tx.SessionID(),
		Fixer:      fixer,
		LabelAware: tx.LabelAware(),
		MaxAge:     p.maxAge(),
		Clock:      p.Clock,
	})

	for _, rawFile := range envelope.Files {
		p.processFile(ctx, tx, bs, fixer, rawFile)
	}

	fixer.LogUnusualResults(p.logger(), tx.SessionID())

	result, err := tx.Finalize(bs.Labels())
	if err != nil {
		return nil, err
	}

	p.Metrics.RecordSweep(ctx, len(result.Adjustment.FullyDeleted), len(result.Adjustment.PartiallyModified))

	return result, nil
}

// processFile decodes and builds one coverage file from the envelope.
// Failures are local: the file is dropped, logged, counted, and the rest
// of the upload continues. Paths resolve through a base-path-aware fixer
// anchored at the file's location inside the upload, so relative paths in
// nested reports still find their canonical form.
func (p *Pipeline) processFile(ctx context.Context, tx *Transaction, bs *builder.Session, fixer *pathfix.Fixer, rawFile upload.RawFile) {
	dec := p.registry().Probe(rawFile.Content, rawFile.Path)
	if dec == nil {
		p.logger().Warn("no decoder matched uploaded file",
			slog.String("path", rawFile.Path),
			slog.String("format", decoder.Classify(rawFile.Content).String()))
		p.Metrics.RecordFile(ctx, observability.FileUnknown)

		return
	}

	decoded, err := dec.Decode(rawFile.Content, rawFile.Path)
	if err != nil {
		p.logger().Warn("dropping corrupt coverage file",
			slog.String("path", rawFile.Path),
			slog.String("decoder", dec.Name()),
			slog.Any("error", err))
		p.Metrics.RecordFile(ctx, observability.FileCorrupt)
		p.Metrics.RecordDecodeFailure(ctx, dec.Name())

		return
	}

	fileFixer := fixer.ForSourceFile(rawFile.Path)
	defer fileFixer.LogAbnormalities(p.logger())

	fbs := bs.WithFixer(fileFixer)

	builders := make(map[string]*builder.FileBuilder)
	expired := false

	for _, rec := range decoded.Records {
		fb, seen := builders[rec.Path]
		if !seen {
			fb, err = fbs.CreateFile(rec.Path, decoded.GeneratedAt)

			var expiredErr *builder.ReportExpiredError
			if errors.As(err, &expiredErr) {
				p.logger().Warn("dropping expired coverage file",
					slog.String("path", rawFile.Path),
					slog.Time("generated_at", expiredErr.GeneratedAt))
				p.Metrics.RecordFile(ctx, observability.FileExpired)
				expired = true

				break
			}

			builders[rec.Path] = fb
		}

		if fb == nil {
			continue
		}

		fb.Append(rec.Line, rec.LineEvent)
	}

	if expired {
		return
	}

	appended := false

	for _, fb := range builders {
		if fb == nil {
			continue
		}

		if f := fb.Finish(); f != nil {
			tx.AppendFile(f)

			appended = true
		}
	}

	if appended {
		p.Metrics.RecordFile(ctx, observability.FileResolved)
	} else {
		p.Metrics.RecordFile(ctx, observability.FileRejected)
	}
}

// newFixer assembles the path fixer from the user config's rules and the
// table of contents, preferring an explicit override over the envelope's.
func (p *Pipeline) newFixer(envelope *upload.RawUpload) (*pathfix.Fixer, error) {
	fixes, err := pathfix.ParseUserFixes(p.config().Fixes)
	if err != nil {
		return nil, fmt.Errorf("parse path fixes: %w", err)
	}

	includes, err := pathfix.ParseUserIncludes(excludePatterns(p.config().Ignore))
	if err != nil {
		return nil, fmt.Errorf("parse ignore patterns: %w", err)
	}

	toc := envelope.TOC
	if p.TOC != nil {
		toc = p.TOC
	}

	var tree *pathmap.Tree
	if len(toc) > 0 {
		tree = pathmap.NewTree(toc)
	}

	return pathfix.New(pathfix.Options{
		Fixes:    fixes,
		Includes: includes,
		TOC:      tree,
	}), nil
}

// excludePatterns turns user ignore globs into exclusion rules.
func excludePatterns(ignore []string) []string {
	if len(ignore) == 0 {
		return nil
	}

	patterns := make([]string, len(ignore))
	for i, pattern := range ignore {
		patterns[i] = "!" + pattern
	}

	return patterns
}

func (p *Pipeline) registry() *decoder.Registry {
	if p.Registry == nil {
		return decoder.Default()
	}

	return p.Registry
}

func (p *Pipeline) config() *useryaml.Config {
	if p.Config == nil {
		return &useryaml.Config{}
	}

	return p.Config
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}

	return p.Logger
}

func (p *Pipeline) maxAge() time.Duration {
	return p.config().Covmerge.MaxReportAge.Duration
}

func (p *Pipeline) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}

	return p.Clock()
}
