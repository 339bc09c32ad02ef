package pathfix

import (
	"log/slog"
	"path"
)

// BasePathFixer wraps a Fixer with the directory of the uploaded report file
// (the in-file location marker). When plain resolution fails it retries with
// the raw path joined to that base directory; when both succeed but
// disagree, the disagreement is only counted for diagnostics and the plain
// result stands.
type BasePathFixer struct {
	parent *Fixer
	bases  []string

	unexpected []disagreement
}

type disagreement struct {
	raw       string
	plain     string
	baseAware string
}

// ForSourceFile derives a base-path-aware fixer for one uploaded report
// file, using the directory part of its in-upload name as the base.
func (f *Fixer) ForSourceFile(reportFilename string) *BasePathFixer {
	var bases []string

	if dir := path.Dir(reportFilename); dir != "" && dir != "." && dir != "/" {
		bases = append(bases, dir)
	}

	return &BasePathFixer{parent: f, bases: bases}
}

// Fix resolves one raw path, retrying against the base directories only when
// plain resolution rejects the path.
func (b *BasePathFixer) Fix(raw string) (string, bool) {
	plain, plainOK := b.parent.Fix(raw)
	if len(b.bases) == 0 {
		return plain, plainOK
	}

	for _, base := range b.bases {
		adjusted, ok := b.parent.fix(path.Join(base, raw))
		if !ok {
			continue
		}

		if plainOK {
			if adjusted != plain {
				b.unexpected = append(b.unexpected, disagreement{raw: raw, plain: plain, baseAware: adjusted})
			}

			// Plain resolution takes precedence while base-aware
			// resolution is observational.
			return plain, true
		}

		b.parent.record(raw, adjusted, true)

		return adjusted, true
	}

	return plain, plainOK
}

// LogAbnormalities reports cases where plain and base-path-aware resolution
// disagreed for this report file.
func (b *BasePathFixer) LogAbnormalities(logger *slog.Logger) {
	if logger == nil || len(b.unexpected) == 0 {
		return
	}

	samples := b.unexpected
	if len(samples) > maxLoggedPaths {
		samples = samples[:maxLoggedPaths]
	}

	attrs := make([]any, 0, len(samples))
	for _, d := range samples {
		attrs = append(attrs, slog.Group("path",
			slog.String("raw", d.raw),
			slog.String("plain", d.plain),
			slog.String("base_aware", d.baseAware),
		))
	}

	logger.Warn("base-path-aware resolution disagreed with plain resolution",
		slog.Int("count", len(b.unexpected)),
		slog.Any("samples", attrs),
	)
}
