// Package builder turns normalized decoder events for one uploaded file
// into report.File objects, resolving raw paths and translating label hints
// through a session-local index.
package builder

import (
	"sort"
	"time"

	"github.com/covmerge/covmerge/pkg/coverage"
	"github.com/covmerge/covmerge/pkg/report"
)

// PathFixer resolves one raw uploaded path to its canonical repo-relative
// form; ok reports whether the path belongs in the report.
type PathFixer interface {
	Fix(raw string) (string, bool)
}

// Options configures a builder Session for one upload.
type Options struct {
	// SessionID is the report-level session id every contribution is keyed
	// under. The merge engine allocates it before building begins.
	SessionID int

	// Fixer resolves raw uploaded paths. Required.
	Fixer PathFixer

	// LabelAware turns label-hint translation on. When off, built lines
	// never carry datapoints, not even empty ones.
	LabelAware bool

	// MaxAge rejects files whose declared source timestamp is older. Zero
	// disables the check.
	MaxAge time.Duration

	// Clock stands in for time.Now in tests.
	Clock func() time.Time
}

// Session is the per-upload construction context. Independent files of one
// upload share it read-mostly: the only mutable shared state is the
// session-local label index, so hosts running files in parallel must
// serialize CreateFile/Append calls or build files sequentially.
type Session struct {
	opts   Options
	labels *report.LabelIndex
}

// NewSession creates a builder session for one upload.
func NewSession(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Session{opts: opts}

	if opts.LabelAware {
		s.labels = report.NewLabelIndex()
	}

	return s
}

// WithFixer returns a view of the session whose CreateFile resolves paths
// through the given fixer, typically the base-path-aware variant derived
// from one report file's location inside the upload. The label index and
// session id stay shared with the receiver.
func (s *Session) WithFixer(f PathFixer) *Session {
	view := *s
	view.opts.Fixer = f

	return &view
}

// SessionID returns the report-level session id contributions key under.
func (s *Session) SessionID() int {
	return s.opts.SessionID
}

// LabelAware reports whether label hints are being recorded.
func (s *Session) LabelAware() bool {
	return s.opts.LabelAware
}

// Labels returns the session-local label index, nil when label-unaware.
// The merge engine reconciles it against the report's index at finalize.
func (s *Session) Labels() *report.LabelIndex {
	return s.labels
}

// CreateFile starts building one uploaded file. A nil FileBuilder with a
// nil error means the path was rejected by resolution and the caller must
// skip the file silently. generatedAt is the source timestamp the decoder
// extracted; the zero time skips the age check.
func (s *Session) CreateFile(rawPath string, generatedAt time.Time) (*FileBuilder, error) {
	if s.opts.MaxAge > 0 && !generatedAt.IsZero() {
		if s.opts.Clock().Sub(generatedAt) > s.opts.MaxAge {
			return nil, &ReportExpiredError{
				Path:        rawPath,
				GeneratedAt: generatedAt,
				MaxAge:      s.opts.MaxAge,
			}
		}
	}

	resolved, ok := s.opts.Fixer.Fix(rawPath)
	if !ok || resolved == "" {
		return nil, nil
	}

	return &FileBuilder{
		session: s,
		file:    report.NewFile(resolved),
	}, nil
}

// LabelHint names a test either by raw string or by an id already resolved
// against this session's index. The empty string stands for the
// placeholder.
type LabelHint struct {
	Label string
	ID    int
	ByID  bool
}

// LabelByName hints a raw label string.
func LabelByName(label string) LabelHint {
	return LabelHint{Label: label}
}

// LabelByID hints an id already allocated in the session-local index.
func LabelByID(id int) LabelHint {
	return LabelHint{ID: id, ByID: true}
}

// LineEvent is one normalized decoder observation for a source line.
type LineEvent struct {
	Value           coverage.Value
	Type            string
	Partials        []coverage.Span
	MissingBranches []string
	Complexity      int
	Labels          []LabelHint
}

// FileBuilder accumulates the line events of one uploaded file.
type FileBuilder struct {
	session *Session
	file    *report.File
}

// Path returns the resolved path the file will be stored under.
func (fb *FileBuilder) Path() string {
	return fb.file.Name
}

// Append records one line observation. Appending the same line twice merges
// the records instead of overwriting, so repeated events are safe.
func (fb *FileBuilder) Append(lineno int, ev LineEvent) {
	if lineno < 1 {
		return
	}

	line := report.Line{
		Value:      ev.Value,
		Type:       ev.Type,
		Complexity: ev.Complexity,
		Sessions: []report.LineSession{
			{
				SessionID:       fb.session.opts.SessionID,
				Value:           ev.Value,
				MissingBranches: ev.MissingBranches,
				Partials:        coverage.CombineSpans(ev.Partials),
				Complexity:      ev.Complexity,
			},
		},
	}

	if fb.session.opts.LabelAware && len(ev.Labels) > 0 {
		line.Datapoints = []report.Datapoint{
			{
				SessionID: fb.session.opts.SessionID,
				Value:     ev.Value,
				Type:      ev.Type,
				LabelIDs:  fb.session.translateHints(ev.Labels),
			},
		}
	}

	fb.file.AddLine(lineno, line)
}

// Finish returns the built file, nil when no line survived.
func (fb *FileBuilder) Finish() *report.File {
	if fb.file.IsEmpty() {
		return nil
	}

	return fb.file
}

// translateHints maps hints to session-local label ids, allocating fresh
// ids for unseen labels. Duplicates collapse.
func (s *Session) translateHints(hints []LabelHint) []int {
	ids := make([]int, 0, len(hints))
	seen := make(map[int]struct{}, len(hints))

	for _, hint := range hints {
		var id int

		if hint.ByID {
			id = hint.ID
		} else {
			id = s.labels.Add(hint.Label)
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}
