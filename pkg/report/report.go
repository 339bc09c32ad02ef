package report

import "sort"

// Report is the merged coverage state of one commit: files keyed by
// resolved path, the sessions that contributed them and, for label-aware
// reports, the label index shared by every datapoint.
//
// Session ids are allocated strictly increasing and never reused, even
// after sessions are deleted, so an id observed once always refers to the
// same upload for the lifetime of the commit.
type Report struct {
	files       map[string]*File
	sessions    map[int]*Session
	labels      *LabelIndex
	nextSession int
}

// New creates an empty, label-unaware report.
func New() *Report {
	return &Report{
		files:    make(map[string]*File),
		sessions: make(map[int]*Session),
	}
}

// IsEmpty reports whether the report holds no line data at all.
func (r *Report) IsEmpty() bool {
	for _, f := range r.files {
		if !f.IsEmpty() {
			return false
		}
	}

	return true
}

// FileCount returns the number of files with recorded lines.
func (r *Report) FileCount() int {
	n := 0

	for _, f := range r.files {
		if !f.IsEmpty() {
			n++
		}
	}

	return n
}

// File returns the record for a resolved path.
func (r *Report) File(name string) (*File, bool) {
	f, ok := r.files[name]

	return f, ok
}

// EnsureFile returns the record for a resolved path, creating it if needed.
func (r *Report) EnsureFile(name string) *File {
	f, ok := r.files[name]
	if !ok {
		f = NewFile(name)
		r.files[name] = f
	}

	return f
}

// AddFile folds a file record into the report, merging with any record
// already stored under the same path.
func (r *Report) AddFile(f *File) {
	if f == nil || f.Name == "" {
		return
	}

	prev, ok := r.files[f.Name]
	if !ok {
		r.files[f.Name] = f

		return
	}

	prev.Merge(f)
}

// DeleteFile drops the record for a resolved path.
func (r *Report) DeleteFile(name string) {
	delete(r.files, name)
}

// FileNames returns the resolved paths in lexical order.
func (r *Report) FileNames() []string {
	names := make([]string, 0, len(r.files))
	for name := range r.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// EachFile visits the files in lexical path order.
func (r *Report) EachFile(visit func(f *File)) {
	for _, name := range r.FileNames() {
		visit(r.files[name])
	}
}

// Session returns the session stored under an id.
func (r *Report) Session(id int) (*Session, bool) {
	s, ok := r.sessions[id]

	return s, ok
}

// Sessions returns the sessions in ascending id order.
func (r *Report) Sessions() []*Session {
	ids := r.SessionIDs()

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sessions = append(sessions, r.sessions[id])
	}

	return sessions
}

// SessionIDs returns the live session ids in ascending order.
func (r *Report) SessionIDs() []int {
	ids := make([]int, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// SessionCount returns the number of live sessions.
func (r *Report) SessionCount() int {
	return len(r.sessions)
}

// NextSessionID returns the id the next AddSession will allocate.
func (r *Report) NextSessionID() int {
	return r.nextSession
}

// AddSession stores a session under a freshly allocated id and returns the
// id. Ids of deleted sessions are never handed out again.
func (r *Report) AddSession(s *Session) int {
	id := r.nextSession
	r.nextSession++

	s.ID = id
	r.sessions[id] = s

	return id
}

// restoreSession places a session under an explicit id during decoding and
// advances the allocation cursor past it.
func (r *Report) restoreSession(id int, s *Session) {
	s.ID = id
	r.sessions[id] = s

	if id >= r.nextSession {
		r.nextSession = id + 1
	}
}

// SessionsByFlag returns the ids of sessions carrying any of the flags, in
// ascending order.
func (r *Report) SessionsByFlag(flags ...string) []int {
	var ids []int

	for id, s := range r.sessions {
		if s.HasAnyFlag(flags...) {
			ids = append(ids, id)
		}
	}

	sort.Ints(ids)

	return ids
}

// Labels returns the label index, or nil for label-unaware reports.
func (r *Report) Labels() *LabelIndex {
	return r.labels
}

// EnsureLabels returns the label index, creating it on first use.
func (r *Report) EnsureLabels() *LabelIndex {
	if r.labels == nil {
		r.labels = NewLabelIndex()
	}

	return r.labels
}

// DropLabelsIfPlaceholderOnly discards the label index when no real label
// was ever recorded, returning the report to label-unaware form. It reports
// whether the index was dropped.
func (r *Report) DropLabelsIfPlaceholderOnly() bool {
	if r.labels == nil || !r.labels.OnlyPlaceholder() {
		return false
	}

	r.labels = nil

	return true
}

// Merge folds another report's files into this one. Session ids in the
// other report must already be ids of this report; Merge does not remap
// them. Sessions and labels are not copied.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}

	for _, name := range other.FileNames() {
		r.AddFile(other.files[name].Clone())
	}
}

// DeleteSessions removes the given sessions and every line contribution
// they made, dropping lines and files left empty. It returns the ids that
// were actually live.
func (r *Report) DeleteSessions(ids ...int) []int {
	gone := make(map[int]struct{}, len(ids))
	var deleted []int

	for _, id := range ids {
		if _, ok := r.sessions[id]; !ok {
			continue
		}

		delete(r.sessions, id)
		gone[id] = struct{}{}
		deleted = append(deleted, id)
	}

	if len(gone) == 0 {
		return nil
	}

	for name, f := range r.files {
		f.deleteSessions(gone)

		if f.IsEmpty() {
			delete(r.files, name)
		}
	}

	sort.Ints(deleted)

	return deleted
}

// RemoveLabels strips the given labels from every datapoint the given
// sessions contributed, dropping datapoints left with no labels. Sessions
// whose lines lose all datapoints keep their line values; only label
// attribution is removed. It reports whether any file changed.
func (r *Report) RemoveLabels(sessionIDs []int, labelIDs []int) bool {
	if len(sessionIDs) == 0 || len(labelIDs) == 0 {
		return false
	}

	sessions := make(map[int]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		sessions[id] = struct{}{}
	}

	labels := make(map[int]struct{}, len(labelIDs))
	for _, id := range labelIDs {
		labels[id] = struct{}{}
	}

	changed := false

	for _, f := range r.files {
		if f.removeLabels(sessions, labels) {
			changed = true
		}
	}

	return changed
}

// SessionLabelIDs returns every label id the session's datapoints still
// reference anywhere in the report, in ascending order.
func (r *Report) SessionLabelIDs(sessionID int) []int {
	seen := make(map[int]struct{})

	for _, f := range r.files {
		f.sessionLabelIDs(sessionID, seen)
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// StripSubsetDatapoints removes the session's datapoints whose label sets
// are fully contained in the removed set; datapoints carrying any label
// outside it survive whole. It reports whether anything changed.
func (r *Report) StripSubsetDatapoints(sessionID int, removedLabelIDs []int) bool {
	if len(removedLabelIDs) == 0 {
		return false
	}

	removed := make(map[int]struct{}, len(removedLabelIDs))
	for _, id := range removedLabelIDs {
		removed[id] = struct{}{}
	}

	changed := false

	for _, f := range r.files {
		if f.stripSubsetDatapoints(sessionID, removed) {
			changed = true
		}
	}

	return changed
}

// Totals computes the aggregate totals across every file and refreshes the
// session count.
func (r *Report) Totals() Totals {
	var t Totals

	for _, f := range r.files {
		if f.IsEmpty() {
			continue
		}

		t.Add(FileTotals(f))
	}

	t.Coverage = Ratio(t.Hits, t.Lines)
	t.Sessions = len(r.sessions)

	return t
}

// Clone returns a deep copy of the report.
func (r *Report) Clone() *Report {
	clone := New()
	clone.nextSession = r.nextSession

	for name, f := range r.files {
		clone.files[name] = f.Clone()
	}

	for id, s := range r.sessions {
		clone.sessions[id] = s.Clone()
	}

	if r.labels != nil {
		clone.labels = r.labels.Clone()
	}

	return clone
}

// UsedLabelIDs returns every label id referenced by any datapoint, in
// ascending order. The placeholder counts only when actually referenced.
func (r *Report) UsedLabelIDs() []int {
	seen := make(map[int]struct{})

	for _, f := range r.files {
		for _, line := range f.lines {
			for _, d := range line.Datapoints {
				for _, id := range d.LabelIDs {
					seen[id] = struct{}{}
				}
			}
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}
