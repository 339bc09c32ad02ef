package report

import "sort"

// File holds the merged coverage of one resolved source path, keyed by line
// number. Line numbers start at 1; a line absent from the map was never
// mentioned by any session.
type File struct {
	Name  string
	lines map[int]Line
}

// NewFile creates an empty file record for a resolved path.
func NewFile(name string) *File {
	return &File{
		Name:  name,
		lines: make(map[int]Line),
	}
}

// Len returns the number of recorded lines.
func (f *File) Len() int {
	return len(f.lines)
}

// IsEmpty reports whether the file carries no line data.
func (f *File) IsEmpty() bool {
	return len(f.lines) == 0
}

// Line returns the record for a line number.
func (f *File) Line(lineno int) (Line, bool) {
	line, ok := f.lines[lineno]

	return line, ok
}

// AddLine folds a record into the file. Re-adding the same record is a
// no-op; records for an already known line merge with the stored one.
func (f *File) AddLine(lineno int, line Line) {
	if lineno < 1 {
		return
	}

	prev, ok := f.lines[lineno]
	if !ok {
		f.lines[lineno] = line.Clone()

		return
	}

	f.lines[lineno] = MergeLines(prev, line)
}

// SetLine replaces the record for a line number outright.
func (f *File) SetLine(lineno int, line Line) {
	if lineno < 1 {
		return
	}

	f.lines[lineno] = line
}

// LineNumbers returns the recorded line numbers in ascending order.
func (f *File) LineNumbers() []int {
	numbers := make([]int, 0, len(f.lines))
	for lineno := range f.lines {
		numbers = append(numbers, lineno)
	}

	sort.Ints(numbers)

	return numbers
}

// EachLine visits the lines in ascending line order.
func (f *File) EachLine(visit func(lineno int, line Line)) {
	for _, lineno := range f.LineNumbers() {
		visit(lineno, f.lines[lineno])
	}
}

// Merge folds another record of the same file into this one, line by line.
func (f *File) Merge(other *File) {
	if other == nil {
		return
	}

	for lineno, line := range other.lines {
		f.AddLine(lineno, line)
	}
}

// Clone returns a deep copy of the file.
func (f *File) Clone() *File {
	clone := NewFile(f.Name)

	for lineno, line := range f.lines {
		clone.lines[lineno] = line.Clone()
	}

	return clone
}

// deleteSessions strips every contribution of the given session ids and
// drops lines left with no sessions at all. It reports whether any line
// changed.
func (f *File) deleteSessions(ids map[int]struct{}) bool {
	changed := false

	for lineno, line := range f.lines {
		kept := line.Sessions[:0:0]

		for _, s := range line.Sessions {
			if _, gone := ids[s.SessionID]; !gone {
				kept = append(kept, s)
			}
		}

		if len(kept) == len(line.Sessions) {
			continue
		}

		changed = true

		if len(kept) == 0 {
			delete(f.lines, lineno)

			continue
		}

		line.Sessions = kept
		line.Datapoints = dropSessionDatapoints(line.Datapoints, ids)
		line.Value = lineValue(line.Sessions, line.Value, line.Value)
		f.lines[lineno] = line
	}

	return changed
}

func dropSessionDatapoints(datapoints []Datapoint, ids map[int]struct{}) []Datapoint {
	if len(datapoints) == 0 {
		return datapoints
	}

	kept := datapoints[:0:0]

	for _, d := range datapoints {
		if _, gone := ids[d.SessionID]; !gone {
			kept = append(kept, d)
		}
	}

	if len(kept) == 0 {
		return nil
	}

	return kept
}

// sessionLabelIDs accumulates the label ids referenced by one session's
// datapoints anywhere in the file.
func (f *File) sessionLabelIDs(sessionID int, into map[int]struct{}) {
	for _, line := range f.lines {
		for _, d := range line.Datapoints {
			if d.SessionID != sessionID {
				continue
			}

			for _, id := range d.LabelIDs {
				into[id] = struct{}{}
			}
		}
	}
}

// stripSubsetDatapoints removes datapoints of one session whose label set
// is fully contained in removed. Datapoints carrying at least one label
// outside the removed set stay whole. It reports whether anything changed.
func (f *File) stripSubsetDatapoints(sessionID int, removed map[int]struct{}) bool {
	changed := false

	for lineno, line := range f.lines {
		if len(line.Datapoints) == 0 {
			continue
		}

		kept := line.Datapoints[:0:0]
		lineChanged := false

		for _, d := range line.Datapoints {
			if d.SessionID == sessionID && labelsSubset(d.LabelIDs, removed) {
				lineChanged = true

				continue
			}

			kept = append(kept, d)
		}

		if !lineChanged {
			continue
		}

		changed = true

		if len(kept) == 0 {
			kept = nil
		}

		line.Datapoints = kept
		f.lines[lineno] = line
	}

	return changed
}

func labelsSubset(ids []int, removed map[int]struct{}) bool {
	for _, id := range ids {
		if _, ok := removed[id]; !ok {
			return false
		}
	}

	return true
}

// removeLabels strips the given label ids from datapoints belonging to the
// given sessions, dropping datapoints left with no labels. It reports
// whether anything changed.
func (f *File) removeLabels(sessions map[int]struct{}, labels map[int]struct{}) bool {
	changed := false

	for lineno, line := range f.lines {
		if len(line.Datapoints) == 0 {
			continue
		}

		kept := line.Datapoints[:0:0]
		lineChanged := false

		for _, d := range line.Datapoints {
			if _, target := sessions[d.SessionID]; !target {
				kept = append(kept, d)

				continue
			}

			remaining := d.LabelIDs[:0:0]

			for _, id := range d.LabelIDs {
				if _, gone := labels[id]; !gone {
					remaining = append(remaining, id)
				}
			}

			if len(remaining) == len(d.LabelIDs) {
				kept = append(kept, d)

				continue
			}

			lineChanged = true

			if len(remaining) == 0 {
				continue
			}

			d.LabelIDs = remaining
			kept = append(kept, d)
		}

		if !lineChanged {
			continue
		}

		changed = true

		if len(kept) == 0 {
			kept = nil
		}

		line.Datapoints = kept
		f.lines[lineno] = line
	}

	return changed
}
