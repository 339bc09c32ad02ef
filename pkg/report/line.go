package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/covmerge/covmerge/pkg/coverage"
)

// Coverage types recorded per line. Plain statements carry the empty type.
const (
	TypeLine   = ""
	TypeBranch = "b"
	TypeMethod = "m"
)

// LineSession is one session's contribution to a line: the value it
// observed, the branch targets it still misses and, for partially covered
// lines, the column spans it executed.
type LineSession struct {
	SessionID       int
	Value           coverage.Value
	MissingBranches []string
	Partials        []coverage.Span
	Complexity      int
}

// Clone returns a deep copy of the session entry.
func (s LineSession) Clone() LineSession {
	clone := s

	if s.MissingBranches != nil {
		clone.MissingBranches = append([]string(nil), s.MissingBranches...)
	}

	if s.Partials != nil {
		clone.Partials = append([]coverage.Span(nil), s.Partials...)
	}

	return clone
}

// Datapoint attributes a coverage value on a line to the test labels that
// produced it within one session.
type Datapoint struct {
	SessionID int
	Value     coverage.Value
	Type      string
	LabelIDs  []int
}

// Clone returns a deep copy of the datapoint.
func (d Datapoint) Clone() Datapoint {
	clone := d

	if d.LabelIDs != nil {
		clone.LabelIDs = append([]int(nil), d.LabelIDs...)
	}

	return clone
}

// key identifies a datapoint by session, type and label set. Each distinct
// hint group stays its own datapoint; only matching groups merge, so
// label-level attribution survives line merges intact.
func (d Datapoint) key() datapointKey {
	return datapointKey{sessionID: d.SessionID, typ: d.Type, labels: labelSetKey(d.LabelIDs)}
}

type datapointKey struct {
	sessionID int
	typ       string
	labels    string
}

// labelSetKey canonicalizes a label id set; hint order does not matter.
func labelSetKey(ids []int) string {
	if len(ids) == 0 {
		return ""
	}

	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.Itoa(id)
	}

	return strings.Join(parts, ",")
}

// Line is the merged coverage record of a single source line across every
// session in a report.
type Line struct {
	Value      coverage.Value
	Type       string
	Sessions   []LineSession
	Datapoints []Datapoint
	Complexity int
}

// Clone returns a deep copy of the line.
func (l Line) Clone() Line {
	clone := l

	if l.Sessions != nil {
		clone.Sessions = make([]LineSession, len(l.Sessions))
		for i, s := range l.Sessions {
			clone.Sessions[i] = s.Clone()
		}
	}

	if l.Datapoints != nil {
		clone.Datapoints = make([]Datapoint, len(l.Datapoints))
		for i, d := range l.Datapoints {
			clone.Datapoints[i] = d.Clone()
		}
	}

	return clone
}

// IsEmpty reports whether the line carries no session data at all.
func (l Line) IsEmpty() bool {
	return len(l.Sessions) == 0
}

// MergeLines combines two records of the same source line. Entries from the
// same session fold together, the line type keeps the most specific kind
// seen and the line value is recomputed from the surviving sessions, so the
// operation is commutative and merging a line with itself changes nothing.
func MergeLines(a, b Line) Line {
	merged := Line{
		Type:       mergeType(a.Type, b.Type),
		Complexity: maxInt(a.Complexity, b.Complexity),
	}

	merged.Sessions = mergeSessions(a.Sessions, b.Sessions)
	merged.Datapoints = mergeDatapoints(a.Datapoints, b.Datapoints)
	merged.Value = lineValue(merged.Sessions, a.Value, b.Value)

	return merged
}

func mergeType(a, b string) string {
	switch {
	case a == TypeMethod || b == TypeMethod:
		return TypeMethod
	case a == TypeBranch || b == TypeBranch:
		return TypeBranch
	default:
		return TypeLine
	}
}

func mergeSessions(a, b []LineSession) []LineSession {
	byID := make(map[int]LineSession, len(a)+len(b))
	order := make([]int, 0, len(a)+len(b))

	for _, s := range a {
		byID[s.SessionID] = s.Clone()
		order = append(order, s.SessionID)
	}

	for _, s := range b {
		prev, seen := byID[s.SessionID]
		if !seen {
			byID[s.SessionID] = s.Clone()
			order = append(order, s.SessionID)

			continue
		}

		byID[s.SessionID] = mergeLineSession(prev, s)
	}

	sort.Ints(order)

	merged := make([]LineSession, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}

	return merged
}

// mergeLineSession folds two contributions of the same session. Partial
// spans combine column-wise, a branch stays missing only when both sides
// still miss it, and the value follows the usual monotone rule.
func mergeLineSession(a, b LineSession) LineSession {
	merged := LineSession{
		SessionID:  a.SessionID,
		Complexity: maxInt(a.Complexity, b.Complexity),
	}

	merged.Partials = coverage.CombineSpans(append(append([]coverage.Span(nil), a.Partials...), b.Partials...))

	switch {
	case len(merged.Partials) > 0:
		merged.Value = coverage.ValueFromSpans(merged.Partials)
	default:
		merged.Value = coverage.Merge(a.Value, b.Value)
	}

	merged.MissingBranches = intersectBranches(a.MissingBranches, b.MissingBranches)

	return merged
}

func intersectBranches(a, b []string) []string {
	if a == nil {
		return append([]string(nil), b...)
	}

	if b == nil {
		return append([]string(nil), a...)
	}

	inB := make(map[string]struct{}, len(b))
	for _, br := range b {
		inB[br] = struct{}{}
	}

	var common []string

	for _, br := range a {
		if _, ok := inB[br]; ok {
			common = append(common, br)
		}
	}

	if common == nil {
		return []string{}
	}

	return common
}

func mergeDatapoints(a, b []Datapoint) []Datapoint {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	byKey := make(map[datapointKey]Datapoint, len(a)+len(b))

	for _, d := range a {
		accumulateDatapoint(byKey, d)
	}

	for _, d := range b {
		accumulateDatapoint(byKey, d)
	}

	merged := make([]Datapoint, 0, len(byKey))
	for _, d := range byKey {
		merged = append(merged, d)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].SessionID != merged[j].SessionID {
			return merged[i].SessionID < merged[j].SessionID
		}

		if merged[i].Type != merged[j].Type {
			return merged[i].Type < merged[j].Type
		}

		return labelSetKey(merged[i].LabelIDs) < labelSetKey(merged[j].LabelIDs)
	})

	return merged
}

func accumulateDatapoint(byKey map[datapointKey]Datapoint, d Datapoint) {
	key := d.key()

	prev, seen := byKey[key]
	if !seen {
		byKey[key] = d.Clone()

		return
	}

	prev.Value = coverage.Merge(prev.Value, d.Value)
	prev.LabelIDs = unionLabels(prev.LabelIDs, d.LabelIDs)
	byKey[key] = prev
}

func unionLabels(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	union := make([]int, 0, len(a)+len(b))

	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}

	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}

	sort.Ints(union)

	return union
}

// lineValue recomputes the line-level value from the merged sessions. Lines
// with no session data keep the better of the two stored values.
func lineValue(sessions []LineSession, a, b coverage.Value) coverage.Value {
	if len(sessions) == 0 {
		return coverage.Merge(a, b)
	}

	acc := sessions[0].Value
	for _, s := range sessions[1:] {
		acc = foldSessionValues(acc, s.Value)
	}

	return acc
}

// foldSessionValues combines values observed by distinct sessions. Hit
// counts from separate test runs add up; the monotone merge only applies
// within one session, where repeated events re-observe the same run.
func foldSessionValues(a, b coverage.Value) coverage.Value {
	if a.Kind() == coverage.KindCount && b.Kind() == coverage.KindCount {
		return coverage.HitCount(a.Hits() + b.Hits())
	}

	return coverage.Merge(a, b)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}
