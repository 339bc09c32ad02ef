package coverage

import (
	"encoding/json"
	"fmt"
	"sort"
)

// OpenEnd marks a span without a closing column: it reaches the end of the
// line.
const OpenEnd = -1

// Span is a partial-coverage observation for a sub-range of columns on one
// line. Start is inclusive and End exclusive; Start 0 means "from line start"
// and End == OpenEnd means "to end of line".
type Span struct {
	Start int
	End   int
	Hits  int
}

// Open reports whether the span is open-ended.
func (s Span) Open() bool { return s.End == OpenEnd }

// MarshalJSON renders the span in its wire shape [start, end|null, hits].
func (s Span) MarshalJSON() ([]byte, error) {
	if s.Open() {
		return json.Marshal([]any{s.Start, nil, s.Hits})
	}

	return json.Marshal([]any{s.Start, s.End, s.Hits})
}

// UnmarshalJSON accepts [start, end|null, hits]; a null start is normalized
// to the start of the line.
func (s *Span) UnmarshalJSON(data []byte) error {
	var raw [3]*int

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("decode partial span: %w", err)
	}

	span := Span{End: OpenEnd}
	if raw[0] != nil {
		span.Start = *raw[0]
	}

	if raw[1] != nil {
		span.End = *raw[1]
	}

	if raw[2] != nil {
		span.Hits = *raw[2]
	}

	*s = span

	return nil
}

// CombineSpans merges overlapping partial-coverage spans for one line into
// the minimal ordered span list with the same total coverage.
//
// Every closed span is expanded into per-column hit values, open-ended spans
// additionally feed an end-of-line bucket, the per-column values are combined
// with the line-value rule (greater hit count wins), and consecutive columns
// with the same merged value collapse back into spans. The result is
// independent of input order and re-combining it is a no-op. A degenerate
// input that expands to no columns at all (such as two zero-width spans)
// yields nil, meaning "no usable partial data".
func CombineSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}

	if len(spans) == 1 {
		return []Span{spans[0]}
	}

	columns := make(map[int]int)
	maxStart := 0

	for _, span := range spans {
		if span.Start > maxStart {
			maxStart = span.Start
		}

		if span.Open() {
			continue
		}

		for col := span.Start; col < span.End; col++ {
			columns[col] = mergeColumn(columns, col, span.Hits)
		}
	}

	// lineEnd is one past the highest known column; open-ended spans expand
	// up to it and the remainder goes into the end-of-line bucket.
	lineEnd := maxStart + 1
	for col := range columns {
		if col+1 > lineEnd {
			lineEnd = col + 1
		}
	}

	eol := 0
	hasEOL := false

	for _, span := range spans {
		if !span.Open() {
			continue
		}

		for col := span.Start; col < lineEnd; col++ {
			columns[col] = mergeColumn(columns, col, span.Hits)
		}

		if hasEOL {
			eol = max(eol, span.Hits)
		} else {
			eol, hasEOL = span.Hits, true
		}
	}

	combined := collapseColumns(columns)

	if len(combined) > 0 && hasEOL && combined[0] == (Span{Start: 0, End: 1, Hits: eol}) {
		// A lone first column produced by open-ended expansion; the
		// end-of-line bucket already represents it.
		combined = combined[1:]
	}

	if hasEOL {
		last := len(combined) - 1
		if last >= 0 && combined[last].End == lineEnd && combined[last].Hits == eol {
			combined[last].End = OpenEnd
		} else {
			combined = append(combined, Span{Start: lineEnd, End: OpenEnd, Hits: eol})
		}
	}

	if len(combined) == 0 {
		return nil
	}

	return combined
}

// collapseColumns turns the column->value map back into spans, breaking a
// span only where the merged value changes.
func collapseColumns(columns map[int]int) []Span {
	if len(columns) == 0 {
		return nil
	}

	cols := make([]int, 0, len(columns))
	for col := range columns {
		cols = append(cols, col)
	}

	sort.Ints(cols)

	var spans []Span

	start, end, hits := cols[0], cols[0], columns[cols[0]]
	for _, col := range cols[1:] {
		if columns[col] != hits {
			spans = append(spans, Span{Start: start, End: end + 1, Hits: hits})
			start, hits = col, columns[col]
		}

		end = col
	}

	return append(spans, Span{Start: start, End: end + 1, Hits: hits})
}

// mergeColumn records a hit observation for a column, combining with any
// previous observation by the greater-count rule.
func mergeColumn(columns map[int]int, col, hits int) int {
	existing, seen := columns[col]
	if !seen || hits > existing {
		return hits
	}

	return existing
}

// ValueFromSpans derives the whole-line coverage value from a combined span
// list: a single span keeps its plain hit count, several spans with distinct
// values become a covered/total branch ratio over the spans.
func ValueFromSpans(spans []Span) Value {
	if len(spans) == 0 {
		return Value{}
	}

	if len(spans) == 1 {
		return HitCount(spans[0].Hits)
	}

	distinct := make(map[int]struct{}, len(spans))
	covered := 0

	for _, span := range spans {
		distinct[span.Hits] = struct{}{}

		if span.Hits > 0 {
			covered++
		}
	}

	if len(distinct) == 1 {
		return HitCount(spans[0].Hits)
	}

	return Fraction(covered, len(spans))
}
