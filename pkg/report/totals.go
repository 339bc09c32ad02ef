package report

import (
	"strconv"
	"strings"
)

// Totals aggregates line outcomes for a file, a session or a whole report.
// Coverage is the hit ratio as a percentage with up to five decimal places,
// or empty when no lines were recorded.
type Totals struct {
	Files           int    `json:"files"`
	Lines           int    `json:"lines"`
	Hits            int    `json:"hits"`
	Misses          int    `json:"misses"`
	Partials        int    `json:"partials"`
	Coverage        string `json:"coverage"`
	Branches        int    `json:"branches"`
	Methods         int    `json:"methods"`
	Sessions        int    `json:"sessions"`
	Complexity      int    `json:"complexity"`
	ComplexityTotal int    `json:"complexity_total"`
}

// Ratio formats hits out of total as a percentage string. Totals of zero
// yield the empty string, full coverage is always exactly "100".
func Ratio(hits, total int) string {
	if total == 0 {
		return ""
	}

	if hits == total {
		return "100"
	}

	pct := float64(hits) * 100 / float64(total)

	s := strconv.FormatFloat(pct, 'f', 5, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")

	return s
}

// FileTotals computes the totals of a single file.
func FileTotals(f *File) Totals {
	t := Totals{Files: 1}
	if f == nil {
		return Totals{}
	}

	f.EachLine(func(_ int, line Line) {
		t.addLine(line)
	})

	t.Coverage = Ratio(t.Hits, t.Lines)

	return t
}

func (t *Totals) addLine(line Line) {
	t.Lines++

	switch {
	case line.Value.Full():
		t.Hits++
	case line.Value.Partial():
		t.Partials++
	default:
		t.Misses++
	}

	switch line.Type {
	case TypeBranch:
		t.Branches++
	case TypeMethod:
		t.Methods++
	}

	if line.Complexity > t.Complexity {
		t.Complexity = line.Complexity
	}

	t.ComplexityTotal += line.Complexity
}

// Add accumulates another totals value; Coverage is not recomputed.
func (t *Totals) Add(other Totals) {
	t.Files += other.Files
	t.Lines += other.Lines
	t.Hits += other.Hits
	t.Misses += other.Misses
	t.Partials += other.Partials
	t.Branches += other.Branches
	t.Methods += other.Methods
	t.ComplexityTotal += other.ComplexityTotal

	if other.Complexity > t.Complexity {
		t.Complexity = other.Complexity
	}
}
