package decoder

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/covmerge/covmerge/pkg/builder"
	"github.com/covmerge/covmerge/pkg/coverage"
	"github.com/covmerge/covmerge/pkg/report"
)

// LCOV decodes lcov tracefiles: SF/DA/BRDA/FN/end_of_record sections, with
// the TN test name carried as a label hint.
type LCOV struct{}

// NewLCOV creates the lcov tracefile decoder.
func NewLCOV() *LCOV {
	return &LCOV{}
}

// Name implements LanguageDecoder.
func (*LCOV) Name() string { return "lcov" }

// Matches implements LanguageDecoder.
func (*LCOV) Matches(content []byte, firstLine, filename string) bool {
	if Classify(content) != FormatText {
		return false
	}

	if strings.HasSuffix(filename, ".lcov") || strings.HasSuffix(filename, ".info") {
		return true
	}

	if strings.HasPrefix(firstLine, "TN:") || strings.HasPrefix(firstLine, "SF:") {
		return true
	}

	return bytes.Contains(content, []byte("\nSF:"))
}

// lcovBranch accumulates BRDA records for one line.
type lcovBranch struct {
	total   int
	hits    int
	missing []string
}

// lcovFile accumulates one SF section.
type lcovFile struct {
	path     string
	lines    map[int]int
	branches map[int]*lcovBranch
	methods  map[int]struct{}
}

// Decode implements LanguageDecoder.
func (d *LCOV) Decode(content []byte, filename string) (*Result, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := &Result{}

	var (
		current  *lcovFile
		testName string
		lineno   int
	)

	for scanner.Scan() {
		lineno++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		directive, arg, _ := strings.Cut(text, ":")

		switch directive {
		case "TN":
			testName = arg

		case "SF":
			if current != nil {
				return nil, corrupt(filename, lineno, "SF before end_of_record")
			}

			if arg == "" {
				return nil, corrupt(filename, lineno, "SF with empty path")
			}

			current = &lcovFile{
				path:     arg,
				lines:    make(map[int]int),
				branches: make(map[int]*lcovBranch),
				methods:  make(map[int]struct{}),
			}

		case "DA":
			if current == nil {
				return nil, corrupt(filename, lineno, "DA outside SF section")
			}

			if err := parseDA(current, arg); err != nil {
				return nil, corrupt(filename, lineno, "%v", err)
			}

		case "BRDA":
			if current == nil {
				return nil, corrupt(filename, lineno, "BRDA outside SF section")
			}

			if err := parseBRDA(current, arg); err != nil {
				return nil, corrupt(filename, lineno, "%v", err)
			}

		case "FN":
			if current == nil {
				continue
			}

			lineStr, _, _ := strings.Cut(arg, ",")

			line, err := strconv.Atoi(lineStr)
			if err != nil || line < 1 {
				return nil, corrupt(filename, lineno, "bad FN line %q", lineStr)
			}

			current.methods[line] = struct{}{}

		case "end_of_record":
			if current == nil {
				return nil, corrupt(filename, lineno, "end_of_record outside SF section")
			}

			result.Records = append(result.Records, current.emit(testName)...)
			current = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, corrupt(filename, 0, "read: %v", err)
	}

	if current != nil {
		return nil, corrupt(filename, lineno, "SF section for %s missing end_of_record", current.path)
	}

	sort.Slice(result.Records, func(i, j int) bool {
		if result.Records[i].Path != result.Records[j].Path {
			return result.Records[i].Path < result.Records[j].Path
		}

		return result.Records[i].Line < result.Records[j].Line
	})

	return result, nil
}

// parseDA handles "line,count[,checksum]".
func parseDA(f *lcovFile, arg string) error {
	parts := strings.Split(arg, ",")
	if len(parts) < 2 {
		return blockError("DA record " + strconv.Quote(arg) + " missing count")
	}

	line, err := strconv.Atoi(parts[0])
	if err != nil || line < 1 {
		return errBadNumber("DA line", parts[0])
	}

	count, err := strconv.Atoi(parts[1])
	if err != nil {
		return errBadNumber("DA count", parts[1])
	}

	if prev, seen := f.lines[line]; !seen || count > prev {
		f.lines[line] = count
	}

	return nil
}

// parseBRDA handles "line,block,branch,taken" where taken is a count or "-"
// for a branch never reached.
func parseBRDA(f *lcovFile, arg string) error {
	parts := strings.Split(arg, ",")
	if len(parts) != 4 {
		return blockError("BRDA record " + strconv.Quote(arg) + " has " + strconv.Itoa(len(parts)) + " fields, want 4")
	}

	line, err := strconv.Atoi(parts[0])
	if err != nil || line < 1 {
		return errBadNumber("BRDA line", parts[0])
	}

	taken := 0

	if parts[3] != "-" {
		taken, err = strconv.Atoi(parts[3])
		if err != nil {
			return errBadNumber("BRDA taken", parts[3])
		}
	}

	b := f.branches[line]
	if b == nil {
		b = &lcovBranch{}
		f.branches[line] = b
	}

	b.total++

	if taken > 0 {
		b.hits++
	} else {
		b.missing = append(b.missing, parts[1]+":"+parts[2])
	}

	return nil
}

// emit renders the accumulated section as records. Branch detail wins over
// the plain DA count for the same line; FN lines report as methods.
func (f *lcovFile) emit(testName string) []Record {
	var labels []builder.LabelHint
	if testName != "" {
		labels = []builder.LabelHint{builder.LabelByName(testName)}
	}

	records := make([]Record, 0, len(f.lines)+len(f.branches))
	seen := make(map[int]struct{}, len(f.lines)+len(f.branches))

	for line, b := range f.branches {
		seen[line] = struct{}{}

		records = append(records, Record{
			Path: f.path,
			Line: line,
			LineEvent: builder.LineEvent{
				Value:           coverage.Fraction(b.hits, b.total),
				Type:            report.TypeBranch,
				MissingBranches: append([]string(nil), b.missing...),
				Labels:          labels,
			},
		})
	}

	for line, count := range f.lines {
		if _, branchy := seen[line]; branchy {
			continue
		}

		typ := report.TypeLine
		if _, method := f.methods[line]; method {
			typ = report.TypeMethod
		}

		records = append(records, Record{
			Path: f.path,
			Line: line,
			LineEvent: builder.LineEvent{
				Value:  coverage.HitCount(count),
				Type:   typ,
				Labels: labels,
			},
		})
	}

	return records
}
