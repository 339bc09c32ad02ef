package decoder

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/covmerge/covmerge/pkg/builder"
	"github.com/covmerge/covmerge/pkg/coverage"
)

// GoCover decodes Go cover profiles ("mode: set|count|atomic" followed by
// one block per line: file.go:startLine.startCol,endLine.endCol numStmt count).
type GoCover struct{}

// NewGoCover creates the Go cover profile decoder.
func NewGoCover() *GoCover {
	return &GoCover{}
}

// Name implements LanguageDecoder.
func (*GoCover) Name() string { return "gocover" }

// Matches implements LanguageDecoder.
func (*GoCover) Matches(content []byte, firstLine, _ string) bool {
	if Classify(content) != FormatText {
		return false
	}

	mode := strings.TrimPrefix(firstLine, "mode:")
	if mode == firstLine {
		return false
	}

	switch strings.TrimSpace(mode) {
	case "set", "count", "atomic":
		return true
	default:
		return false
	}
}

// Decode implements LanguageDecoder.
func (d *GoCover) Decode(content []byte, filename string) (*Result, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// line hit counts keyed by (path, line); overlapping blocks keep the
	// greater count.
	type lineKey struct {
		path string
		line int
	}

	hits := make(map[lineKey]int)

	lineno := 0

	for scanner.Scan() {
		lineno++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if lineno == 1 {
			if !strings.HasPrefix(text, "mode:") {
				return nil, corrupt(filename, lineno, "missing mode header")
			}

			continue
		}

		path, start, end, count, err := parseCoverBlock(text)
		if err != nil {
			return nil, corrupt(filename, lineno, "%v", err)
		}

		for line := start; line <= end; line++ {
			key := lineKey{path: path, line: line}
			if prev, seen := hits[key]; !seen || count > prev {
				hits[key] = count
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, corrupt(filename, 0, "read: %v", err)
	}

	result := &Result{Records: make([]Record, 0, len(hits))}

	for key, count := range hits {
		result.Records = append(result.Records, Record{
			Path: key.path,
			Line: key.line,
			LineEvent: builder.LineEvent{
				Value: coverage.HitCount(count),
			},
		})
	}

	sort.Slice(result.Records, func(i, j int) bool {
		if result.Records[i].Path != result.Records[j].Path {
			return result.Records[i].Path < result.Records[j].Path
		}

		return result.Records[i].Line < result.Records[j].Line
	})

	return result, nil
}

// parseCoverBlock splits "file.go:12.34,16.2 3 1" into its parts.
func parseCoverBlock(text string) (path string, start, end, count int, err error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return "", 0, 0, 0, errFields(len(fields))
	}

	count, err = strconv.Atoi(fields[2])
	if err != nil {
		return "", 0, 0, 0, errBadNumber("count", fields[2])
	}

	colon := strings.LastIndexByte(fields[0], ':')
	if colon <= 0 {
		return "", 0, 0, 0, errNoPath(fields[0])
	}

	path = fields[0][:colon]
	span := fields[0][colon+1:]

	startPos, endPos, ok := strings.Cut(span, ",")
	if !ok {
		return "", 0, 0, 0, errBadSpan(span)
	}

	start, err = posLine(startPos)
	if err != nil {
		return "", 0, 0, 0, err
	}

	end, err = posLine(endPos)
	if err != nil {
		return "", 0, 0, 0, err
	}

	if end < start {
		return "", 0, 0, 0, errBadSpan(span)
	}

	return path, start, end, count, nil
}

func posLine(pos string) (int, error) {
	lineStr, _, ok := strings.Cut(pos, ".")
	if !ok {
		return 0, errBadSpan(pos)
	}

	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return 0, errBadNumber("line", lineStr)
	}

	return line, nil
}

type blockError string

func (e blockError) Error() string { return string(e) }

func errFields(n int) error {
	return blockError("block has " + strconv.Itoa(n) + " fields, want 3")
}

func errBadNumber(what, s string) error {
	return blockError("bad " + what + " " + strconv.Quote(s))
}

func errNoPath(s string) error {
	return blockError("no path in block " + strconv.Quote(s))
}

func errBadSpan(s string) error {
	return blockError("bad position span " + strconv.Quote(s))
}
