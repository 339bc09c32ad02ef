// Package decoder defines the interface between raw coverage formats and
// the report construction pipeline, a content-type probe that picks the
// right decoder, and the concrete decoders for Go cover profiles and lcov
// tracefiles.
package decoder

import (
	"fmt"
	"time"

	"github.com/covmerge/covmerge/pkg/builder"
)

// Record is one decoded observation: a raw (unresolved) path, a line number
// and the normalized line event for the builder.
type Record struct {
	Path string
	Line int
	builder.LineEvent
}

// Result is everything a decoder extracted from one uploaded file.
type Result struct {
	// GeneratedAt is the source timestamp the format declares, zero when
	// the format carries none.
	GeneratedAt time.Time

	Records []Record
}

// LanguageDecoder recognizes and decodes one coverage format. Matches must
// be cheap; Decode may assume Matches returned true but still validates
// structure and reports CorruptInputError on violations.
type LanguageDecoder interface {
	Name() string
	Matches(content []byte, firstLine, filename string) bool
	Decode(content []byte, filename string) (*Result, error)
}

// CorruptInputError reports a structural violation in one uploaded file.
// The file's contribution is dropped; the rest of the upload still merges.
type CorruptInputError struct {
	Filename string
	Line     int
	Reason   string
}

func (e *CorruptInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("corrupt coverage input %s:%d: %s", e.Filename, e.Line, e.Reason)
	}

	return fmt.Sprintf("corrupt coverage input %s: %s", e.Filename, e.Reason)
}

func corrupt(filename string, line int, format string, args ...any) *CorruptInputError {
	return &CorruptInputError{
		Filename: filename,
		Line:     line,
		Reason:   fmt.Sprintf(format, args...),
	}
}
