package decoder

import (
	"bytes"
	"strings"
)

// ContentFormat is the coarse classification of an uploaded file's bytes,
// probed before any decoder-specific matching.
type ContentFormat int

// Coarse content formats, probed in this order.
const (
	FormatText ContentFormat = iota
	FormatJSON
	FormatXML
	FormatPlist
)

func (f ContentFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	case FormatPlist:
		return "plist"
	default:
		return "txt"
	}
}

// Classify inspects the leading bytes of an upload and buckets it into one
// of the coarse formats. Decoders use the bucket to fail fast in Matches.
func Classify(content []byte) ContentFormat {
	trimmed := bytes.TrimLeft(content, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return FormatText
	}

	switch trimmed[0] {
	case '{', '[':
		return FormatJSON
	case '<':
		head := trimmed
		if len(head) > 512 {
			head = head[:512]
		}

		if bytes.Contains(head, []byte("<plist")) {
			return FormatPlist
		}

		return FormatXML
	default:
		return FormatText
	}
}

// FirstLine returns the first line of the content, trimmed, for cheap
// decoder matching.
func FirstLine(content []byte) string {
	line := content

	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}

	return strings.TrimSpace(string(line))
}

// Registry is a priority-ordered set of decoders. Earlier entries win when
// more than one decoder matches the same content.
type Registry struct {
	decoders []LanguageDecoder
}

// NewRegistry creates a registry with the given priority order.
func NewRegistry(decoders ...LanguageDecoder) *Registry {
	return &Registry{decoders: decoders}
}

// Default returns the registry of built-in decoders.
func Default() *Registry {
	return NewRegistry(NewGoCover(), NewLCOV())
}

// Probe picks the first decoder matching the content, nil when none does.
func (r *Registry) Probe(content []byte, filename string) LanguageDecoder {
	firstLine := FirstLine(content)

	for _, d := range r.decoders {
		if d.Matches(content, firstLine, filename) {
			return d
		}
	}

	return nil
}
