// Package upload parses the raw multi-file upload envelope: an optional
// table-of-contents section, an optional environment section and any number
// of coverage files introduced by "# path=" markers.
package upload

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/covmerge/covmerge/pkg/pathfix"
)

// Section separators of the envelope format.
const (
	networkSeparator = "<<<<<< network"
	envSeparator     = "<<<<<< ENV"
	eofSeparator     = "<<<<<< EOF"
	pathMarker       = "# path="
)

// RawFile is one coverage file carried inside the envelope. Path is the
// name declared by its "# path=" marker, empty for a bare single-file body.
type RawFile struct {
	Path    string
	Content []byte
}

// RawUpload is the parsed envelope.
type RawUpload struct {
	// TOC is the cleaned repository file list, nil when the envelope had no
	// network section.
	TOC []string

	// Env holds KEY=value pairs from the ENV section.
	Env map[string]string

	Files []RawFile
}

// ParseLegacy splits a raw upload body into its sections. A body without
// any marker is a single unnamed coverage file.
func ParseLegacy(raw []byte) (*RawUpload, error) {
	up := &RawUpload{}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		// section lines accumulated since the last marker
		buf      bytes.Buffer
		bufEmpty = true

		currentPath string
		inFile      bool
	)

	flushFile := func() {
		if !inFile && bufEmpty {
			return
		}

		content := bytes.TrimRight(buf.Bytes(), "\n")
		if len(content) > 0 || currentPath != "" {
			up.Files = append(up.Files, RawFile{
				Path:    strings.TrimSpace(currentPath),
				Content: append([]byte(nil), content...),
			})
		}

		buf.Reset()
		bufEmpty = true
		currentPath = ""
		inFile = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimRight(line, "\r")

		switch {
		case strings.TrimSpace(trimmed) == networkSeparator:
			// Everything so far was the table of contents.
			up.TOC = pathfix.CleanTOC(buf.String())
			buf.Reset()
			bufEmpty = true
			currentPath = ""
			inFile = false

		case strings.TrimSpace(trimmed) == envSeparator:
			up.Env = parseEnv(buf.String())
			buf.Reset()
			bufEmpty = true
			inFile = false

		case strings.TrimSpace(trimmed) == eofSeparator:
			flushFile()

		case strings.HasPrefix(strings.TrimSpace(trimmed), pathMarker):
			flushFile()

			currentPath = strings.TrimPrefix(strings.TrimSpace(trimmed), pathMarker)
			inFile = true

		default:
			buf.WriteString(trimmed)
			buf.WriteByte('\n')
			bufEmpty = false
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	flushFile()

	return up, nil
}

func parseEnv(section string) map[string]string {
	env := make(map[string]string)

	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if len(env) == 0 {
		return nil
	}

	return env
}
