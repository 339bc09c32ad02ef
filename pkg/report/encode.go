package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ChunkSeparator divides per-file chunks in the encoded line detail.
const ChunkSeparator = "<<<<< end_of_chunk >>>>>"

// Summary is the compact JSON side of an encoded report: per-file chunk
// placement and totals, the session inventory and the label index. The
// heavyweight line detail lives in the chunks document.
type Summary struct {
	Files       map[string]FileSummary `json:"files"`
	Sessions    map[string]*Session    `json:"sessions"`
	Labels      map[string]string      `json:"labels_index,omitempty"`
	NextSession int                    `json:"next_session"`
	Totals      Totals                 `json:"totals"`
}

// FileSummary records where a file's chunk sits and what it adds up to.
type FileSummary struct {
	ChunkIndex int    `json:"chunk"`
	Totals     Totals `json:"totals"`
}

// EncodeSummary renders the summary document. Chunk indices follow lexical
// path order, matching EncodeChunks.
func (r *Report) EncodeSummary() ([]byte, error) {
	summary := Summary{
		Files:       make(map[string]FileSummary, len(r.files)),
		Sessions:    make(map[string]*Session, len(r.sessions)),
		NextSession: r.nextSession,
		Totals:      r.Totals(),
	}

	for i, name := range r.FileNames() {
		summary.Files[name] = FileSummary{
			ChunkIndex: i,
			Totals:     FileTotals(r.files[name]),
		}
	}

	for id, s := range r.sessions {
		summary.Sessions[strconv.Itoa(id)] = s
	}

	if r.labels != nil {
		summary.Labels = make(map[string]string, r.labels.Len())
		for id, label := range r.labels.AsMap() {
			summary.Labels[strconv.Itoa(id)] = label
		}
	}

	return json.Marshal(summary)
}

// EncodeChunks renders the line detail: one chunk per file in lexical path
// order, each chunk a header line followed by one JSON line record per
// source line, blank where the line was never mentioned.
func (r *Report) EncodeChunks() ([]byte, error) {
	var buf bytes.Buffer

	for i, name := range r.FileNames() {
		if i > 0 {
			buf.WriteByte('\n')
			buf.WriteString(ChunkSeparator)
			buf.WriteByte('\n')
		}

		if err := encodeChunk(&buf, r.files[name]); err != nil {
			return nil, fmt.Errorf("encode chunk for %s: %w", name, err)
		}
	}

	return buf.Bytes(), nil
}

type chunkHeader struct {
	PresentSessions []int `json:"present_sessions"`
}

func encodeChunk(buf *bytes.Buffer, f *File) error {
	header := chunkHeader{PresentSessions: presentSessions(f)}

	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}

	buf.Write(hdr)

	numbers := f.LineNumbers()
	if len(numbers) == 0 {
		return nil
	}

	last := numbers[len(numbers)-1]

	for lineno := 1; lineno <= last; lineno++ {
		buf.WriteByte('\n')

		line, ok := f.lines[lineno]
		if !ok {
			continue
		}

		enc, err := encodeLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}

		buf.Write(enc)
	}

	return nil
}

func presentSessions(f *File) []int {
	seen := make(map[int]struct{})

	for _, line := range f.lines {
		for _, s := range line.Sessions {
			seen[s.SessionID] = struct{}{}
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// encodeLine renders a line record as
// [value, type, [[sid, value, branches, partials, complexity], ...],
// null, complexity, datapoints] with trailing nulls and zero fields
// trimmed.
func encodeLine(line Line) ([]byte, error) {
	record := []any{line.Value, nullableType(line.Type), encodeLineSessions(line.Sessions)}

	if line.Complexity > 0 || len(line.Datapoints) > 0 {
		record = append(record, nil, nullableInt(line.Complexity))
	}

	if len(line.Datapoints) > 0 {
		record = append(record, encodeDatapoints(line.Datapoints))
	}

	return json.Marshal(record)
}

func encodeLineSessions(sessions []LineSession) []any {
	out := make([]any, 0, len(sessions))

	for _, s := range sessions {
		entry := []any{s.SessionID, s.Value}

		if s.MissingBranches != nil || s.Partials != nil || s.Complexity > 0 {
			entry = append(entry, s.MissingBranches)
		}

		if s.Partials != nil || s.Complexity > 0 {
			entry = append(entry, s.Partials)
		}

		if s.Complexity > 0 {
			entry = append(entry, s.Complexity)
		}

		out = append(out, entry)
	}

	return out
}

func encodeDatapoints(datapoints []Datapoint) []any {
	out := make([]any, 0, len(datapoints))

	for _, d := range datapoints {
		out = append(out, []any{d.SessionID, d.Value, nullableType(d.Type), d.LabelIDs})
	}

	return out
}

func nullableType(t string) any {
	if t == TypeLine {
		return nil
	}

	return t
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}

	return n
}

// Decode rebuilds a report from its summary and chunks documents.
func Decode(summary, chunks []byte) (*Report, error) {
	var s Summary
	if err := json.Unmarshal(summary, &s); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	r := New()

	for key, sess := range s.Sessions {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("decode summary: session id %q: %w", key, err)
		}

		r.restoreSession(id, sess)
	}

	if s.NextSession > r.nextSession {
		r.nextSession = s.NextSession
	}

	if s.Labels != nil {
		byID := make(map[int]string, len(s.Labels))

		for key, label := range s.Labels {
			id, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("decode summary: label id %q: %w", key, err)
			}

			byID[id] = label
		}

		r.labels = LabelIndexFromMap(byID)
	}

	parts := splitChunks(chunks)

	for name, fs := range s.Files {
		if fs.ChunkIndex < 0 || fs.ChunkIndex >= len(parts) {
			return nil, fmt.Errorf("decode chunks: %s points at chunk %d of %d", name, fs.ChunkIndex, len(parts))
		}

		f, err := decodeChunk(name, parts[fs.ChunkIndex])
		if err != nil {
			return nil, fmt.Errorf("decode chunk for %s: %w", name, err)
		}

		r.files[name] = f
	}

	return r, nil
}

func splitChunks(chunks []byte) [][]byte {
	if len(chunks) == 0 {
		return nil
	}

	return bytes.Split(chunks, []byte("\n"+ChunkSeparator+"\n"))
}

func decodeChunk(name string, chunk []byte) (*File, error) {
	f := NewFile(name)

	lines := bytes.Split(chunk, []byte("\n"))
	if len(lines) == 0 {
		return f, nil
	}

	// Header line is validated but otherwise advisory; present sessions
	// are recomputed from the line records themselves.
	var header chunkHeader
	if len(bytes.TrimSpace(lines[0])) > 0 {
		if err := json.Unmarshal(lines[0], &header); err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
	}

	for i, raw := range lines[1:] {
		lineno := i + 1

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		line, err := decodeLine(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}

		f.SetLine(lineno, line)
	}

	return f, nil
}

func decodeLine(raw []byte) (Line, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Line{}, err
	}

	if len(fields) < 3 {
		return Line{}, fmt.Errorf("record has %d fields, want at least 3", len(fields))
	}

	var line Line

	if err := json.Unmarshal(fields[0], &line.Value); err != nil {
		return Line{}, fmt.Errorf("value: %w", err)
	}

	if err := decodeNullableString(fields[1], &line.Type); err != nil {
		return Line{}, fmt.Errorf("type: %w", err)
	}

	sessions, err := decodeLineSessions(fields[2])
	if err != nil {
		return Line{}, err
	}

	line.Sessions = sessions

	if len(fields) > 4 {
		if err := decodeNullableInt(fields[4], &line.Complexity); err != nil {
			return Line{}, fmt.Errorf("complexity: %w", err)
		}
	}

	if len(fields) > 5 {
		datapoints, err := decodeDatapoints(fields[5])
		if err != nil {
			return Line{}, err
		}

		line.Datapoints = datapoints
	}

	return line, nil
}

func decodeLineSessions(raw json.RawMessage) ([]LineSession, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}

	sessions := make([]LineSession, 0, len(entries))

	for i, entry := range entries {
		var fields []json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}

		if len(fields) < 2 {
			return nil, fmt.Errorf("session %d: record has %d fields, want at least 2", i, len(fields))
		}

		var s LineSession

		if err := json.Unmarshal(fields[0], &s.SessionID); err != nil {
			return nil, fmt.Errorf("session %d: id: %w", i, err)
		}

		if err := json.Unmarshal(fields[1], &s.Value); err != nil {
			return nil, fmt.Errorf("session %d: value: %w", i, err)
		}

		if len(fields) > 2 && !isNull(fields[2]) {
			if err := json.Unmarshal(fields[2], &s.MissingBranches); err != nil {
				return nil, fmt.Errorf("session %d: branches: %w", i, err)
			}
		}

		if len(fields) > 3 && !isNull(fields[3]) {
			if err := json.Unmarshal(fields[3], &s.Partials); err != nil {
				return nil, fmt.Errorf("session %d: partials: %w", i, err)
			}
		}

		if len(fields) > 4 {
			if err := decodeNullableInt(fields[4], &s.Complexity); err != nil {
				return nil, fmt.Errorf("session %d: complexity: %w", i, err)
			}
		}

		sessions = append(sessions, s)
	}

	return sessions, nil
}

func decodeDatapoints(raw json.RawMessage) ([]Datapoint, error) {
	if isNull(raw) {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("datapoints: %w", err)
	}

	datapoints := make([]Datapoint, 0, len(entries))

	for i, entry := range entries {
		var fields []json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			return nil, fmt.Errorf("datapoint %d: %w", i, err)
		}

		if len(fields) < 4 {
			return nil, fmt.Errorf("datapoint %d: record has %d fields, want 4", i, len(fields))
		}

		var d Datapoint

		if err := json.Unmarshal(fields[0], &d.SessionID); err != nil {
			return nil, fmt.Errorf("datapoint %d: session id: %w", i, err)
		}

		if err := json.Unmarshal(fields[1], &d.Value); err != nil {
			return nil, fmt.Errorf("datapoint %d: value: %w", i, err)
		}

		if err := decodeNullableString(fields[2], &d.Type); err != nil {
			return nil, fmt.Errorf("datapoint %d: type: %w", i, err)
		}

		if !isNull(fields[3]) {
			if err := json.Unmarshal(fields[3], &d.LabelIDs); err != nil {
				return nil, fmt.Errorf("datapoint %d: labels: %w", i, err)
			}
		}

		datapoints = append(datapoints, d)
	}

	return datapoints, nil
}

func decodeNullableString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		*dst = ""

		return nil
	}

	return json.Unmarshal(raw, dst)
}

func decodeNullableInt(raw json.RawMessage, dst *int) error {
	if isNull(raw) {
		*dst = 0

		return nil
	}

	return json.Unmarshal(raw, dst)
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)

	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}
