// Package archive persists serialized reports: the summary JSON and the
// chunked line detail, lz4-compressed at rest and integrity-checked with a
// content digest.
package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minio/highwayhash"
	"github.com/pierrec/lz4/v4"
	"github.com/viant/afs"

	"github.com/covmerge/covmerge/pkg/report"
)

// Object names under a commit's prefix.
const (
	summaryObject = "summary.json"
	chunksObject  = "chunks.txt"
	lz4Object     = "chunks.txt.lz4"
	digestObject  = "digest"
)

const objectMode = os.FileMode(0o644)

// digestKey is the fixed highwayhash key; the digest detects corruption,
// not tampering.
var digestKey = []byte("covmerge-archive-digest-v1......")

// Store reads and writes reports under an afs root URL (file://, mem://,
// or any scheme an imported afs module provides).
type Store struct {
	fs       afs.Service
	root     string
	compress bool
}

// New creates a store rooted at an afs URL.
func New(root string, compress bool) *Store {
	return &Store{
		fs:       afs.New(),
		root:     strings.TrimSuffix(root, "/"),
		compress: compress,
	}
}

// Put persists a report under the commit's prefix and returns the content
// digest of what was written.
func (s *Store) Put(ctx context.Context, commit string, r *report.Report) (string, error) {
	summary, err := r.EncodeSummary()
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}

	chunks, err := r.EncodeChunks()
	if err != nil {
		return "", fmt.Errorf("encode chunks: %w", err)
	}

	digest, err := contentDigest(summary, chunks)
	if err != nil {
		return "", err
	}

	if err := s.upload(ctx, commit, summaryObject, summary); err != nil {
		return "", err
	}

	chunksName := chunksObject
	if s.compress {
		chunksName = lz4Object

		chunks, err = compress(chunks)
		if err != nil {
			return "", fmt.Errorf("compress chunks: %w", err)
		}
	}

	if err := s.upload(ctx, commit, chunksName, chunks); err != nil {
		return "", err
	}

	if err := s.upload(ctx, commit, digestObject, []byte(digest)); err != nil {
		return "", err
	}

	return digest, nil
}

// Get loads the report persisted for a commit, verifying its digest.
func (s *Store) Get(ctx context.Context, commit string) (*report.Report, error) {
	summary, err := s.download(ctx, commit, summaryObject)
	if err != nil {
		return nil, err
	}

	chunks, compressed, err := s.downloadChunks(ctx, commit)
	if err != nil {
		return nil, err
	}

	if compressed {
		chunks, err = decompress(chunks)
		if err != nil {
			return nil, fmt.Errorf("decompress chunks for %s: %w", commit, err)
		}
	}

	want, err := s.download(ctx, commit, digestObject)
	if err == nil {
		got, digestErr := contentDigest(summary, chunks)
		if digestErr != nil {
			return nil, digestErr
		}

		if got != string(want) {
			return nil, fmt.Errorf("archived report for %s fails digest check", commit)
		}
	}

	r, err := report.Decode(summary, chunks)
	if err != nil {
		return nil, fmt.Errorf("decode archived report for %s: %w", commit, err)
	}

	return r, nil
}

// Exists reports whether a commit has a persisted report.
func (s *Store) Exists(ctx context.Context, commit string) (bool, error) {
	return s.fs.Exists(ctx, s.objectURL(commit, summaryObject))
}

// Delete removes a commit's persisted report.
func (s *Store) Delete(ctx context.Context, commit string) error {
	for _, name := range []string{summaryObject, chunksObject, lz4Object, digestObject} {
		url := s.objectURL(commit, name)

		ok, err := s.fs.Exists(ctx, url)
		if err != nil || !ok {
			continue
		}

		if err := s.fs.Delete(ctx, url); err != nil {
			return fmt.Errorf("delete %s: %w", url, err)
		}
	}

	return nil
}

func (s *Store) upload(ctx context.Context, commit, name string, data []byte) error {
	url := s.objectURL(commit, name)

	if err := s.fs.Upload(ctx, url, objectMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload %s: %w", url, err)
	}

	return nil
}

func (s *Store) download(ctx context.Context, commit, name string) ([]byte, error) {
	url := s.objectURL(commit, name)

	data, err := s.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}

	return data, nil
}

// downloadChunks prefers the compressed object, falling back to plain text
// so stores written with compression off stay readable.
func (s *Store) downloadChunks(ctx context.Context, commit string) ([]byte, bool, error) {
	if ok, _ := s.fs.Exists(ctx, s.objectURL(commit, lz4Object)); ok {
		data, err := s.download(ctx, commit, lz4Object)

		return data, true, err
	}

	data, err := s.download(ctx, commit, chunksObject)

	return data, false, err
}

func (s *Store) objectURL(commit, name string) string {
	return s.root + "/" + commit + "/" + name
}

func contentDigest(summary, chunks []byte) (string, error) {
	h, err := highwayhash.New(digestKey)
	if err != nil {
		return "", fmt.Errorf("init digest: %w", err)
	}

	h.Write(summary)
	h.Write(chunks)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}
