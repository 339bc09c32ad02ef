package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covmerge/covmerge/pkg/coverage"
	"github.com/covmerge/covmerge/pkg/report"
)

const testEnvelope = `src/app/main.go
src/app/util.go
<<<<<< network
# path=coverage.out
mode: count
src/app/main.go:3.1,5.2 2 1
src/app/main.go:7.1,7.20 1 0
<<<<<< EOF
# path=lcov.info
SF:src/app/util.go
DA:1,3
DA:2,0
end_of_record
<<<<<< EOF
`

func writeTestFiles(t *testing.T, archiveRoot string) (configPath, envelopePath string) {
	t.Helper()

	dir := t.TempDir()

	configPath = filepath.Join(dir, "config.yaml")
	serviceConfig := fmt.Sprintf("archive:\n  root: %q\n", archiveRoot)
	require.NoError(t, os.WriteFile(configPath, []byte(serviceConfig), 0o644))

	envelopePath = filepath.Join(dir, "envelope.txt")
	require.NoError(t, os.WriteFile(envelopePath, []byte(testEnvelope), 0o644))

	return configPath, envelopePath
}

func runProcess(t *testing.T, args ...string) string {
	t.Helper()

	cmd := processCmd()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	require.NoError(t, cmd.Execute())

	return out.String()
}

func TestProcessMergesEnvelope(t *testing.T) {
	t.Parallel()

	configPath, envelopePath := writeTestFiles(t, "mem://covmerge-test/process-merge")

	out := runProcess(t,
		envelopePath,
		"--config", configPath,
		"--commit", "abc123",
		"--flag", "unit",
		"--name", "ci run",
		"--no-color",
	)

	assert.Contains(t, out, "merged upload into abc123 as session 0")
	assert.Contains(t, out, "src/app/main.go")
	assert.Contains(t, out, "src/app/util.go")
}

func TestProcessSecondUploadMergesIntoPrevious(t *testing.T) {
	t.Parallel()

	configPath, envelopePath := writeTestFiles(t, "mem://covmerge-test/process-second")

	runProcess(t, envelopePath, "--config", configPath, "--commit", "abc123", "--no-color")
	out := runProcess(t, envelopePath, "--config", configPath, "--commit", "abc123", "--no-color")

	assert.Contains(t, out, "as session 1")
	assert.Contains(t, out, "sessions: 2")
}

func TestProcessDryRunDoesNotPersist(t *testing.T) {
	t.Parallel()

	configPath, envelopePath := writeTestFiles(t, "mem://covmerge-test/process-dry")

	runProcess(t, envelopePath, "--config", configPath, "--commit", "abc123", "--dry-run", "--no-color")
	out := runProcess(t, envelopePath, "--config", configPath, "--commit", "abc123", "--no-color")

	// The dry run left no previous report, so this is still session 0.
	assert.Contains(t, out, "as session 0")
}

func TestProcessRequiresCommit(t *testing.T) {
	t.Parallel()

	cmd := processCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"envelope.txt"})

	require.Error(t, cmd.Execute())
}

func TestRenderFileTable(t *testing.T) {
	t.Parallel()

	hit := coverage.HitCount(1)

	r := report.New()
	f := report.NewFile("pkg/a/a.go")
	f.AddLine(1, report.Line{Value: hit, Sessions: []report.LineSession{{SessionID: 0, Value: hit}}})
	r.AddFile(f)

	rendered := renderFileTable(r)
	assert.Contains(t, rendered, "pkg/a/a.go")
	assert.Contains(t, rendered, "100%")
}
