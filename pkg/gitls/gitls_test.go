package gitls_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covmerge/covmerge/pkg/gitls"
)

// testRepo builds a throwaway repository with one commit.
type testRepo struct {
	t      *testing.T
	path   string
	native *git2go.Repository
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return &testRepo{t: t, path: dir, native: repo}
}

func (tr *testRepo) createFile(name, content string) {
	tr.t.Helper()

	path := filepath.Join(tr.path, name)
	dir := filepath.Dir(path)

	if dir != tr.path {
		require.NoError(tr.t, os.MkdirAll(dir, 0o755))
	}

	require.NoError(tr.t, os.WriteFile(path, []byte(content), 0o644))
}

func (tr *testRepo) commit(message string) string {
	tr.t.Helper()

	index, err := tr.native.Index()
	require.NoError(tr.t, err)

	defer index.Free()

	require.NoError(tr.t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(tr.t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(tr.t, err)

	tree, err := tr.native.LookupTree(treeID)
	require.NoError(tr.t, err)

	defer tree.Free()

	sig := &git2go.Signature{Name: "test", Email: "test@example.com", When: time.Now()}

	var parents []*git2go.Commit

	if head, headErr := tr.native.Head(); headErr == nil {
		parent, lookupErr := tr.native.LookupCommit(head.Target())
		require.NoError(tr.t, lookupErr)

		defer parent.Free()

		parents = append(parents, parent)
		head.Free()
	}

	oid, err := tr.native.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	require.NoError(tr.t, err)

	return oid.String()
}

func TestListHead(t *testing.T) {
	tr := newTestRepo(t)
	tr.createFile("src/app/main.go", "package main\n")
	tr.createFile("src/app/util.go", "package main\n")
	tr.createFile("README.md", "readme\n")
	tr.commit("initial")

	repo, err := gitls.Open(tr.path)
	require.NoError(t, err)

	defer repo.Free()

	files, err := repo.ListHead()
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "src/app/main.go", "src/app/util.go"}, files)
}

func TestListCommit(t *testing.T) {
	tr := newTestRepo(t)
	tr.createFile("a.go", "package a\n")
	first := tr.commit("first")

	tr.createFile("b.go", "package a\n")
	tr.commit("second")

	repo, err := gitls.Open(tr.path)
	require.NoError(t, err)

	defer repo.Free()

	files, err := repo.ListCommit(first)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, files)

	head, err := repo.ListHead()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, head)
}

func TestOpenMissing(t *testing.T) {
	_, err := gitls.Open(filepath.Join(t.TempDir(), "not-a-repo"))
	require.Error(t, err)
}
