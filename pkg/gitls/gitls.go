// Package gitls extracts the table of contents (the tracked file list) of
// a commit from a local git repository via libgit2.
package gitls

import (
	"fmt"
	"sort"

	git2go "github.com/libgit2/git2go/v34"
)

// Repository wraps a libgit2 repository opened for file listing.
type Repository struct {
	repo *git2go.Repository
	path string
}

// Open opens the git repository at the given path.
func Open(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// Free releases the repository resources.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// ListHead returns the tracked files at HEAD, sorted.
func (r *Repository) ListHead() ([]string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return r.ListCommit(ref.Target().String())
}

// ListCommit returns the tracked files at a commit, sorted.
func (r *Repository) ListCommit(commit string) ([]string, error) {
	oid, err := git2go.NewOid(commit)
	if err != nil {
		return nil, fmt.Errorf("parse commit id %q: %w", commit, err)
	}

	c, err := r.repo.LookupCommit(oid)
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", commit, err)
	}
	defer c.Free()

	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("commit tree: %w", err)
	}
	defer tree.Free()

	var files []string

	walkErr := tree.Walk(func(root string, entry *git2go.TreeEntry) error {
		if entry.Type == git2go.ObjectBlob {
			files = append(files, root+entry.Name)
		}

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk tree: %w", walkErr)
	}

	sort.Strings(files)

	return files, nil
}
