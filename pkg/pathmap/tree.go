// Package pathmap indexes the repository table of contents so that uploaded,
// often-mangled paths can be matched back to their canonical repo-relative
// form. Matching happens on reversed path components: the tree is keyed by
// filename first, then by each parent directory, so a lookup walks from the
// right end of the path towards its root.
package pathmap

// A tree node, stored in the arena. Children are keyed by the lowercased
// path component. Nodes carry the full canonical paths terminating at them.
type node struct {
	children map[string]int32
	paths    []string
}

// Tree is the read-only index over the table of contents. Nodes live in an
// arena and reference each other by index, so shared suffixes cost one node
// regardless of how many paths end in them. Build it once per upload with
// NewTree; lookups are safe for concurrent use afterwards.
type Tree struct {
	nodes []node
}

// NewTree builds the index from the table of contents. Empty entries are
// skipped. Paths are expected to already be canonical repo-relative paths.
func NewTree(toc []string) *Tree {
	tree := &Tree{nodes: make([]node, 1, len(toc)+1)}

	for _, path := range toc {
		tree.insert(path)
	}

	return tree
}

// Len returns the number of indexed paths.
func (t *Tree) Len() int {
	total := 0
	for i := range t.nodes {
		total += len(t.nodes[i].paths)
	}

	return total
}

func (t *Tree) insert(path string) {
	if path == "" {
		return
	}

	components := splitPath(path)
	current := int32(0)

	for i := len(components) - 1; i >= 0; i-- {
		component := lower(components[i])

		child, ok := t.nodes[current].children[component]
		if !ok {
			t.nodes = append(t.nodes, node{})
			child = int32(len(t.nodes) - 1)

			if t.nodes[current].children == nil {
				t.nodes[current].children = make(map[string]int32, 1)
			}

			t.nodes[current].children[component] = child
		}

		current = child
	}

	t.nodes[current].paths = append(t.nodes[current].paths, path)
}

// lookup returns the candidate canonical paths for the reversed component
// list, walking as deep as the components match and falling back to drilling
// a single-child chain when the uploaded path is shorter than the indexed
// ones.
func (t *Tree) lookup(components []string) []string {
	return t.recursiveLookup(0, components, nil, 0, false, false)
}

func (t *Tree) recursiveLookup(current int32, components []string, results []string, depth int, end, matched bool) []string {
	var child int32

	ok := false
	if depth < len(components) {
		child, ok = t.nodes[current].children[lower(components[depth])]
	}

	if ok {
		isEnd := len(t.nodes[child].paths) > 0
		if isEnd {
			results = append(results[:0:0], t.nodes[child].paths...)
		}

		return t.recursiveLookup(child, components, results, depth+1, isEnd, true)
	}

	if !end && matched {
		if deeper := t.drill(current); deeper != nil {
			results = append(results, deeper...)
		}
	}

	return results
}

// drill follows a straight single-child chain below the node and returns the
// first terminating paths it reaches, if any.
func (t *Tree) drill(current int32) []string {
	for len(t.nodes[current].children) == 1 {
		for _, child := range t.nodes[current].children {
			current = child
		}

		if len(t.nodes[current].paths) > 0 {
			return t.nodes[current].paths
		}
	}

	return nil
}
