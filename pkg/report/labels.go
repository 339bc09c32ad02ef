package report

import "sort"

// PlaceholderLabelID is the reserved index of the "all labels" placeholder.
// It is permanently index 0 in every label index.
const PlaceholderLabelID = 0

// PlaceholderLabel is the sentinel meaning "every test in this report".
// Coverage contributed outside any specific test's execution, such as code
// run at import time, is attributed to all tests through it.
const PlaceholderLabel = "Th2dMtk4M_placeholder"

// LabelIndex is the bidirectional mapping between small integer ids and test
// label strings owned by a Report. Index 0 is always the placeholder; every
// other id is unique and stable for the lifetime of the report, and a label
// not yet known is allocated a fresh id strictly greater than any existing
// one.
type LabelIndex struct {
	byID    map[int]string
	byLabel map[string]int
	nextID  int
}

// NewLabelIndex creates an index holding only the reserved placeholder.
func NewLabelIndex() *LabelIndex {
	idx := &LabelIndex{
		byID:    make(map[int]string, 1),
		byLabel: make(map[string]int, 1),
		nextID:  PlaceholderLabelID + 1,
	}

	idx.byID[PlaceholderLabelID] = PlaceholderLabel
	idx.byLabel[PlaceholderLabel] = PlaceholderLabelID

	return idx
}

// LabelIndexFromMap restores an index from its serialized id -> label form.
// The placeholder mapping is enforced regardless of the input.
func LabelIndexFromMap(m map[int]string) *LabelIndex {
	idx := NewLabelIndex()

	for id, label := range m {
		if id == PlaceholderLabelID {
			continue
		}

		idx.byID[id] = label
		idx.byLabel[label] = id

		if id >= idx.nextID {
			idx.nextID = id + 1
		}
	}

	return idx
}

// Add returns the id for a label, allocating a fresh one for labels not yet
// in the index. The empty string stands for the placeholder.
func (idx *LabelIndex) Add(label string) int {
	if label == "" || label == PlaceholderLabel {
		return PlaceholderLabelID
	}

	if id, ok := idx.byLabel[label]; ok {
		return id
	}

	id := idx.nextID
	idx.nextID++

	idx.byID[id] = label
	idx.byLabel[label] = id

	return id
}

// IDOf returns the id of a known label.
func (idx *LabelIndex) IDOf(label string) (int, bool) {
	id, ok := idx.byLabel[label]

	return id, ok
}

// LabelOf returns the label stored under an id.
func (idx *LabelIndex) LabelOf(id int) (string, bool) {
	label, ok := idx.byID[id]

	return label, ok
}

// Len returns the number of entries, the placeholder included.
func (idx *LabelIndex) Len() int {
	return len(idx.byID)
}

// OnlyPlaceholder reports whether no real label was ever added.
func (idx *LabelIndex) OnlyPlaceholder() bool {
	return len(idx.byID) == 1
}

// IDs returns all ids in ascending order.
func (idx *LabelIndex) IDs() []int {
	ids := make([]int, 0, len(idx.byID))
	for id := range idx.byID {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// AsMap returns the id -> label mapping for serialization.
func (idx *LabelIndex) AsMap() map[int]string {
	m := make(map[int]string, len(idx.byID))
	for id, label := range idx.byID {
		m[id] = label
	}

	return m
}

// Clone returns a deep copy of the index.
func (idx *LabelIndex) Clone() *LabelIndex {
	clone := LabelIndexFromMap(idx.AsMap())
	clone.nextID = idx.nextID

	return clone
}
