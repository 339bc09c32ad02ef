// Package assemble merges one upload's built files into a commit's report:
// session allocation, label-index reconciliation, carryforward cleanup and
// the final commutative file merge, all inside a copy-on-write transaction.
package assemble

import (
	"fmt"
	"sort"

	"github.com/covmerge/covmerge/pkg/report"
	"github.com/covmerge/covmerge/pkg/useryaml"
)

// SessionAdjustmentResult reports which prior carried-forward sessions the
// cleanup fully deleted and which it only stripped datapoints from, for the
// persistence layer to reconcile downstream aggregates.
type SessionAdjustmentResult struct {
	FullyDeleted      []int
	PartiallyModified []int
}

// Result is the outcome of a finalized merge transaction.
type Result struct {
	// Report is the merged report. The report passed to Start is never
	// mutated; callers swap this in on success.
	Report *report.Report

	// Session is the attached session with its allocated id and totals.
	Session *report.Session

	Adjustment SessionAdjustmentResult
}

// Transaction is one start-append-finalize merge of a single upload against
// the previously persisted report. It assumes the caller holds exclusive
// access to the commit for its whole lifetime and performs no locking
// itself. All mutation happens on a private clone, so an abandoned or
// failed transaction leaves the input report untouched.
type Transaction struct {
	working    *report.Report
	session    *report.Session
	sessionID  int
	labelAware bool
	config     *useryaml.Config

	files     []*report.File
	finalized bool
}

// Start opens a merge transaction. previous may be nil for a commit with no
// existing report. session carries the upload's metadata; its id is
// overwritten with the allocated one, strictly greater than any id the
// previous report ever handed out.
func Start(previous *report.Report, session *report.Session, config *useryaml.Config) *Transaction {
	working := report.New()
	if previous != nil {
		working = previous.Clone()
	}

	if session.Type == "" {
		session.Type = report.SessionUploaded
	}

	return &Transaction{
		working:    working,
		session:    session,
		sessionID:  working.NextSessionID(),
		labelAware: config.LabelAware(),
		config:     config,
	}
}

// SessionID returns the id allocated for this upload's session. Builder
// sessions key their contributions under it.
func (tx *Transaction) SessionID() int {
	return tx.sessionID
}

// LabelAware reports whether this transaction records label datapoints.
func (tx *Transaction) LabelAware() bool {
	return tx.labelAware
}

// AppendFile adds one built file to the transaction. Files are merged at
// finalize; append order never affects the result. The transaction takes
// ownership of the file.
func (tx *Transaction) AppendFile(f *report.File) {
	if f == nil || f.IsEmpty() {
		return
	}

	tx.files = append(tx.files, f)
}

// FileCount returns how many files the transaction will merge.
func (tx *Transaction) FileCount() int {
	return len(tx.files)
}

// Finalize runs the transaction to completion: reconcile labels, clean up
// carried-forward sessions for the upload's flags, merge the files, attach
// the session. localLabels is the builder session's label index, nil for
// label-unaware uploads.
func (tx *Transaction) Finalize(localLabels *report.LabelIndex) (*Result, error) {
	if tx.finalized {
		return nil, ErrTransactionFinalized
	}

	tx.finalized = true

	if len(tx.files) == 0 {
		return nil, ErrEmptyUpload
	}

	var newLabelIDs []int

	if tx.labelAware {
		newLabelIDs = tx.reconcileLabels(localLabels)
	}

	adjustment := tx.sweepCarryforward(newLabelIDs)

	// Merge order across files must not matter; sorting by path just makes
	// runs reproducible byte-for-byte.
	sort.Slice(tx.files, func(i, j int) bool {
		return tx.files[i].Name < tx.files[j].Name
	})

	var uploadTotals report.Totals

	for _, f := range tx.files {
		uploadTotals.Add(report.FileTotals(f))
		tx.working.AddFile(f)
	}

	uploadTotals.Coverage = report.Ratio(uploadTotals.Hits, uploadTotals.Lines)
	tx.session.Totals = &uploadTotals

	id := tx.working.AddSession(tx.session)
	if id != tx.sessionID {
		return nil, fmt.Errorf("allocated session id %d, reserved %d: %w", id, tx.sessionID, ErrSessionConflict)
	}

	if tx.labelAware {
		if err := tx.checkLabelConsistency(); err != nil {
			return nil, err
		}
	}

	tx.working.DropLabelsIfPlaceholderOnly()

	return &Result{
		Report:     tx.working,
		Session:    tx.session,
		Adjustment: adjustment,
	}, nil
}

// reconcileLabels maps the builder session's local label ids onto the
// report's index, allocating fresh global ids for unseen labels, and
// rewrites the buffered files' datapoints in place. It must run before any
// line is merged so datapoints land consistently keyed. It returns the
// global ids this upload contributed, the placeholder excluded.
func (tx *Transaction) reconcileLabels(localLabels *report.LabelIndex) []int {
	global := tx.working.EnsureLabels()

	if localLabels == nil {
		return nil
	}

	remap := make(map[int]int, localLabels.Len())
	var contributed []int

	for _, localID := range localLabels.IDs() {
		label, _ := localLabels.LabelOf(localID)

		globalID := global.Add(label)
		remap[localID] = globalID

		if globalID != report.PlaceholderLabelID {
			contributed = append(contributed, globalID)
		}
	}

	for _, f := range tx.files {
		remapFileLabels(f, remap)
	}

	sort.Ints(contributed)

	return contributed
}

func remapFileLabels(f *report.File, remap map[int]int) {
	for _, lineno := range f.LineNumbers() {
		line, _ := f.Line(lineno)
		if len(line.Datapoints) == 0 {
			continue
		}

		for i, d := range line.Datapoints {
			for j, id := range d.LabelIDs {
				if mapped, ok := remap[id]; ok {
					d.LabelIDs[j] = mapped
				}
			}

			sort.Ints(d.LabelIDs)
			line.Datapoints[i] = d
		}

		f.SetLine(lineno, line)
	}
}

// sweepCarryforward cleans up prior carried-forward sessions for every
// carryforward-enabled flag present on the new upload, before the new files
// merge. "all" mode deletes the stale session outright; "labels" mode
// strips only the datapoints whose labels the new upload re-contributed and
// deletes the session only once it stops contributing any label at all.
func (tx *Transaction) sweepCarryforward(newLabelIDs []int) SessionAdjustmentResult {
	var adjustment SessionAdjustmentResult

	toDelete := make(map[int]struct{})
	modified := make(map[int]struct{})

	for _, flag := range tx.session.Flags {
		fc := tx.config.Flag(flag)
		if !fc.Carryforward {
			continue
		}

		for _, id := range tx.working.SessionsByFlag(flag) {
			prior, ok := tx.working.Session(id)
			if !ok || prior.Type != report.SessionCarriedForward {
				continue
			}

			if fc.Mode() == useryaml.CarryforwardAll {
				toDelete[id] = struct{}{}

				continue
			}

			if tx.working.StripSubsetDatapoints(id, newLabelIDs) {
				if len(tx.working.SessionLabelIDs(id)) == 0 {
					toDelete[id] = struct{}{}
				} else {
					modified[id] = struct{}{}
				}
			}
		}
	}

	if len(toDelete) > 0 {
		ids := make([]int, 0, len(toDelete))
		for id := range toDelete {
			ids = append(ids, id)
		}

		adjustment.FullyDeleted = tx.working.DeleteSessions(ids...)
	}

	for id := range modified {
		if _, deleted := toDelete[id]; deleted {
			continue
		}

		adjustment.PartiallyModified = append(adjustment.PartiallyModified, id)
	}

	sort.Ints(adjustment.PartiallyModified)

	return adjustment
}

// checkLabelConsistency verifies every datapoint label id resolves through
// the report's index after reconciliation.
func (tx *Transaction) checkLabelConsistency() error {
	idx := tx.working.Labels()
	if idx == nil {
		return nil
	}

	for _, id := range tx.working.UsedLabelIDs() {
		if _, ok := idx.LabelOf(id); !ok {
			return fmt.Errorf("label id %d: %w", id, ErrLabelIndexInconsistency)
		}
	}

	return nil
}
