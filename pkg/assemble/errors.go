package assemble

import "errors"

// ErrEmptyUpload aborts a merge transaction in which no coverage file
// survived path resolution and decoding. Nothing is merged and no session
// id is consumed.
var ErrEmptyUpload = errors.New("no coverage files survived resolution and decoding")

// ErrLabelIndexInconsistency reports a datapoint referencing a label id
// absent from the report's index after reconciliation. It is an internal
// invariant violation, never expected from user input.
var ErrLabelIndexInconsistency = errors.New("datapoint references label id missing from index")

// ErrSessionConflict reports that the session attached at finalize received
// a different id than the transaction reserved at start. It can only happen
// when the caller mutated the report mid-transaction, violating the
// single-writer assumption.
var ErrSessionConflict = errors.New("attached session id differs from reserved id")

// ErrTransactionFinalized rejects reuse of a transaction that already ran
// to completion.
var ErrTransactionFinalized = errors.New("merge transaction already finalized")
