// Package perr defines the error kinds the merge tree core can surface.
// A malformed write fails that write; the write stream it came through
// stays open. Store I/O failures are returned as ErrStoreIOError; they do
// not close the Tree or MergeTree. Conflicts are never errors — they are
// rows in the Conflict Store.
package perr

import "errors"

var (
	// ErrMalformedItem is returned when an item's header fails validation:
	// empty id, empty version, more than two parents, or a
	// tombstone carrying a body.
	ErrMalformedItem = errors.New("persdb: malformed item")

	// ErrDuplicateVersion is returned when a write's v already exists in
	// the target tree.
	ErrDuplicateVersion = errors.New("persdb: duplicate version")

	// ErrMissingParent is returned when a write's pa references a version
	// not already present in the target tree.
	ErrMissingParent = errors.New("persdb: missing parent")

	// ErrUnknownPerspective is returned for operations against a
	// perspective name the MergeTree was not configured with.
	ErrUnknownPerspective = errors.New("persdb: unknown perspective")

	// ErrLocalWriterBusy is returned by CreateLocalWriteStream when one is
	// already open.
	ErrLocalWriterBusy = errors.New("persdb: local writer busy")

	// ErrAlreadyAutoMerging is returned when both autoMerge and an
	// external local writer are attached at once.
	ErrAlreadyAutoMerging = errors.New("persdb: already auto-merging")

	// ErrHeadAmbiguous is returned by a single-head lookup when more than
	// one non-conflict, non-deleted head exists for an id.
	ErrHeadAmbiguous = errors.New("persdb: ambiguous head")

	// ErrPreviousVersionNotFound is returned by the oplog adapter when an
	// update-modifier record has no base state to apply against.
	ErrPreviousVersionNotFound = errors.New("persdb: previous version not found")

	// ErrConflictRecorded is informational: the merge succeeded in the
	// sense that a Conflict row was written, but no merged item was
	// produced. Callers should not treat it as a failure.
	ErrConflictRecorded = errors.New("persdb: conflict recorded")

	// ErrStoreIOError reports an underlying store failure in place of the
	// store's own error. Returning it does not close the owning Tree or
	// MergeTree.
	ErrStoreIOError = errors.New("persdb: store I/O error")

	// ErrClosed is returned by Tree.Write and by the MergeTree's write,
	// merge and lookup entry points after Close has been called.
	ErrClosed = errors.New("persdb: closed")

	// ErrNotFound is returned by point lookups that find nothing.
	ErrNotFound = errors.New("persdb: not found")
)
