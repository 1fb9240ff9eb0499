package fatiso

import (
	"errors"
)

var (
	// ErrInvalidFormat indicates a signature mismatch, an unrecognized
	// volume-descriptor type, or impossible geometry.
	ErrInvalidFormat = errors.New("invalid on-disk format")

	// ErrNotFound indicates that a path segment was absent in its parent
	// directory.
	ErrNotFound = errors.New("entry not found")

	// ErrNotADirectory indicates that an entry used as a directory (a
	// non-terminal path segment, a Chdir target, or a navigator descent)
	// is a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotAFile indicates that the terminal path segment resolved to a
	// directory where a file was required.
	ErrNotAFile = errors.New("not a file")

	// ErrPathTooLong indicates a path longer than MaxPath.
	ErrPathTooLong = errors.New("path too long")

	// ErrEndOfDirectory is the control signal returned by directory iteration
	// when the cursor is exhausted. Iterating callers recover from it.
	ErrEndOfDirectory = errors.New("end of directory")

	// ErrEndOfFile is returned by file reads once the cursor has consumed
	// exactly the file size. The EOF() query never returns an error.
	ErrEndOfFile = errors.New("end of file")

	// ErrNoFragmentBudget indicates that a fragment cache filled before the
	// full cluster chain was traversed. It is a diagnostic, not a failure:
	// traversal past the cache falls back to the FAT.
	ErrNoFragmentBudget = errors.New("fragment cache filled before end of chain")

	// ErrNoMoreEntries is returned by the navigator when no further entry
	// matches the active filter in the seek direction.
	ErrNoMoreEntries = errors.New("no more matching entries")

	// ErrNoMatchingFiles is returned by GotoChild when the entered directory
	// holds no entry matching the filter. The previous directory is restored.
	ErrNoMatchingFiles = errors.New("no matching files in directory")
)
