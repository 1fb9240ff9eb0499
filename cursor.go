// This file defines the format-neutral directory-cursor abstraction. The
// FAT and ISO iterators share one interface so that navigation, path
// resolution and enumeration never branch on the volume family.

package fatiso

import (
	"fmt"
)

// dirLocation is the tagged identity of one directory. Exactly one of the
// two variants is meaningful, selected by the mounted volume family.
type dirLocation struct {
	// fatRoot marks the fixed FAT12/16 root region; fatCluster is then
	// ignored. On FAT32 the root is an ordinary chain and fatRoot is false.
	fatRoot    bool
	fatCluster uint32

	// isoExtentStart (logical block) and isoExtentSize (bytes) identify an
	// ISO directory extent.
	isoExtentStart uint32
	isoExtentSize  uint32
}

// String returns a descriptive string.
func (dl dirLocation) String() string {
	return fmt.Sprintf("DirLocation<FAT-ROOT=[%v] FAT-CLUSTER=(%d) ISO-EXTENT=(%d) ISO-SIZE=(%d)>",
		dl.fatRoot, dl.fatCluster, dl.isoExtentStart, dl.isoExtentSize)
}

// equals compares directory identities.
func (dl dirLocation) equals(other dirLocation) bool {
	return dl == other
}

// directoryCursor is the single abstraction over the two on-disk directory
// representations. Iteration is strictly forward; positioning is rebuilt
// from the start by the navigator's delta table.
type directoryCursor interface {
	// rewind repositions at the first raw slot of the directory.
	rewind() (err error)

	// nextEntry returns the next live entry, skipping deleted slots and
	// (unless enabled) volume labels. It returns ErrEndOfDirectory when the
	// terminal marker or the end of the directory's extent/chain is reached.
	nextEntry() (entry DirectoryEntry, err error)

	// location returns the directory's identity.
	location() dirLocation

	// includeVolumeLabels controls whether label entries are emitted.
	includeVolumeLabels(include bool)
}
