// This file implements the whole-directory and whole-disk enumeration
// surface: a stateful per-folder cursor and an explicitly-stacked
// depth-first disk walk.

package fatiso

import (
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
)

// maxWalkDepth bounds the explicit descent stack of EnumerateDisk. Every
// level consumes at least a separator and a one-character name from the
// path budget.
const maxWalkDepth = MaxPath / 2

// EnumerateFolder returns the next entry of the current directory, together
// with its absolute path. The hidden cursor starts (or restarts) when
// restart is set and is also reset by every Chdir. ErrEndOfDirectory
// reports exhaustion; hidden entries and dot entries are skipped.
func (fs *Filesystem) EnumerateFolder(restart bool) (entry DirectoryEntry, fullPath string, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	if restart == true || fs.enumCursor == nil {
		cursor, err := fs.newDirectoryCursor(fs.currentDir)
		log.PanicIf(err)

		fs.enumCursor = cursor
	}

	for {
		entry, err = fs.enumCursor.nextEntry()
		if err == ErrEndOfDirectory {
			return entry, "", err
		}

		log.PanicIf(err)

		if entry.IsDotEntry() == true || entry.Attributes.IsHidden() == true {
			continue
		}

		base := strings.TrimRight(fs.currentPath, "\\")

		return entry, base + "\\" + entry.displayPathName(), nil
	}
}

// dirSnapshot is one level of the explicit EnumerateDisk descent stack: the
// directory identity plus the emitted-entry ordinal to resume after.
type dirSnapshot struct {
	loc     dirLocation
	path    string
	resumed uint32
}

// DiskEntryVisitorFunc is the callback invoked for every entry found by
// EnumerateDisk.
type DiskEntryVisitorFunc func(fullPath string, entry DirectoryEntry) (err error)

// EnumerateDisk walks the whole volume depth-first from the root, invoking
// the callback for every non-hidden entry. Subdirectories are descended
// into as they are encountered; hidden directories and dot entries are
// pruned. The walk carries an explicit snapshot stack rather than
// recursing, bounded at maxWalkDepth levels.
func (fs *Filesystem) EnumerateDisk(cb DiskEntryVisitorFunc) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	stack := make([]dirSnapshot, 1, 8)

	stack[0] = dirSnapshot{
		loc:  fs.rootLocation(),
		path: strings.TrimRight(fs.rootPath(), "\\"),
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		cursor, err := fs.newDirectoryCursor(top.loc)
		log.PanicIf(err)

		descended := false

		// Re-emitting from the directory head and counting off the already-
		// visited prefix keeps the stack frame to a single ordinal.
		emitted := uint32(0)

		for {
			entry, err := cursor.nextEntry()
			if err == ErrEndOfDirectory {
				break
			}

			log.PanicIf(err)

			emitted++
			if emitted <= top.resumed {
				continue
			}

			top.resumed = emitted

			if entry.IsDotEntry() == true || entry.Attributes.IsHidden() == true {
				continue
			}

			fullPath := top.path + "\\" + entry.displayPathName()

			err = cb(fullPath, entry)
			log.PanicIf(err)

			if entry.Kind == KindDirectory {
				if len(stack) >= maxWalkDepth {
					log.Panicf("directory tree deeper than (%d) levels", maxWalkDepth)
				}

				childLoc, err := fs.childLocation(entry)
				log.PanicIf(err)

				stack = append(stack, dirSnapshot{
					loc:  childLoc,
					path: fullPath,
				})

				descended = true
				break
			}
		}

		if descended != true {
			stack = stack[:len(stack)-1]
		}
	}

	return nil
}
