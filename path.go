// This file implements path splitting and resolution against the mounted
// volume and the current-directory cursor.

package fatiso

import (
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
)

// parsedPath is the decomposition of one path argument.
type parsedPath struct {
	// drive is the addressed drive letter, zero when the path is
	// drive-relative.
	drive byte

	// absolute marks a path anchored at the drive root.
	absolute bool

	segments []string
}

// splitPath decomposes "C:\a\b\file.ext" and relative forms. Both slash
// styles are accepted; empty segments collapse.
func splitPath(path string) (pp parsedPath, err error) {
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

	if len(path) > MaxPath {
		return pp, ErrPathTooLong
	}

	rest := path

	if len(rest) >= 2 && rest[1] == ':' {
		letter := rest[0]

		if letter >= 'a' && letter <= 'z' {
			letter -= 'a' - 'A'
		}

		if letter < 'C' || letter > 'Z' {
			return pp, ErrNotFound
		}

		pp.drive = letter
		rest = rest[2:]

		// A drive-qualified path is anchored even when the separator is
		// omitted ("C:" alone addresses the drive root).
		pp.absolute = true
	}

	if len(rest) > 0 && (rest[0] == '\\' || rest[0] == '/') {
		pp.absolute = true
	}

	for _, segment := range strings.FieldsFunc(rest, func(r rune) bool {
		return r == '\\' || r == '/'
	}) {
		if segment == "." {
			continue
		}

		pp.segments = append(pp.segments, segment)
	}

	return pp, nil
}

// nameMatches compares a path segment against a directory entry, upper-cased
// ASCII on both sides, against both the display name and the canonical 8.3
// short name.
func nameMatches(segment string, entry DirectoryEntry) bool {
	if entry.IsDotEntry() == true {
		return false
	}

	wanted := upperAscii(segment)

	if wanted == upperAscii(entry.Name) {
		return true
	}

	if wanted == upperAscii(entry.displayPathName()) {
		return true
	}

	return wanted == upperAscii(entry.ShortName)
}

// lookupInDirectory scans one directory for a segment.
func (fs *Filesystem) lookupInDirectory(loc dirLocation, segment string) (entry DirectoryEntry, err error) {
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

	cursor, err := fs.newDirectoryCursor(loc)
	log.PanicIf(err)

	for {
		entry, err = cursor.nextEntry()
		if err == ErrEndOfDirectory {
			return entry, ErrNotFound
		}

		log.PanicIf(err)

		if nameMatches(segment, entry) == true {
			return entry, nil
		}
	}
}

// resolve walks a path to its terminal entry. wantFile selects the expected
// kind of the terminal segment. The returned location is the directory
// containing the terminal entry.
func (fs *Filesystem) resolve(path string, wantFile bool) (entry DirectoryEntry, parent dirLocation, err error) {
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

	pp, err := splitPath(path)
	if err != nil {
		// ErrPathTooLong and kin surface unchanged.
		return entry, parent, err
	}

	if pp.drive != 0 && pp.drive != fs.DriveLetter() {
		err := fs.remount(int(pp.drive - 'C'))
		log.PanicIf(err)
	}

	if pp.absolute == true {
		parent = fs.rootLocation()
	} else {
		parent = fs.currentDir
	}

	if len(pp.segments) == 0 {
		if wantFile == true {
			return entry, parent, ErrNotAFile
		}

		// The drive root itself.
		entry = DirectoryEntry{
			Name:       "",
			Kind:       KindDirectory,
			Attributes: AttrDirectory,
			TypeTag:    FilterDir,
		}

		return entry, parent, nil
	}

	for i, segment := range pp.segments {
		terminal := i == len(pp.segments)-1

		entry, err = fs.lookupInDirectory(parent, segment)
		if err == ErrNotFound {
			return entry, parent, ErrNotFound
		}

		log.PanicIf(err)

		if terminal != true {
			if entry.Kind != KindDirectory {
				return entry, parent, ErrNotADirectory
			}

			parent, err = fs.childLocation(entry)
			log.PanicIf(err)

			continue
		}

		if wantFile == true && entry.Kind != KindFile {
			return entry, parent, ErrNotAFile
		} else if wantFile != true && entry.Kind != KindDirectory {
			return entry, parent, ErrNotADirectory
		}
	}

	return entry, parent, nil
}

// remount reselects another partition of the same device, replacing the
// geometry and resetting the cursor state.
func (fs *Filesystem) remount(partition int) (err error) {
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

	remounted, err := Mount(fs.dev, partition)
	log.PanicIf(err)

	*fs = *remounted

	return nil
}

// Chdir changes the current directory. With toParent set the path argument
// is ignored and the enclosing directory becomes current, mirroring the
// two-mode change-directory call of the storage firmware this engine
// descends from; at the root it returns ErrNoMoreEntries.
func (fs *Filesystem) Chdir(path string, toParent bool) (err error) {
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

	if toParent == true {
		return fs.chdirParent()
	}

	entry, _, err := fs.resolve(path, false)
	if err == ErrNotFound || err == ErrNotADirectory || err == ErrPathTooLong {
		return err
	}

	log.PanicIf(err)

	loc := fs.rootLocation()
	if entry.Name != "" {
		loc, err = fs.childLocation(entry)
		log.PanicIf(err)
	}

	fs.currentDir = loc
	fs.currentPath = fs.joinedPath(path)
	fs.enumCursor = nil

	return nil
}

// chdirParent re-resolves the current path minus its last segment.
func (fs *Filesystem) chdirParent() (err error) {
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

	if fs.currentDir.equals(fs.rootLocation()) == true {
		return ErrNoMoreEntries
	}

	parentPath := fs.currentPath

	// Strip the trailing separator that the root form carries, then the last
	// segment.
	parentPath = strings.TrimRight(parentPath, "\\")

	cut := strings.LastIndexByte(parentPath, '\\')
	if cut < 0 {
		parentPath = fs.rootPath()
	} else {
		parentPath = parentPath[:cut]

		if len(parentPath) <= 2 {
			parentPath = fs.rootPath()
		}
	}

	err = fs.Chdir(parentPath, false)
	log.PanicIf(err)

	return nil
}

// joinedPath computes the absolute current path after a directory change.
func (fs *Filesystem) joinedPath(path string) string {
	pp, err := splitPath(path)
	if err != nil {
		return fs.currentPath
	}

	if pp.absolute == true {
		if len(pp.segments) == 0 {
			return fs.rootPath()
		}

		return fs.rootPath() + strings.Join(pp.segments, "\\")
	}

	base := strings.TrimRight(fs.currentPath, "\\")

	return base + "\\" + strings.Join(pp.segments, "\\")
}
