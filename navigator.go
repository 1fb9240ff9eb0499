// This file implements the navigation policy over the current directory:
// filtered next/prev/first/last movement, child descent with restore-on-
// empty, and parent ascent with position recall.

package fatiso

import (
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// navigatorFrame remembers where navigation left a parent directory when it
// descended into a child.
type navigatorFrame struct {
	index  int
	filter TypeFilter
}

// Navigator drives the filesystem's current-directory cursor. At most one
// position index is live at a time; the compact delta table maps listing
// indices back to raw entry ordinals so previous/next movement never
// rescans more than a prefix of the directory.
type Navigator struct {
	fs *Filesystem

	cursor directoryCursor

	// deltas[i] is the gap, in emitted-entry ordinals, between matched
	// entry i-1 and matched entry i (deltas[0] is the ordinal of the first
	// match). The entry at listing index i therefore lives at emitted
	// ordinal sum(deltas[0..=i]).
	deltas []uint16

	// lastIndex is the total matched count, known after the scan pass.
	lastIndex int

	// index is the live position in [0, lastIndex); lastIndex means
	// past-end.
	index int

	filter  TypeFilter
	scanned bool

	current DirectoryEntry
	haveCur bool

	parents []navigatorFrame
}

// NewNavigator opens navigation over the filesystem's current directory.
func NewNavigator(fs *Filesystem) (nav *Navigator, err error) {
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

	cursor, err := fs.newDirectoryCursor(fs.currentDir)
	log.PanicIf(err)

	nav = &Navigator{
		fs:     fs,
		cursor: cursor,
	}

	return nav, nil
}

// scan indexes the directory under the given filter, building the delta
// table. Dot entries never participate.
func (nav *Navigator) scan(filter TypeFilter) (err error) {
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

	if nav.scanned == true && nav.filter == filter {
		return nil
	}

	err = nav.cursor.rewind()
	log.PanicIf(err)

	nav.deltas = nav.deltas[:0]
	nav.lastIndex = 0

	sinceLast := uint16(0)

	for {
		entry, err := nav.cursor.nextEntry()
		if err == ErrEndOfDirectory {
			break
		}

		log.PanicIf(err)

		sinceLast++

		if entry.IsDotEntry() == true || entry.Matches(filter) != true {
			continue
		}

		nav.deltas = append(nav.deltas, sinceLast)
		nav.lastIndex++
		sinceLast = 0
	}

	nav.filter = filter
	nav.scanned = true
	nav.index = nav.lastIndex
	nav.haveCur = false

	return nil
}

// seekToIndex repositions the cursor at listing index i and loads the entry
// there.
func (nav *Navigator) seekToIndex(i int) (err error) {
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

	if i < 0 || i >= nav.lastIndex {
		log.Panicf("listing index out of range: (%d) of (%d)", i, nav.lastIndex)
	}

	ordinal := uint32(0)
	for j := 0; j <= i; j++ {
		ordinal += uint32(nav.deltas[j])
	}

	err = nav.cursor.rewind()
	log.PanicIf(err)

	entry := DirectoryEntry{}

	for emitted := uint32(0); emitted < ordinal; emitted++ {
		entry, err = nav.cursor.nextEntry()
		log.PanicIf(err)
	}

	nav.index = i
	nav.current = entry
	nav.haveCur = true

	return nil
}

// Current returns the entry under the navigation cursor.
func (nav *Navigator) Current() (entry DirectoryEntry, err error) {
	if nav.haveCur != true {
		return entry, ErrNoMoreEntries
	}

	return nav.current, nil
}

// Index returns the live listing index.
func (nav *Navigator) Index() int {
	return nav.index
}

// LastIndex returns the matched-entry count of the last scan.
func (nav *Navigator) LastIndex() int {
	return nav.lastIndex
}

// Eof indicates the past-end state reached by walking off either end of the
// listing.
func (nav *Navigator) Eof() bool {
	return nav.haveCur != true
}

// GotoFirst positions at the first filter-matching entry.
func (nav *Navigator) GotoFirst(filter TypeFilter) (entry DirectoryEntry, err error) {
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

	err = nav.scan(filter)
	log.PanicIf(err)

	if nav.lastIndex == 0 {
		return entry, ErrNoMoreEntries
	}

	err = nav.seekToIndex(0)
	log.PanicIf(err)

	return nav.current, nil
}

// GotoLast positions at the last filter-matching entry.
func (nav *Navigator) GotoLast(filter TypeFilter) (entry DirectoryEntry, err error) {
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

	err = nav.scan(filter)
	log.PanicIf(err)

	if nav.lastIndex == 0 {
		return entry, ErrNoMoreEntries
	}

	err = nav.seekToIndex(nav.lastIndex - 1)
	log.PanicIf(err)

	return nav.current, nil
}

// GotoNext advances to the next filter-matching entry. On the first call
// after a directory change or filter change it behaves as GotoFirst. At the
// end it returns ErrNoMoreEntries and parks past-end; the caller decides
// whether to wrap.
func (nav *Navigator) GotoNext(filter TypeFilter) (entry DirectoryEntry, err error) {
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

	freshScan := nav.scanned != true || nav.filter != filter

	err = nav.scan(filter)
	log.PanicIf(err)

	if freshScan == true {
		return nav.GotoFirst(filter)
	}

	if nav.haveCur != true || nav.index+1 >= nav.lastIndex {
		nav.index = nav.lastIndex
		nav.haveCur = false

		return entry, ErrNoMoreEntries
	}

	err = nav.seekToIndex(nav.index + 1)
	log.PanicIf(err)

	return nav.current, nil
}

// GotoPrev steps back to the previous filter-matching entry, returning
// ErrNoMoreEntries when already at the first.
func (nav *Navigator) GotoPrev(filter TypeFilter) (entry DirectoryEntry, err error) {
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

	freshScan := nav.scanned != true || nav.filter != filter

	err = nav.scan(filter)
	log.PanicIf(err)

	if freshScan == true {
		return nav.GotoLast(filter)
	}

	if nav.haveCur != true || nav.index == 0 {
		nav.index = nav.lastIndex
		nav.haveCur = false

		return entry, ErrNoMoreEntries
	}

	err = nav.seekToIndex(nav.index - 1)
	log.PanicIf(err)

	return nav.current, nil
}

// GotoChild enters the directory under the cursor and positions at its
// first filter-matching entry. When nothing inside matches, the parent
// directory is restored and ErrNoMatchingFiles is returned.
func (nav *Navigator) GotoChild(filter TypeFilter) (entry DirectoryEntry, err error) {
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

	if nav.haveCur != true {
		return entry, ErrNoMoreEntries
	}

	if nav.current.Kind != KindDirectory {
		return entry, ErrNotADirectory
	}

	parentIndex := nav.index
	parentFilter := nav.filter

	err = nav.fs.Chdir(nav.current.displayPathName(), false)
	log.PanicIf(err)

	cursor, err := nav.fs.newDirectoryCursor(nav.fs.currentDir)
	log.PanicIf(err)

	nav.cursor = cursor
	nav.scanned = false

	entry, err = nav.GotoFirst(filter)
	if err == ErrNoMoreEntries {
		// Nothing inside matches: back out to where we were.
		err = nav.fs.Chdir("", true)
		log.PanicIf(err)

		cursor, err := nav.fs.newDirectoryCursor(nav.fs.currentDir)
		log.PanicIf(err)

		nav.cursor = cursor
		nav.scanned = false

		err = nav.scan(parentFilter)
		log.PanicIf(err)

		err = nav.seekToIndex(parentIndex)
		log.PanicIf(err)

		return entry, ErrNoMatchingFiles
	}

	log.PanicIf(err)

	nav.parents = append(nav.parents, navigatorFrame{
		index:  parentIndex,
		filter: parentFilter,
	})

	return entry, nil
}

// GotoParent restores the enclosing directory, repositioning at the child
// that was active when GotoChild descended, when that is known; otherwise
// at the first match.
func (nav *Navigator) GotoParent() (entry DirectoryEntry, err error) {
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

	err = nav.fs.Chdir("", true)
	if err == ErrNoMoreEntries {
		return entry, err
	}

	log.PanicIf(err)

	cursor, err := nav.fs.newDirectoryCursor(nav.fs.currentDir)
	log.PanicIf(err)

	nav.cursor = cursor
	nav.scanned = false

	if len(nav.parents) > 0 {
		frame := nav.parents[len(nav.parents)-1]
		nav.parents = nav.parents[:len(nav.parents)-1]

		err = nav.scan(frame.filter)
		log.PanicIf(err)

		if frame.index < nav.lastIndex {
			err = nav.seekToIndex(frame.index)
			log.PanicIf(err)

			return nav.current, nil
		}
	}

	entry, err = nav.GotoFirst(nav.filter)
	if err == ErrNoMoreEntries {
		return entry, err
	}

	log.PanicIf(err)

	return entry, nil
}

// String returns a descriptive string.
func (nav *Navigator) String() string {
	return fmt.Sprintf("Navigator<INDEX=(%d) LAST=(%d) DEPTH=(%d)>",
		nav.index, nav.lastIndex, len(nav.parents))
}
