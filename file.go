// This file implements the file cursor: open, sequential byte reads, seek,
// end-of-file accounting and the saved-position support used by A-B repeat
// players.

package fatiso

import (
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// SeekMode selects the interpretation of a seek offset.
type SeekMode int

const (
	SeekAbsolute SeekMode = iota
	SeekRelative
)

// String returns a descriptive string.
func (sm SeekMode) String() string {
	switch sm {
	case SeekAbsolute:
		return "Absolute"
	case SeekRelative:
		return "Relative"
	}

	return "Unknown"
}

// File is an open read cursor. The file-size in bytes is authoritative:
// EOF() is true exactly when the next byte position would reach it.
type File struct {
	fs    *Filesystem
	entry DirectoryEntry

	size     uint32
	position uint32

	// firstCluster doubles as the extent's logical-block number on ISO
	// volumes, where the extent is contiguous and no chain exists.
	firstCluster uint32

	fragments *fragmentTable

	sr *sectorReader

	savedPosition uint32
	saved         bool

	closed bool
}

// OpenFile resolves a path to a regular file and opens a cursor on it. The
// file's fragment cache is populated immediately, bounded by its capacity.
func (fs *Filesystem) OpenFile(path string) (f *File, err error) {
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

	entry, _, err := fs.resolve(path, true)
	if err == ErrNotFound || err == ErrNotAFile || err == ErrPathTooLong {
		return nil, err
	}

	log.PanicIf(err)

	f, err = fs.OpenEntry(entry)
	log.PanicIf(err)

	return f, nil
}

// OpenEntry opens a cursor on an already-located directory entry.
func (fs *Filesystem) OpenEntry(entry DirectoryEntry) (f *File, err error) {
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

	if entry.Kind != KindFile {
		return nil, ErrNotAFile
	}

	if fs.openFiles >= MaxOpenFiles {
		log.Panicf("too many open files: (%d)", fs.openFiles)
	}

	f = &File{
		fs:           fs,
		entry:        entry,
		size:         entry.Size,
		firstCluster: entry.FirstCluster,
		sr:           newSectorReader(fs.dev),
	}

	if fs.geometry.Type.IsFat() == true {
		f.fragments = newFragmentTable(MaxFileFragments)

		if f.size > 0 {
			err := fs.fat.buildChain(f.firstCluster, f.fragments)
			if err != nil && err != ErrNoFragmentBudget {
				log.Panicf("file chain walk failed: %s", err)
			}
		}
	}

	fs.openFiles++

	return f, nil
}

// Entry returns the directory entry the cursor was opened on.
func (f *File) Entry() DirectoryEntry {
	return f.entry
}

// Size returns the authoritative byte length.
func (f *File) Size() uint32 {
	return f.size
}

// Position returns the current byte offset.
func (f *File) Position() uint32 {
	return f.position
}

// EOF is true exactly when every byte has been consumed.
func (f *File) EOF() bool {
	return f.position >= f.size
}

// sectorForPosition maps the cursor position to a device sector and
// in-sector offset.
func (f *File) sectorForPosition() (lba uint32, inSector uint32, err error) {
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

	geometry := f.fs.geometry

	if geometry.Type.IsIso() == true {
		// ISO extents are contiguous: position maps in O(1).
		blockOrdinal := f.position / geometry.LogicalBlockSize
		inBlock := f.position % geometry.LogicalBlockSize

		lba = (f.firstCluster+blockOrdinal)*geometry.SectorsPerBlock() + inBlock/SectorSize

		return lba, inBlock % SectorSize, nil
	}

	bytesPerCluster := geometry.BytesPerCluster()

	clusterOrdinal := f.position / bytesPerCluster
	inCluster := f.position % bytesPerCluster

	cluster, err := f.fs.fat.clusterForOrdinal(f.fragments, clusterOrdinal)
	log.PanicIf(err)

	lba = geometry.firstSectorOfCluster(cluster) + inCluster/SectorSize

	return lba, inCluster % SectorSize, nil
}

// ReadByte returns the next byte. It returns ErrEndOfFile once the size has
// been consumed.
func (f *File) ReadByte() (b byte, err error) {
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

	if f.closed == true {
		log.Panicf("file is closed")
	}

	if f.position >= f.size {
		return 0, ErrEndOfFile
	}

	lba, inSector, err := f.sectorForPosition()
	log.PanicIf(err)

	err = f.sr.seekTo(lba, inSector)
	log.PanicIf(err)

	b, err = f.sr.readByte()
	log.PanicIf(err)

	f.position++

	return b, nil
}

// Read fills p with the next bytes in on-disk order. A short count with
// ErrEndOfFile is returned at the end; a zero-byte request returns
// immediately.
func (f *File) Read(p []byte) (n int, err error) {
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

	if f.closed == true {
		log.Panicf("file is closed")
	}

	for n < len(p) {
		if f.position >= f.size {
			return n, ErrEndOfFile
		}

		lba, inSector, err := f.sectorForPosition()
		log.PanicIf(err)

		err = f.sr.seekTo(lba, inSector)
		log.PanicIf(err)

		sector, err := f.sr.sector()
		log.PanicIf(err)

		available := SectorSize - inSector

		remainingFile := f.size - f.position
		if remainingFile < available {
			available = remainingFile
		}

		remainingBuf := uint32(len(p) - n)
		if remainingBuf < available {
			available = remainingBuf
		}

		copy(p[n:], sector[inSector:inSector+available])

		n += int(available)
		f.position += available
	}

	return n, nil
}

// Seek repositions the cursor. The target is clamped to [0, size]; seeking
// is observed by the very next read.
func (f *File) Seek(mode SeekMode, offset int64) (position uint32, err error) {
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

	if f.closed == true {
		log.Panicf("file is closed")
	}

	target := int64(0)

	switch mode {
	case SeekAbsolute:
		target = offset
	case SeekRelative:
		target = int64(f.position) + offset
	default:
		log.Panicf("seek mode not valid: (%d)", mode)
	}

	if target < 0 {
		target = 0
	}

	if target > int64(f.size) {
		target = int64(f.size)
	}

	f.position = uint32(target)

	return f.position, nil
}

// SavePosition records the current offset for a later RestorePosition.
func (f *File) SavePosition() {
	f.savedPosition = f.position
	f.saved = true
}

// RestorePosition seeks back to the last saved offset.
func (f *File) RestorePosition() (err error) {
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

	if f.saved != true {
		log.Panicf("no position has been saved")
	}

	_, err = f.Seek(SeekAbsolute, int64(f.savedPosition))
	log.PanicIf(err)

	return nil
}

// Close releases the cursor. Further reads and seeks return an error.
func (f *File) Close() (err error) {
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

	if f.closed == true {
		return nil
	}

	f.closed = true
	f.fs.openFiles--

	return nil
}

// String returns a descriptive string.
func (f *File) String() string {
	return fmt.Sprintf("File<NAME=[%s] SIZE=(%d) POSITION=(%d)>", f.entry.Name, f.size, f.position)
}
