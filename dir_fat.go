// This file implements directory iteration for the FAT family: the fixed
// FAT12/16 root region, cluster-chain directories, 8.3 short entries and
// VFAT long-filename reconstruction.

package fatiso

import (
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
)

// lfnMaxEntries bounds the continuation records of one name: the ordinal
// field carries five bits, and twenty records already exceed the 255-
// character name cap.
const lfnMaxEntries = 20

// lfnAccumulator reassembles a long filename from its continuation records.
// Records are stored in reverse on disk, so fragments are placed by ordinal
// and decoded once the paired 8.3 entry arrives.
type lfnAccumulator struct {
	raw     [lfnMaxEntries * lfnCharsPerEntry * 2]byte
	highest int
	active  bool
}

func (la *lfnAccumulator) reset() {
	la.highest = 0
	la.active = false
}

// add places one record's characters by its one-based ordinal.
func (la *lfnAccumulator) add(rle rawLfnEntry) {
	ordinal, _ := rle.sequence()

	if ordinal < 1 || ordinal > lfnMaxEntries {
		// Out-of-range ordinals void the pending name; the 8.3 alias will
		// stand on its own.
		la.reset()
		return
	}

	copy(la.raw[(ordinal-1)*lfnCharsPerEntry*2:], rle.nameFragment())

	if ordinal > la.highest {
		la.highest = ordinal
	}

	la.active = true
}

// take decodes and clears the pending name. The name is truncated at the
// first NUL code-unit and capped at MaxFilenameLen characters.
func (la *lfnAccumulator) take() string {
	if la.active != true {
		return ""
	}

	decoded, err := decodeUcs2Le(la.raw[:la.highest*lfnCharsPerEntry*2])
	la.reset()

	if err != nil {
		return ""
	}

	if runes := []rune(decoded); len(runes) > MaxFilenameLen {
		decoded = string(runes[:MaxFilenameLen])
	}

	return decoded
}

// fatDirCursor iterates one FAT directory. The root region of FAT12/16
// volumes is a contiguous sector run; every other directory is a cluster
// chain walked through the directory's fragment cache.
type fatDirCursor struct {
	fs  *Filesystem
	loc dirLocation

	sr        *sectorReader
	fragments *fragmentTable

	currentSector   uint32
	byteOffset      uint32
	sectorInCluster uint32
	clusterOrdinal  uint32
	currentCluster  uint32

	exhausted  bool
	withLabels bool

	lfn lfnAccumulator
}

func newFatDirCursor(fs *Filesystem, loc dirLocation) (fdc *fatDirCursor, err error) {
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

	fdc = &fatDirCursor{
		fs:        fs,
		loc:       loc,
		sr:        newSectorReader(fs.dev),
		fragments: newFragmentTable(MaxDirFragments),
	}

	if loc.fatRoot != true {
		err := fs.fat.buildChain(loc.fatCluster, fdc.fragments)
		if err != nil && err != ErrNoFragmentBudget {
			log.Panicf("directory chain walk failed: %s", err)
		}
	}

	err = fdc.rewind()
	log.PanicIf(err)

	return fdc, nil
}

func (fdc *fatDirCursor) location() dirLocation {
	return fdc.loc
}

func (fdc *fatDirCursor) includeVolumeLabels(include bool) {
	fdc.withLabels = include
}

func (fdc *fatDirCursor) rewind() (err error) {
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

	geometry := fdc.fs.geometry

	fdc.byteOffset = 0
	fdc.sectorInCluster = 0
	fdc.clusterOrdinal = 0
	fdc.exhausted = false
	fdc.lfn.reset()

	if fdc.loc.fatRoot == true {
		fdc.currentSector = geometry.FirstRootSector
		fdc.currentCluster = 0
	} else {
		fdc.currentCluster = fdc.loc.fatCluster
		fdc.currentSector = geometry.firstSectorOfCluster(fdc.currentCluster)
	}

	return nil
}

// advanceSlot moves the cursor past the current 32-byte slot, crossing into
// the next sector and, for chain directories, the next cluster as needed.
// It returns ErrEndOfDirectory when the directory's extent is exhausted.
func (fdc *fatDirCursor) advanceSlot() (err error) {
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

	geometry := fdc.fs.geometry

	fdc.byteOffset += directoryEntrySize
	if fdc.byteOffset < SectorSize {
		return nil
	}

	fdc.byteOffset = 0

	if fdc.loc.fatRoot == true {
		fdc.currentSector++

		if fdc.currentSector >= geometry.FirstRootSector+geometry.RootDirSectors {
			fdc.exhausted = true
			return ErrEndOfDirectory
		}

		return nil
	}

	fdc.sectorInCluster++
	if fdc.sectorInCluster < geometry.SectorsPerCluster {
		fdc.currentSector++
		return nil
	}

	fdc.sectorInCluster = 0
	fdc.clusterOrdinal++

	cluster, err := fdc.fs.fat.clusterForOrdinal(fdc.fragments, fdc.clusterOrdinal)
	if err == ErrEndOfFile {
		fdc.exhausted = true
		return ErrEndOfDirectory
	}

	log.PanicIf(err)

	fdc.currentCluster = cluster
	fdc.currentSector = geometry.firstSectorOfCluster(cluster)

	return nil
}

// slot returns the 32 raw bytes under the cursor.
func (fdc *fatDirCursor) slot() (raw []byte, err error) {
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

	err = fdc.sr.seekTo(fdc.currentSector, 0)
	log.PanicIf(err)

	sector, err := fdc.sr.sector()
	log.PanicIf(err)

	return sector[fdc.byteOffset : fdc.byteOffset+directoryEntrySize], nil
}

func (fdc *fatDirCursor) nextEntry() (entry DirectoryEntry, err error) {
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

	if fdc.exhausted == true {
		return entry, ErrEndOfDirectory
	}

	for {
		raw, err := fdc.slot()
		log.PanicIf(err)

		marker := raw[0]

		if marker == entryMarkerEndOfDirectory {
			fdc.exhausted = true
			return entry, ErrEndOfDirectory
		}

		if marker == entryMarkerDeleted {
			fdc.lfn.reset()

			err = fdc.advanceSlot()
			if err == ErrEndOfDirectory {
				return entry, err
			}
			log.PanicIf(err)

			continue
		}

		attributes := FileAttributes(raw[11])

		if attributes.IsLongName() == true {
			rle, err := parseLfnEntry(raw)
			log.PanicIf(err)

			fdc.lfn.add(rle)

			err = fdc.advanceSlot()
			if err == ErrEndOfDirectory {
				return entry, err
			}
			log.PanicIf(err)

			continue
		}

		rse, err := parseShortEntry(raw)
		log.PanicIf(err)

		if attributes.IsVolumeId() == true {
			fdc.lfn.reset()

			if fdc.withLabels != true {
				err = fdc.advanceSlot()
				if err == ErrEndOfDirectory {
					return entry, err
				}
				log.PanicIf(err)

				continue
			}
		}

		entry = fdc.fs.canonicalizeShortEntry(rse, fdc.lfn.take())

		// Leave the cursor on the next slot. End-of-extent here is benign:
		// the entry in hand is still valid.
		err = fdc.advanceSlot()
		if err != nil && err != ErrEndOfDirectory {
			log.PanicIf(err)
		}

		return entry, nil
	}
}

// canonicalizeShortEntry produces the format-neutral entry for an 8.3 slot,
// substituting a reconstructed long name when one is pending.
func (fs *Filesystem) canonicalizeShortEntry(rse rawShortEntry, longName string) (entry DirectoryEntry) {
	shortName, shortExt := rse.ShortName()

	entry.Attributes = rse.Attributes
	entry.FirstCluster = rse.FirstCluster(fs.geometry.Type)
	entry.Size = rse.Size

	if rse.Attributes.IsVolumeId() == true {
		entry.Kind = KindVolumeLabel
	} else if rse.Attributes.IsDirectory() == true {
		entry.Kind = KindDirectory
	} else {
		entry.Kind = KindFile
	}

	if shortExt != "" {
		entry.ShortName = shortName + "." + shortExt
	} else {
		entry.ShortName = shortName
	}

	if longName != "" {
		entry.Name = longName

		if dot := strings.LastIndexByte(longName, '.'); dot >= 0 && dot < len(longName)-1 {
			entry.Extension = upperAscii(longName[dot+1:])
		}
	} else {
		entry.Name = shortName
		entry.Extension = ""
	}

	if entry.Extension == "" {
		entry.Extension = upperAscii(shortExt)
	}

	// The extension column is bounded at three characters for filtering.
	if len(entry.Extension) > 3 {
		entry.Extension = entry.Extension[:3]
	}

	entry.TypeTag = classifyExtension(entry.Extension, entry.Kind == KindDirectory)

	return entry
}
