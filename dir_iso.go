// This file implements directory iteration for ISO9660 and Joliet volumes.
// Records are variable-length, never cross a logical-block boundary, and
// begin with the "." and ".." navigation entries.

package fatiso

import (
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	// isoRecordFixedSize is the fixed part of a directory record; the
	// identifier and its padding follow.
	isoRecordFixedSize = 33

	isoFlagHidden    = 0x01
	isoFlagDirectory = 0x02
)

// rawIsoRecord is the fixed part of an ISO directory record. The both-endian
// fields carry their big-endian half in the *Be twin, which is never
// interpreted.
type rawIsoRecord struct {
	// Length: total record length. Zero means the remainder of the logical
	// block is padding and iteration resumes at the next block.
	Length uint8

	// ExtendedAttrLength: sectors of extended-attribute records preceding
	// the extent data.
	ExtendedAttrLength uint8

	// ExtentLocation: logical-block number of the extent (both-endian).
	ExtentLocation   uint32
	ExtentLocationBe uint32

	// DataLength: extent byte length (both-endian).
	DataLength   uint32
	DataLengthBe uint32

	// RecordingTime: 7-byte date and time. Not interpreted.
	RecordingTime [7]byte

	// FileFlags: bit 0 hidden, bit 1 directory.
	FileFlags uint8

	// FileUnitSize and InterleaveGap: interleaving parameters, always zero
	// on the media this engine targets.
	FileUnitSize  uint8
	InterleaveGap uint8

	// VolumeSequence: both-endian volume index in a set.
	VolumeSequence   uint16
	VolumeSequenceBe uint16

	// IdentifierLength: byte count of the identifier that follows.
	IdentifierLength uint8
}

// isDirectory decodes file-flag bit 1.
func (rir rawIsoRecord) isDirectory() bool {
	return rir.FileFlags&isoFlagDirectory > 0
}

// isHidden decodes file-flag bit 0.
func (rir rawIsoRecord) isHidden() bool {
	return rir.FileFlags&isoFlagHidden > 0
}

// isoDirCursor iterates one ISO directory extent. Extents are contiguous,
// so the cursor is a single byte offset from the extent start.
type isoDirCursor struct {
	fs  *Filesystem
	loc dirLocation

	sr *sectorReader

	// offset is the byte position within the extent.
	offset uint32

	exhausted  bool
	withLabels bool
}

func newIsoDirCursor(fs *Filesystem, loc dirLocation) (idc *isoDirCursor, err error) {
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

	idc = &isoDirCursor{
		fs:  fs,
		loc: loc,
		sr:  newSectorReader(fs.dev),
	}

	err = idc.rewind()
	log.PanicIf(err)

	return idc, nil
}

func (idc *isoDirCursor) location() dirLocation {
	return idc.loc
}

func (idc *isoDirCursor) includeVolumeLabels(include bool) {
	idc.withLabels = include
}

func (idc *isoDirCursor) rewind() (err error) {
	idc.offset = 0
	idc.exhausted = false

	return nil
}

// readExtentBytes copies n bytes from the directory extent at the given
// extent-relative offset.
func (idc *isoDirCursor) readExtentBytes(offset, n uint32) (raw []byte, err error) {
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

	geometry := idc.fs.geometry
	baseLba := idc.loc.isoExtentStart * geometry.SectorsPerBlock()

	raw = make([]byte, n)

	for i := uint32(0); i < n; {
		lba := baseLba + (offset+i)/SectorSize
		inSector := (offset + i) % SectorSize

		err := idc.sr.seekTo(lba, inSector)
		log.PanicIf(err)

		sector, err := idc.sr.sector()
		log.PanicIf(err)

		copied := copy(raw[i:], sector[inSector:])
		i += uint32(copied)
	}

	return raw, nil
}

func (idc *isoDirCursor) nextEntry() (entry DirectoryEntry, err error) {
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

	if idc.exhausted == true {
		return entry, ErrEndOfDirectory
	}

	geometry := idc.fs.geometry
	blockSize := geometry.LogicalBlockSize

	for {
		if idc.offset >= idc.loc.isoExtentSize {
			idc.exhausted = true
			return entry, ErrEndOfDirectory
		}

		lengthRaw, err := idc.readExtentBytes(idc.offset, 1)
		log.PanicIf(err)

		if lengthRaw[0] == 0 {
			// Padding: records never straddle a logical block, so resume at
			// the next block boundary.
			idc.offset = (idc.offset/blockSize + 1) * blockSize
			continue
		}

		recordLength := uint32(lengthRaw[0])

		raw, err := idc.readExtentBytes(idc.offset, recordLength)
		log.PanicIf(err)

		rir := rawIsoRecord{}

		err = restruct.Unpack(raw[:isoRecordFixedSize], defaultEncoding, &rir)
		log.PanicIf(err)

		identifier := raw[isoRecordFixedSize : isoRecordFixedSize+uint32(rir.IdentifierLength)]

		idc.offset += recordLength

		entry, err = idc.fs.canonicalizeIsoRecord(rir, identifier)
		log.PanicIf(err)

		return entry, nil
	}
}

// canonicalizeIsoRecord produces the format-neutral entry for one ISO
// directory record. The first two records of every directory are the "."
// and ".." entries, whose identifiers are the single bytes 00h and 01h.
func (fs *Filesystem) canonicalizeIsoRecord(rir rawIsoRecord, identifier []byte) (entry DirectoryEntry, err error) {
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

	name := ""

	if len(identifier) == 1 && identifier[0] == 0x00 {
		name = "."
	} else if len(identifier) == 1 && identifier[0] == 0x01 {
		name = ".."
	} else if fs.geometry.Type == TypeJoliet {
		name, err = decodeUcs2Be(identifier)
		log.PanicIf(err)
	} else {
		name = string(identifier)
	}

	// Strip the ";1" version suffix and uppercase for matching.
	if semicolon := strings.IndexByte(name, ';'); semicolon >= 0 {
		name = name[:semicolon]
	}

	if nul := strings.IndexByte(name, 0); nul >= 0 {
		name = name[:nul]
	}

	name = upperAscii(name)

	if len(name) > MaxFilenameLen {
		name = name[:MaxFilenameLen]
	}

	entry.Name = name
	entry.ShortName = name
	entry.FirstCluster = rir.ExtentLocation + uint32(rir.ExtendedAttrLength)
	entry.Size = rir.DataLength

	if rir.isDirectory() == true {
		entry.Kind = KindDirectory
		entry.Attributes |= AttrDirectory
	} else {
		entry.Kind = KindFile
	}

	if rir.isHidden() == true {
		entry.Attributes |= AttrHidden
	}

	if entry.Kind == KindFile {
		if dot := strings.LastIndexByte(name, '.'); dot >= 0 && dot < len(name)-1 {
			extension := name[dot+1:]
			if len(extension) > 3 {
				extension = extension[:3]
			}

			entry.Extension = extension
		}
	}

	entry.TypeTag = classifyExtension(entry.Extension, entry.Kind == KindDirectory)

	return entry, nil
}
