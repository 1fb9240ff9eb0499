// This file manages the 32-byte FAT directory entries: the 8.3 short form,
// the VFAT long-filename continuation form, and the canonical format-neutral
// entry the iterators emit.

package fatiso

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	directoryEntrySize = 32

	// entryMarkerEndOfDirectory in the first name byte terminates the
	// directory; entryMarkerDeleted marks a free slot that must be skipped.
	entryMarkerEndOfDirectory = 0x00
	entryMarkerDeleted        = 0xe5

	// lfnCharsPerEntry: each long-filename record carries thirteen UCS-2
	// characters packed in three runs of five, six and two.
	lfnCharsPerEntry = 13

	// lfnOrdinalMask and lfnLastFlag decompose the sequence byte: the low
	// five bits are the one-based ordinal, bit six marks the final (highest)
	// record, which is stored first on disk.
	lfnOrdinalMask = 0x1f
	lfnLastFlag    = 0x40
)

// FileAttributes decomposes the attribute byte at offset 11 of a directory
// entry.
type FileAttributes uint8

const (
	AttrReadOnly  FileAttributes = 0x01
	AttrHidden    FileAttributes = 0x02
	AttrSystem    FileAttributes = 0x04
	AttrVolumeId  FileAttributes = 0x08
	AttrDirectory FileAttributes = 0x10
	AttrArchive   FileAttributes = 0x20

	// attrLongName is the exact value (not a mask) that marks a VFAT
	// long-filename continuation record.
	attrLongName FileAttributes = 0x0f
)

// IsReadOnly returns whether writes are prohibited.
func (fa FileAttributes) IsReadOnly() bool {
	return fa&AttrReadOnly > 0
}

// IsHidden returns whether the entry should be omitted from standard
// listings.
func (fa FileAttributes) IsHidden() bool {
	return fa&AttrHidden > 0
}

// IsSystem returns the system flag.
func (fa FileAttributes) IsSystem() bool {
	return fa&AttrSystem > 0
}

// IsVolumeId returns whether the entry is the volume label.
func (fa FileAttributes) IsVolumeId() bool {
	return fa&AttrVolumeId > 0
}

// IsDirectory returns whether the entry is a directory.
func (fa FileAttributes) IsDirectory() bool {
	return fa&AttrDirectory > 0
}

// IsArchive returns whether the archive flag is set.
func (fa FileAttributes) IsArchive() bool {
	return fa&AttrArchive > 0
}

// IsLongName returns whether the entry is a long-filename continuation
// record.
func (fa FileAttributes) IsLongName() bool {
	return fa == attrLongName
}

// String returns a descriptive string.
func (fa FileAttributes) String() string {
	return fmt.Sprintf("FileAttributes<IS-READONLY=[%v] IS-HIDDEN=[%v] IS-SYSTEM=[%v] IS-VOLUME-ID=[%v] IS-DIRECTORY=[%v] IS-ARCHIVE=[%v]>",
		fa.IsReadOnly(), fa.IsHidden(), fa.IsSystem(), fa.IsVolumeId(), fa.IsDirectory(), fa.IsArchive())
}

// DumpBareIndented prints the attribute states with arbitrary indentation.
func (fa FileAttributes) DumpBareIndented(indent string) {
	fmt.Printf("%sRaw Value: (%08b)\n", indent, uint8(fa))
	fmt.Printf("%sRead Only? [%v]\n", indent, fa.IsReadOnly())
	fmt.Printf("%sHidden? [%v]\n", indent, fa.IsHidden())
	fmt.Printf("%sSystem? [%v]\n", indent, fa.IsSystem())
	fmt.Printf("%sVolume ID? [%v]\n", indent, fa.IsVolumeId())
	fmt.Printf("%sDirectory? [%v]\n", indent, fa.IsDirectory())
	fmt.Printf("%sArchive? [%v]\n", indent, fa.IsArchive())
}

// rawShortEntry is the on-disk 8.3 directory entry.
type rawShortEntry struct {
	// Name: eight name bytes, 20h padded. The first byte doubles as the
	// end-of-directory/deleted marker.
	Name [8]byte

	// Extension: three extension bytes, 20h padded.
	Extension [3]byte

	// Attributes: the attribute byte at offset 11.
	Attributes FileAttributes

	// NtReserved and the create/access stamps are carried but not
	// interpreted by the read-only core.
	NtReserved       uint8
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	AccessDate       uint16

	// FirstClusterHigh: the high sixteen bits of the first cluster, FAT32
	// only. Zero on FAT12/16.
	FirstClusterHigh uint16

	WriteTime uint16
	WriteDate uint16

	// FirstClusterLow: the low sixteen bits of the first cluster.
	FirstClusterLow uint16

	// Size: the byte length of the file. Zero for directories.
	Size uint32
}

// FirstCluster combines the split cluster halves. The high half contributes
// on every path when the volume is FAT32.
func (rse rawShortEntry) FirstCluster(fsType FilesystemType) uint32 {
	cluster := uint32(rse.FirstClusterLow)

	if fsType == TypeFat32 {
		cluster |= uint32(rse.FirstClusterHigh) << 16
	}

	return cluster
}

// ShortName returns the 8.3 name with padding trimmed.
func (rse rawShortEntry) ShortName() (name, extension string) {
	return trimPadding(rse.Name[:]), trimPadding(rse.Extension[:])
}

// String returns a descriptive string.
func (rse rawShortEntry) String() string {
	name, extension := rse.ShortName()
	return fmt.Sprintf("ShortEntry<NAME=[%s] EXT=[%s] ATTR=(%08b) CLUSTER=(%d) SIZE=(%d)>",
		name, extension, uint8(rse.Attributes), rse.FirstClusterLow, rse.Size)
}

// rawLfnEntry is the on-disk long-filename continuation record.
type rawLfnEntry struct {
	// Ordinal: low five bits give the one-based sequence number; bit six
	// marks the last (first on disk) record.
	Ordinal uint8

	// Name1: characters one through five, UCS-2LE.
	Name1 [10]byte

	// Attributes: always 0Fh.
	Attributes FileAttributes

	// EntryKind: always zero for name records.
	EntryKind uint8

	// Checksum of the paired 8.3 alias. Carried but not validated.
	Checksum uint8

	// Name2: characters six through eleven.
	Name2 [12]byte

	// FirstClusterLow: must be zero in a name record.
	FirstClusterLow uint16

	// Name3: characters twelve and thirteen.
	Name3 [4]byte
}

// sequence returns the one-based ordinal and whether this is the final
// record of the name.
func (rle rawLfnEntry) sequence() (ordinal int, last bool) {
	return int(rle.Ordinal & lfnOrdinalMask), rle.Ordinal&lfnLastFlag > 0
}

// nameFragment concatenates the record's three packed character runs as raw
// UCS-2LE bytes.
func (rle rawLfnEntry) nameFragment() []byte {
	fragment := make([]byte, 0, lfnCharsPerEntry*2)
	fragment = append(fragment, rle.Name1[:]...)
	fragment = append(fragment, rle.Name2[:]...)
	fragment = append(fragment, rle.Name3[:]...)

	return fragment
}

// parseShortEntry unpacks one 32-byte slot as an 8.3 entry.
func parseShortEntry(raw []byte) (rse rawShortEntry, err error) {
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

	err = restruct.Unpack(raw, defaultEncoding, &rse)
	log.PanicIf(err)

	return rse, nil
}

// parseLfnEntry unpacks one 32-byte slot as a long-filename record.
func parseLfnEntry(raw []byte) (rle rawLfnEntry, err error) {
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

	err = restruct.Unpack(raw, defaultEncoding, &rle)
	log.PanicIf(err)

	return rle, nil
}

// EntryKind is the coarse class of a canonical directory entry.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindVolumeLabel
)

// String returns a descriptive string.
func (ek EntryKind) String() string {
	switch ek {
	case KindFile:
		return "File"
	case KindDirectory:
		return "Directory"
	case KindVolumeLabel:
		return "VolumeLabel"
	}

	return "Unknown"
}

// TypeFilter selects entry classes during navigation, by coarse extension
// classification.
type TypeFilter uint8

const (
	FilterMp3 TypeFilter = 0x01
	FilterWav TypeFilter = 0x02
	FilterSys TypeFilter = 0x04
	FilterDir TypeFilter = 0x08

	// FilterOther matches files whose extension has no dedicated class.
	FilterOther TypeFilter = 0x10

	// FilterAny matches every non-hidden entry.
	FilterAny = FilterMp3 | FilterWav | FilterSys | FilterDir | FilterOther
)

// classifyExtension maps an upper-cased extension to its filter class.
func classifyExtension(extension string, isDirectory bool) TypeFilter {
	if isDirectory == true {
		return FilterDir
	}

	switch extension {
	case "MP3":
		return FilterMp3
	case "WAV":
		return FilterWav
	case "SYS":
		return FilterSys
	}

	return FilterOther
}

// TypeTagName returns the display name of a filter class.
func TypeTagName(tf TypeFilter) string {
	switch tf {
	case FilterMp3:
		return "MP3"
	case FilterWav:
		return "WAV"
	case FilterSys:
		return "SYS"
	case FilterDir:
		return "DIR"
	}

	return "OTHER"
}

// DirectoryEntry is the canonical, format-neutral entry the iterators emit.
type DirectoryEntry struct {
	// Name is the user-visible name: the reconstructed long filename when
	// continuation records precede the 8.3 entry, the trimmed short name
	// otherwise, or the decoded identifier for ISO records.
	Name string

	// ShortName is the canonical 8.3 matching target ("NAME.EXT" form).
	// Equal to Name on ISO volumes.
	ShortName string

	// Extension is the upper-cased extension used by type filtering.
	Extension string

	Kind       EntryKind
	Attributes FileAttributes

	// FirstCluster is the chain head on FAT volumes and the extent's
	// logical-block number on ISO volumes.
	FirstCluster uint32

	// Size is the byte length (zero for FAT directories; the extent data
	// length for ISO directories).
	Size uint32

	// TypeTag is the coarse extension classification.
	TypeTag TypeFilter
}

// Matches indicates whether the entry passes the navigation filter. Hidden
// entries and volume labels never match.
func (de DirectoryEntry) Matches(filter TypeFilter) bool {
	if de.Kind == KindVolumeLabel || de.Attributes.IsHidden() == true {
		return false
	}

	return de.TypeTag&filter > 0
}

// IsDotEntry indicates the "." and ".." navigation entries.
func (de DirectoryEntry) IsDotEntry() bool {
	return de.Name == "." || de.Name == ".."
}

// String returns a descriptive string.
func (de DirectoryEntry) String() string {
	return fmt.Sprintf("DirectoryEntry<NAME=[%s] KIND=[%s] CLUSTER=(%d) SIZE=(%d)>",
		de.Name, de.Kind, de.FirstCluster, de.Size)
}

// Dump prints the entry's information.
func (de DirectoryEntry) Dump() {
	fmt.Printf("Directory Entry\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	fmt.Printf("Name: [%s]\n", de.Name)
	fmt.Printf("ShortName: [%s]\n", de.ShortName)
	fmt.Printf("Extension: [%s]\n", de.Extension)
	fmt.Printf("Kind: [%s]\n", de.Kind)
	fmt.Printf("FirstCluster: (%d)\n", de.FirstCluster)
	fmt.Printf("Size: (%d)\n", de.Size)
	fmt.Printf("TypeTag: [%s]\n", TypeTagName(de.TypeTag))
	fmt.Printf("\n")

	fmt.Printf("Attributes:\n")
	de.Attributes.DumpBareIndented("  ")
	fmt.Printf("\n")
}

// displayPathName returns the name joined with its extension the way listing
// output shows it.
func (de DirectoryEntry) displayPathName() string {
	if de.Kind == KindDirectory || de.Extension == "" {
		return de.Name
	}

	if strings.ContainsRune(de.Name, '.') == true {
		// Long names carry their extension inline already.
		return de.Name
	}

	return de.Name + "." + de.Extension
}
