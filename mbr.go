// This file manages the partition-selection structures at LBA 0.

package fatiso

import (
	"fmt"
	"reflect"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

var (
	defaultEncoding = binary.LittleEndian
)

const (
	mbrPartitionTableOffset = 0x1be
	mbrPartitionEntrySize   = 16
	bootSignatureOffset     = 510

	// requiredBootSignature terminates both the MBR and every DBR.
	requiredBootSignature = uint16(0xaa55)
)

const (
	bootIndicatorInactive = 0x00
	bootIndicatorActive   = 0x80
)

// Well-known partition system-identifiers this engine recognizes.
const (
	SystemIdEmpty    = 0x00
	SystemIdFat12    = 0x01
	SystemIdFat16Sm  = 0x04
	SystemIdFat16    = 0x06
	SystemIdFat32    = 0x0b
	SystemIdFat32Lba = 0x0c
	SystemIdFat16Lba = 0x0e
)

// PartitionEntry is one of the four 16-byte records in the MBR partition
// table.
type PartitionEntry struct {
	// BootIndicator: 80h for the active partition, 00h for inactive. Any
	// other value invalidates the entry.
	BootIndicator uint8

	// StartChs: legacy cylinder-head-sector address of the first sector.
	// LBA-era media leaves this meaningless; it is never interpreted.
	StartChs [3]byte

	// SystemId: the partition-type identifier (06h FAT16, 0Bh/0Ch FAT32,
	// and so on).
	SystemId uint8

	// EndChs: legacy CHS address of the last sector. Never interpreted.
	EndChs [3]byte

	// RelativeSector: LBA of the partition's first sector (the DBR).
	RelativeSector uint32

	// TotalSectors: sector count of the partition.
	TotalSectors uint32
}

// IsAllocated indicates the entry describes a real partition.
func (pe PartitionEntry) IsAllocated() bool {
	if pe.BootIndicator != bootIndicatorInactive && pe.BootIndicator != bootIndicatorActive {
		return false
	}

	return pe.SystemId != SystemIdEmpty && pe.TotalSectors != 0
}

// IsActive indicates the boot-indicator is set.
func (pe PartitionEntry) IsActive() bool {
	return pe.BootIndicator == bootIndicatorActive
}

// String returns a descriptive string.
func (pe PartitionEntry) String() string {
	return fmt.Sprintf("PartitionEntry<SYSTEM-ID=(0x%02x) ACTIVE=[%v] RELATIVE-SECTOR=(%d) TOTAL-SECTORS=(%d)>",
		pe.SystemId, pe.IsActive(), pe.RelativeSector, pe.TotalSectors)
}

// Dump prints the partition entry parameters.
func (pe PartitionEntry) Dump() {
	fmt.Printf("Partition Entry\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	fmt.Printf("BootIndicator: (0x%02x)\n", pe.BootIndicator)
	fmt.Printf("SystemId: (0x%02x)\n", pe.SystemId)
	fmt.Printf("RelativeSector: (%d)\n", pe.RelativeSector)
	fmt.Printf("TotalSectors: (%d)\n", pe.TotalSectors)
	fmt.Printf("\n")
}

// parsePartitionEntry unpacks the i'th entry of the partition table from a
// raw LBA-0 sector.
func parsePartitionEntry(sector []byte, i int) (pe PartitionEntry, err error) {
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

	if i < 0 || i > 3 {
		log.Panicf("partition index out of range: (%d)", i)
	}

	offset := mbrPartitionTableOffset + i*mbrPartitionEntrySize
	raw := sector[offset : offset+mbrPartitionEntrySize]

	err = restruct.Unpack(raw, defaultEncoding, &pe)
	log.PanicIf(err)

	return pe, nil
}

// hasBootSignature checks the 55h AAh terminator shared by the MBR and the
// DBR.
func hasBootSignature(sector []byte) bool {
	return getUint16Le(sector, bootSignatureOffset) == requiredBootSignature
}
