// This file manages the BIOS parameter block and the volume geometry derived
// from it.

package fatiso

import (
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// FilesystemType identifies the on-disk family of a mounted volume.
type FilesystemType int

const (
	TypeUnknown FilesystemType = iota
	TypeFat12
	TypeFat16
	TypeFat32
	TypeIso9660
	TypeJoliet
)

// IsFat indicates whether the volume belongs to the FAT family.
func (ft FilesystemType) IsFat() bool {
	return ft == TypeFat12 || ft == TypeFat16 || ft == TypeFat32
}

// IsIso indicates whether the volume is ISO9660 (plain or Joliet).
func (ft FilesystemType) IsIso() bool {
	return ft == TypeIso9660 || ft == TypeJoliet
}

// String returns a descriptive string.
func (ft FilesystemType) String() string {
	switch ft {
	case TypeFat12:
		return "FAT12"
	case TypeFat16:
		return "FAT16"
	case TypeFat32:
		return "FAT32"
	case TypeIso9660:
		return "ISO9660"
	case TypeJoliet:
		return "Joliet"
	}

	return "Unknown"
}

// BiosParameterBlock is the 512-byte DBR image, including the FAT32 extended
// fields. Offsets follow the Microsoft FAT specification; all multibyte
// fields are little-endian.
type BiosParameterBlock struct {
	// JumpBoot: the jump instruction at offset 0. Not interpreted.
	JumpBoot [3]byte

	// OemName: the formatting-tool identifier at offset 3. Not interpreted.
	OemName [8]byte

	// BytesPerSector: offset 0Bh. 512 is the only value this engine mounts.
	BytesPerSector uint16

	// SectorsPerCluster: offset 0Dh. Must be a power of two.
	SectorsPerCluster uint8

	// ReservedSectors: offset 0Eh. Sector count before the first FAT,
	// relative to the DBR.
	ReservedSectors uint16

	// NumFats: offset 10h. Usually 2.
	NumFats uint8

	// RootEntries: offset 11h. FAT12/16 fixed root-directory entry count;
	// zero on FAT32.
	RootEntries uint16

	// TotalSectors16: offset 13h. Zero when the count does not fit, in which
	// case TotalSectors32 is authoritative.
	TotalSectors16 uint16

	// MediaDescriptor: offset 15h. Not interpreted.
	MediaDescriptor uint8

	// SectorsPerFat16: offset 16h. Zero on FAT32.
	SectorsPerFat16 uint16

	// SectorsPerTrack, HeadCount, HiddenSectors: legacy CHS fields. Not
	// interpreted.
	SectorsPerTrack uint16
	HeadCount       uint16
	HiddenSectors   uint32

	// TotalSectors32: offset 20h.
	TotalSectors32 uint32

	// SectorsPerFat32: offset 24h. FAT32 only.
	SectorsPerFat32 uint32

	// ExtFlags: offset 28h. FAT mirroring control. Not interpreted by the
	// read-only core.
	ExtFlags uint16

	// FsVersion: offset 2Ah.
	FsVersion uint16

	// RootCluster: offset 2Ch. FAT32 only: first cluster of the root
	// directory chain.
	RootCluster uint32

	// FsInfoSector, BackupBootSector: FAT32 housekeeping sectors. Not
	// interpreted by the read-only core.
	FsInfoSector     uint16
	BackupBootSector uint16

	Reserved [12]byte

	// DriveNumber, Reserved1, BootSignatureExt, VolumeSerial, VolumeLabel,
	// FilesystemTypeLabel: the extended boot record. The type label is
	// informational only and never trusted for type detection.
	DriveNumber         uint8
	Reserved1           uint8
	BootSignatureExt    uint8
	VolumeSerial        uint32
	VolumeLabel         [11]byte
	FilesystemTypeLabel [8]byte

	BootCode [420]byte

	// BootSignature: AA55h at offset 1FEh.
	BootSignature uint16
}

// TotalSectors returns whichever total-sector field is authoritative.
func (bpb BiosParameterBlock) TotalSectors() uint32 {
	if bpb.TotalSectors16 != 0 {
		return uint32(bpb.TotalSectors16)
	}

	return bpb.TotalSectors32
}

// SectorsPerFat returns whichever FAT-size field is authoritative.
func (bpb BiosParameterBlock) SectorsPerFat() uint32 {
	if bpb.SectorsPerFat16 != 0 {
		return uint32(bpb.SectorsPerFat16)
	}

	return bpb.SectorsPerFat32
}

// Dump prints the BPB parameters.
func (bpb BiosParameterBlock) Dump() {
	fmt.Printf("BIOS Parameter Block\n")
	fmt.Printf("====================\n")
	fmt.Printf("\n")

	fmt.Printf("BytesPerSector: (%d)\n", bpb.BytesPerSector)
	fmt.Printf("SectorsPerCluster: (%d)\n", bpb.SectorsPerCluster)
	fmt.Printf("ReservedSectors: (%d)\n", bpb.ReservedSectors)
	fmt.Printf("NumFats: (%d)\n", bpb.NumFats)
	fmt.Printf("RootEntries: (%d)\n", bpb.RootEntries)
	fmt.Printf("TotalSectors: (%d)\n", bpb.TotalSectors())
	fmt.Printf("SectorsPerFat: (%d)\n", bpb.SectorsPerFat())
	fmt.Printf("RootCluster: (%d)\n", bpb.RootCluster)
	fmt.Printf("VolumeSerial: (0x%08x)\n", bpb.VolumeSerial)
	fmt.Printf("\n")
}

// String returns a description of the BPB.
func (bpb BiosParameterBlock) String() string {
	return fmt.Sprintf("BiosParameterBlock<BPS=(%d) SPC=(%d) TOTAL=(%d) SN=(0x%08x)>",
		bpb.BytesPerSector, bpb.SectorsPerCluster, bpb.TotalSectors(), bpb.VolumeSerial)
}

// parseBiosParameterBlock unpacks and sanity-checks a raw DBR sector.
func parseBiosParameterBlock(sector []byte) (bpb BiosParameterBlock, err error) {
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

	err = restruct.Unpack(sector, defaultEncoding, &bpb)
	log.PanicIf(err)

	if bpb.BootSignature != requiredBootSignature {
		log.Panicf("boot-signature not correct: %x", bpb.BootSignature)
	} else if bpb.BytesPerSector != SectorSize {
		log.Panicf("bytes-per-sector not supported: (%d)", bpb.BytesPerSector)
	} else if bpb.SectorsPerCluster == 0 || bpb.SectorsPerCluster&(bpb.SectorsPerCluster-1) != 0 {
		log.Panicf("sectors-per-cluster not a power of two: (%d)", bpb.SectorsPerCluster)
	} else if bpb.ReservedSectors == 0 {
		log.Panicf("reserved-sector count can not be zero")
	} else if bpb.NumFats == 0 {
		log.Panicf("FAT count can not be zero")
	} else if bpb.TotalSectors() == 0 {
		log.Panicf("total-sector count can not be zero")
	} else if bpb.SectorsPerFat() == 0 {
		log.Panicf("sectors-per-FAT can not be zero")
	}

	return bpb, nil
}

// Geometry is the per-mount description of the volume layout. It is derived
// once and never mutated afterwards.
type Geometry struct {
	Type FilesystemType

	BytesPerSector    uint32
	SectorsPerCluster uint32
	ReservedSectors   uint32
	FatCount          uint32
	SectorsPerFat     uint32
	RootDirEntries    uint32
	TotalSectors      uint32

	// RelativeSector is the LBA of the DBR (zero for partitionless media and
	// for ISO volumes).
	RelativeSector uint32

	// FirstFatSector, FirstRootSector, FirstDataSector, RootDirSectors and
	// CountOfClusters are the usual FAT derivations, absolute to the device.
	FirstFatSector  uint32
	FirstRootSector uint32
	FirstDataSector uint32
	RootDirSectors  uint32
	CountOfClusters uint32

	// RootCluster is the FAT32 root-directory chain head (zero otherwise).
	RootCluster uint32

	// LogicalBlockSize, RootExtentStart and RootExtentSize describe an ISO
	// volume; the extent start is a logical-block number.
	LogicalBlockSize uint32
	RootExtentStart  uint32
	RootExtentSize   uint32

	// VolumeLabel carries the DBR label or the ISO volume identifier.
	VolumeLabel string
}

// BytesPerCluster returns the cluster size in bytes.
func (geometry Geometry) BytesPerCluster() uint32 {
	return geometry.SectorsPerCluster * geometry.BytesPerSector
}

// SectorsPerBlock returns how many device sectors one ISO logical block
// spans.
func (geometry Geometry) SectorsPerBlock() uint32 {
	return geometry.LogicalBlockSize / SectorSize
}

// Dump prints the geometry parameters.
func (geometry Geometry) Dump() {
	fmt.Printf("Volume Geometry\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	fmt.Printf("Type: [%s]\n", geometry.Type)
	fmt.Printf("BytesPerSector: (%d)\n", geometry.BytesPerSector)
	fmt.Printf("SectorsPerCluster: (%d)\n", geometry.SectorsPerCluster)
	fmt.Printf("ReservedSectors: (%d)\n", geometry.ReservedSectors)
	fmt.Printf("FatCount: (%d)\n", geometry.FatCount)
	fmt.Printf("SectorsPerFat: (%d)\n", geometry.SectorsPerFat)
	fmt.Printf("RootDirEntries: (%d)\n", geometry.RootDirEntries)
	fmt.Printf("TotalSectors: (%d)\n", geometry.TotalSectors)
	fmt.Printf("RelativeSector: (%d)\n", geometry.RelativeSector)
	fmt.Printf("FirstFatSector: (%d)\n", geometry.FirstFatSector)
	fmt.Printf("FirstRootSector: (%d)\n", geometry.FirstRootSector)
	fmt.Printf("FirstDataSector: (%d)\n", geometry.FirstDataSector)
	fmt.Printf("CountOfClusters: (%d)\n", geometry.CountOfClusters)

	if geometry.Type.IsIso() == true {
		fmt.Printf("LogicalBlockSize: (%d)\n", geometry.LogicalBlockSize)
		fmt.Printf("RootExtentStart: (%d)\n", geometry.RootExtentStart)
		fmt.Printf("RootExtentSize: (%d)\n", geometry.RootExtentSize)
	}

	fmt.Printf("\n")
}

// String returns a description of the geometry.
func (geometry Geometry) String() string {
	return fmt.Sprintf("Geometry<TYPE=[%s] TOTAL-SECTORS=(%d) SPC=(%d)>",
		geometry.Type, geometry.TotalSectors, geometry.SectorsPerCluster)
}

// deriveFatGeometry computes the volume layout from a parsed BPB. The
// FAT12/FAT16/FAT32 determination follows the count-of-clusters rule from
// the FAT specification; the partition system-identifier is advisory only.
func deriveFatGeometry(bpb BiosParameterBlock, relativeSector, partitionTotal uint32) (geometry Geometry, err error) {
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

	totalSectors := bpb.TotalSectors()
	if partitionTotal != 0 && totalSectors > partitionTotal {
		log.Panicf("BPB total-sectors exceeds partition: (%d) > (%d)", totalSectors, partitionTotal)
	}

	geometry = Geometry{
		BytesPerSector:    uint32(bpb.BytesPerSector),
		SectorsPerCluster: uint32(bpb.SectorsPerCluster),
		ReservedSectors:   uint32(bpb.ReservedSectors),
		FatCount:          uint32(bpb.NumFats),
		SectorsPerFat:     bpb.SectorsPerFat(),
		RootDirEntries:    uint32(bpb.RootEntries),
		TotalSectors:      totalSectors,
		RelativeSector:    relativeSector,
		RootCluster:       bpb.RootCluster,
		VolumeLabel:       trimPadding(bpb.VolumeLabel[:]),
	}

	geometry.RootDirSectors = (geometry.RootDirEntries*directoryEntrySize + geometry.BytesPerSector - 1) / geometry.BytesPerSector

	geometry.FirstFatSector = relativeSector + geometry.ReservedSectors
	geometry.FirstRootSector = geometry.FirstFatSector + geometry.FatCount*geometry.SectorsPerFat
	geometry.FirstDataSector = geometry.FirstRootSector + geometry.RootDirSectors

	dataSectors := geometry.TotalSectors - geometry.ReservedSectors - geometry.FatCount*geometry.SectorsPerFat - geometry.RootDirSectors
	geometry.CountOfClusters = dataSectors / geometry.SectorsPerCluster

	// The thresholds are exact and deliberate; see the FAT specification's
	// FAT-type determination section.
	if geometry.CountOfClusters < 4085 {
		geometry.Type = TypeFat12
	} else if geometry.CountOfClusters < 65525 {
		geometry.Type = TypeFat16
	} else {
		geometry.Type = TypeFat32
	}

	if geometry.Type == TypeFat32 {
		if geometry.RootCluster < 2 {
			log.Panicf("FAT32 root-cluster not valid: (%d)", geometry.RootCluster)
		}

		// FAT32 has no fixed root region; the root-directory sector count is
		// zero and the first root sector follows the chain.
		geometry.FirstRootSector = 0
	}

	return geometry, nil
}

// trimPadding strips the trailing 20h padding from fixed-width on-disk name
// fields.
func trimPadding(raw []byte) string {
	end := len(raw)
	for end > 0 && (raw[end-1] == 0x20 || raw[end-1] == 0x00) {
		end--
	}

	return string(raw[:end])
}
