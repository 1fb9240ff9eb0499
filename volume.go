// This file implements the mount flow: partition selection at LBA 0, the
// DBR fallback for removable media written without a partition table, and
// ISO descriptor probing.

package fatiso

import (
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// Filesystem is the per-mount context. Every operation threads through it;
// there is no package-level mutable state. Operations are synchronous and
// the context is not safe for concurrent use: callers that multiplex must
// serialize externally.
type Filesystem struct {
	dev       SectorDevice
	geometry  Geometry
	partition int

	fat *fatReader

	// currentDir and currentPath form the single logical current-directory
	// cursor shared by Chdir, EnumerateFolder and the navigator.
	currentDir  dirLocation
	currentPath string

	// enumCursor is the hidden cursor advanced by EnumerateFolder.
	enumCursor directoryCursor

	openFiles int
}

// Mount reads the partition table, derives the volume geometry and returns
// a ready context. The partition index selects one of the four MBR slots;
// drive letter 'C'+partition addresses it in paths.
//
// Media formatted without an MBR but with a boot sector at LBA 0 mounts
// through the DBR fallback: the volume starts at sector zero and is treated
// as FAT16-class until the cluster count says otherwise.
func Mount(dev SectorDevice, partition int) (fs *Filesystem, err error) {
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

	if partition < 0 || partition > 3 {
		log.Panicf("partition index out of range: (%d)", partition)
	}

	sector0 := make([]byte, SectorSize)

	err = dev.ReadSector(sector0, 0)
	log.PanicIf(err)

	geometry, err := probeVolume(dev, sector0, partition)
	log.PanicIf(err)

	fs = &Filesystem{
		dev:       dev,
		geometry:  geometry,
		partition: partition,
	}

	if geometry.Type.IsFat() == true {
		fs.fat = newFatReader(dev, geometry)
	}

	fs.currentDir = fs.rootLocation()
	fs.currentPath = fs.rootPath()

	return fs, nil
}

// probeVolume classifies LBA 0 and derives the geometry: a signed MBR with
// an allocated entry wins, then the DBR fallback, then the ISO descriptor
// set.
func probeVolume(dev SectorDevice, sector0 []byte, partition int) (geometry Geometry, err error) {
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

	if hasBootSignature(sector0) == true {
		pe, err := parsePartitionEntry(sector0, partition)
		log.PanicIf(err)

		if pe.IsAllocated() == true && pe.RelativeSector != 0 {
			dbr := make([]byte, SectorSize)

			err = dev.ReadSector(dbr, pe.RelativeSector)
			log.PanicIf(err)

			bpb, err := parseBiosParameterBlock(dbr)
			log.PanicIf(err)

			geometry, err = deriveFatGeometry(bpb, pe.RelativeSector, pe.TotalSectors)
			log.PanicIf(err)

			return geometry, nil
		}

		// No usable partition entry: LBA 0 is itself a DBR on
		// partitionless removable media.
		bpb, err := parseBiosParameterBlock(sector0)
		if err == nil {
			geometry, err = deriveFatGeometry(bpb, 0, 0)
			log.PanicIf(err)

			return geometry, nil
		}
	}

	// Not FAT-shaped at all: probe for an ISO9660 descriptor set.
	volume, err := parseIsoVolumeDescriptors(dev, 0)
	log.PanicIf(err)

	geometry = Geometry{
		BytesPerSector:   SectorSize,
		LogicalBlockSize: volume.logicalBlockSize,
		RootExtentStart:  volume.rootExtentStart,
		RootExtentSize:   volume.rootExtentSize,
		TotalSectors:     volume.volumeSpaceSize * (volume.logicalBlockSize / SectorSize),
		VolumeLabel:      volume.volumeId,
	}

	if volume.joliet == true {
		geometry.Type = TypeJoliet
	} else {
		geometry.Type = TypeIso9660
	}

	if geometry.LogicalBlockSize == 0 || geometry.LogicalBlockSize%SectorSize != 0 {
		log.Panicf("ISO logical block size not usable: (%d)", geometry.LogicalBlockSize)
	}

	return geometry, nil
}

// Geometry returns the immutable volume layout.
func (fs *Filesystem) Geometry() Geometry {
	return fs.geometry
}

// DriveLetter returns the drive letter addressing this mount in paths.
func (fs *Filesystem) DriveLetter() byte {
	return byte('C' + fs.partition)
}

// CurrentPath returns the absolute path of the current directory, in
// "C:\..." form.
func (fs *Filesystem) CurrentPath() string {
	return fs.currentPath
}

// rootPath returns the drive root in path form.
func (fs *Filesystem) rootPath() string {
	return string(fs.DriveLetter()) + ":\\"
}

// rootLocation returns the identity of the root directory for the mounted
// family.
func (fs *Filesystem) rootLocation() dirLocation {
	geometry := fs.geometry

	if geometry.Type.IsIso() == true {
		return dirLocation{
			isoExtentStart: geometry.RootExtentStart,
			isoExtentSize:  geometry.RootExtentSize,
		}
	}

	if geometry.Type == TypeFat32 {
		return dirLocation{
			fatCluster: geometry.RootCluster,
		}
	}

	return dirLocation{
		fatRoot: true,
	}
}

// newDirectoryCursor opens an iterator over the given directory.
func (fs *Filesystem) newDirectoryCursor(loc dirLocation) (cursor directoryCursor, err error) {
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

	if fs.geometry.Type.IsIso() == true {
		cursor, err = newIsoDirCursor(fs, loc)
		log.PanicIf(err)
	} else {
		cursor, err = newFatDirCursor(fs, loc)
		log.PanicIf(err)
	}

	return cursor, nil
}

// childLocation derives the directory identity addressed by a directory
// entry.
func (fs *Filesystem) childLocation(entry DirectoryEntry) (loc dirLocation, err error) {
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

	if entry.Kind != KindDirectory {
		return loc, ErrNotADirectory
	}

	if fs.geometry.Type.IsIso() == true {
		return dirLocation{
			isoExtentStart: entry.FirstCluster,
			isoExtentSize:  entry.Size,
		}, nil
	}

	if entry.FirstCluster == 0 {
		// A subdirectory's ".." entry holds cluster zero when the parent is
		// the root directory.
		return fs.rootLocation(), nil
	}

	return dirLocation{
		fatCluster: entry.FirstCluster,
	}, nil
}

// VolumeLabel returns the volume name: the label directory entry when the
// root carries one, the DBR/descriptor label otherwise.
func (fs *Filesystem) VolumeLabel() (label string, err error) {
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

	if fs.geometry.Type.IsIso() == true {
		return fs.geometry.VolumeLabel, nil
	}

	cursor, err := fs.newDirectoryCursor(fs.rootLocation())
	log.PanicIf(err)

	cursor.includeVolumeLabels(true)

	for {
		entry, err := cursor.nextEntry()
		if err == ErrEndOfDirectory {
			break
		}

		log.PanicIf(err)

		if entry.Kind == KindVolumeLabel {
			return entry.ShortName, nil
		}
	}

	return fs.geometry.VolumeLabel, nil
}

// VolumeInquiry reports the volume's total and free size in sectors. Free
// space is computed by scanning the FAT for unallocated clusters; ISO media
// is always full.
func (fs *Filesystem) VolumeInquiry() (totalSectors, freeSectors uint32, err error) {
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

	geometry := fs.geometry

	if geometry.Type.IsIso() == true {
		return geometry.TotalSectors, 0, nil
	}

	freeClusters := uint32(0)

	for cluster := uint32(2); cluster < geometry.CountOfClusters+2; cluster++ {
		value, err := fs.fatEntryValue(cluster)
		log.PanicIf(err)

		if value == 0 {
			freeClusters++
		}
	}

	return geometry.TotalSectors, freeClusters * geometry.SectorsPerCluster, nil
}

// fatEntryValue reads one raw FAT entry (unclassified).
func (fs *Filesystem) fatEntryValue(cluster uint32) (value uint32, err error) {
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

	fr := fs.fat

	switch fs.geometry.Type {
	case TypeFat12:
		offset := cluster + cluster/2

		b0, err := fr.fatByte(offset)
		log.PanicIf(err)

		b1, err := fr.fatByte(offset + 1)
		log.PanicIf(err)

		value = uint32(b0) | uint32(b1)<<8

		if cluster&1 == 0 {
			value &= 0x0fff
		} else {
			value >>= 4
		}

	case TypeFat16:
		offset := cluster * 2

		b0, err := fr.fatByte(offset)
		log.PanicIf(err)

		b1, err := fr.fatByte(offset + 1)
		log.PanicIf(err)

		value = uint32(b0) | uint32(b1)<<8

	case TypeFat32:
		offset := cluster * 4

		for i := uint32(0); i < 4; i++ {
			b, err := fr.fatByte(offset + i)
			log.PanicIf(err)

			value |= uint32(b) << (8 * i)
		}

		value &= fat32EntryMask

	default:
		log.Panicf("FAT entry read on non-FAT volume: [%s]", fs.geometry.Type)
	}

	return value, nil
}

// String returns a descriptive string.
func (fs *Filesystem) String() string {
	return fmt.Sprintf("Filesystem<DRIVE=[%c] TYPE=[%s] TOTAL-SECTORS=(%d)>",
		fs.DriveLetter(), fs.geometry.Type, fs.geometry.TotalSectors)
}
