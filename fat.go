// This file manages the file allocation table: single-step chain lookups
// for all three FAT widths, and the bounded fragment caches that let linear
// reads avoid re-walking the FAT on every sector.

package fatiso

import (
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
)

const (
	fat12EndOfChain = 0x0ff8
	fat12BadCluster = 0x0ff7
	fat16EndOfChain = 0xfff8
	fat16BadCluster = 0xfff7
	fat32EndOfChain = 0x0ffffff8
	fat32BadCluster = 0x0ffffff7

	fat32EntryMask = 0x0fffffff
)

// chainResult classifies one FAT lookup.
type chainResult int

const (
	chainNext chainResult = iota
	chainEnd
	chainBad
)

// String returns a descriptive string.
func (cr chainResult) String() string {
	switch cr {
	case chainNext:
		return "Next"
	case chainEnd:
		return "EndOfChain"
	case chainBad:
		return "Bad"
	}

	return "Unknown"
}

// firstSectorOfCluster maps a data cluster to its first device sector.
// Clusters zero and one do not exist on disk; data clusters start at two.
func (geometry Geometry) firstSectorOfCluster(cluster uint32) uint32 {
	return (cluster-2)*geometry.SectorsPerCluster + geometry.FirstDataSector
}

// fatReader performs single-entry FAT lookups through a one-sector cache so
// sequential chain walks touch each FAT sector once.
type fatReader struct {
	geometry Geometry
	sr       *sectorReader
}

func newFatReader(dev SectorDevice, geometry Geometry) *fatReader {
	return &fatReader{
		geometry: geometry,
		sr:       newSectorReader(dev),
	}
}

// fatByte reads one byte of the active FAT by byte offset.
func (fr *fatReader) fatByte(offset uint32) (b byte, err error) {
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

	lba := fr.geometry.FirstFatSector + offset/SectorSize

	err = fr.sr.seekTo(lba, offset%SectorSize)
	log.PanicIf(err)

	b, err = fr.sr.readByte()
	log.PanicIf(err)

	return b, nil
}

// nextCluster follows the FAT from the given cluster.
//
// FAT12 entries are packed three bytes per two entries: the entry starts at
// byte (cluster*3/2); even clusters take the low twelve bits, odd clusters
// the high twelve. FAT16 entries are plain LE16, FAT32 entries LE32 with the
// top four bits reserved.
func (fr *fatReader) nextCluster(cluster uint32) (next uint32, result chainResult, err error) {
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

	if cluster < 2 {
		log.Panicf("cluster can not be less than (2): (%d)", cluster)
	}

	switch fr.geometry.Type {
	case TypeFat12:
		offset := cluster + cluster/2

		b0, err := fr.fatByte(offset)
		log.PanicIf(err)

		b1, err := fr.fatByte(offset + 1)
		log.PanicIf(err)

		value := uint32(b0) | uint32(b1)<<8

		if cluster&1 == 0 {
			value &= 0x0fff
		} else {
			value >>= 4
		}

		if value >= fat12EndOfChain {
			return 0, chainEnd, nil
		} else if value == fat12BadCluster {
			return 0, chainBad, nil
		}

		return value, chainNext, nil

	case TypeFat16:
		offset := cluster * 2

		b0, err := fr.fatByte(offset)
		log.PanicIf(err)

		b1, err := fr.fatByte(offset + 1)
		log.PanicIf(err)

		value := uint32(b0) | uint32(b1)<<8

		if value >= fat16EndOfChain {
			return 0, chainEnd, nil
		} else if value == fat16BadCluster {
			return 0, chainBad, nil
		}

		return value, chainNext, nil

	case TypeFat32:
		offset := cluster * 4

		value := uint32(0)
		for i := uint32(0); i < 4; i++ {
			b, err := fr.fatByte(offset + i)
			log.PanicIf(err)

			value |= uint32(b) << (8 * i)
		}

		value &= fat32EntryMask

		if value >= fat32EndOfChain {
			return 0, chainEnd, nil
		} else if value == fat32BadCluster {
			return 0, chainBad, nil
		}

		return value, chainNext, nil
	}

	log.Panicf("FAT lookup on non-FAT volume: [%s]", fr.geometry.Type)
	return 0, chainBad, nil
}

// fragment is one contiguous cluster run in a chain.
type fragment struct {
	start  uint32
	length uint32
}

// String returns a descriptive string.
func (f fragment) String() string {
	return fmt.Sprintf("Fragment<START=(%d) LENGTH=(%d)>", f.start, f.length)
}

// fragmentTable caches a prefix of one object's cluster chain as coalesced
// runs. Successive runs are never adjacent in cluster space: adjacency is
// absorbed into the preceding run's length. When the table fills before the
// chain ends, partial is set and traversal past the cached prefix falls back
// to single-step FAT lookups.
type fragmentTable struct {
	runs  []fragment
	count int

	// cachedClusters is the total cluster count covered by the runs.
	cachedClusters uint32

	// lastCached is the final cluster of the cached prefix (the FAT fallback
	// resumes from here).
	lastCached uint32

	partial bool
}

func newFragmentTable(capacity int) *fragmentTable {
	return &fragmentTable{
		runs: make([]fragment, capacity),
	}
}

// reset empties the table for reuse.
func (ft *fragmentTable) reset() {
	ft.count = 0
	ft.cachedClusters = 0
	ft.lastCached = 0
	ft.partial = false
}

// append records one more chain cluster, coalescing adjacency. It returns
// false when the table is full (the cluster was not recorded).
func (ft *fragmentTable) append(cluster uint32) bool {
	if ft.count > 0 {
		last := &ft.runs[ft.count-1]
		if last.start+last.length == cluster {
			last.length++
			ft.cachedClusters++
			ft.lastCached = cluster
			return true
		}
	}

	if ft.count >= len(ft.runs) {
		return false
	}

	ft.runs[ft.count] = fragment{start: cluster, length: 1}
	ft.count++
	ft.cachedClusters++
	ft.lastCached = cluster

	return true
}

// clusterAt resolves a chain ordinal to a cluster number within the cached
// prefix. Ordinal zero is the first cluster of the chain.
func (ft *fragmentTable) clusterAt(ordinal uint32) (cluster uint32, found bool) {
	remaining := ordinal

	for i := 0; i < ft.count; i++ {
		run := ft.runs[i]

		if remaining < run.length {
			return run.start + remaining, true
		}

		remaining -= run.length
	}

	return 0, false
}

// Dump prints the cached runs.
func (ft *fragmentTable) Dump() {
	fmt.Printf("Fragment Table\n")
	fmt.Printf("==============\n")
	fmt.Printf("\n")

	fmt.Printf("CachedClusters: (%d)\n", ft.cachedClusters)
	fmt.Printf("Partial: [%v]\n", ft.partial)
	fmt.Printf("\n")

	for i := 0; i < ft.count; i++ {
		fmt.Printf("# %d: %s\n", i, ft.runs[i])
	}

	fmt.Printf("\n")
}

// buildChain walks the FAT from the given head cluster into the table. When
// the table fills first, the partial flag is set and ErrNoFragmentBudget is
// returned as a diagnostic; the cached prefix remains valid.
func (fr *fatReader) buildChain(first uint32, ft *fragmentTable) (err error) {
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

	ft.reset()

	current := first
	for {
		if ft.append(current) != true {
			ft.partial = true
			return ErrNoFragmentBudget
		}

		next, result, err := fr.nextCluster(current)
		log.PanicIf(err)

		if result == chainEnd {
			break
		} else if result == chainBad {
			log.Panicf("bad cluster in chain after (%d)", current)
		}

		current = next
	}

	return nil
}

// clusterForOrdinal resolves a chain ordinal through the cache, falling back
// to single-step FAT lookups past a partial cache.
func (fr *fatReader) clusterForOrdinal(ft *fragmentTable, ordinal uint32) (cluster uint32, err error) {
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

	if cluster, found := ft.clusterAt(ordinal); found == true {
		return cluster, nil
	}

	if ft.partial != true {
		// The whole chain is cached, so the ordinal is simply out of range.
		return 0, ErrEndOfFile
	}

	current := ft.lastCached
	for walked := ft.cachedClusters - 1; walked < ordinal; walked++ {
		next, result, err := fr.nextCluster(current)
		log.PanicIf(err)

		if result != chainNext {
			return 0, ErrEndOfFile
		}

		current = next
	}

	return current, nil
}
