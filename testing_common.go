// Shared test fixtures: a RAM-backed sector device and small image
// synthesizers for the three FAT widths and for ISO9660/Joliet media. The
// builders write raw bytes independently of the parsing code so the suites
// exercise the real on-disk layouts.

package fatiso

import (
	"unicode/utf16"
)

// ramDevice is a sparse in-memory sector device. Unwritten sectors read as
// zeroes.
type ramDevice struct {
	sectors map[uint32][]byte
}

func newRamDevice() *ramDevice {
	return &ramDevice{
		sectors: make(map[uint32][]byte),
	}
}

// ReadSector implements SectorDevice.
func (rd *ramDevice) ReadSector(buf []byte, lba uint32) (err error) {
	sector, found := rd.sectors[lba]
	if found != true {
		for i := range buf {
			buf[i] = 0
		}

		return nil
	}

	copy(buf, sector)

	return nil
}

// WriteSector implements SectorWriter.
func (rd *ramDevice) WriteSector(data []byte, lba uint32) (err error) {
	sector := make([]byte, SectorSize)
	copy(sector, data)

	rd.sectors[lba] = sector

	return nil
}

// patch writes raw bytes at an absolute device byte offset, crossing sector
// boundaries as needed.
func (rd *ramDevice) patch(offset int64, data []byte) {
	for len(data) > 0 {
		lba := uint32(offset / SectorSize)
		inSector := int(offset % SectorSize)

		sector, found := rd.sectors[lba]
		if found != true {
			sector = make([]byte, SectorSize)
			rd.sectors[lba] = sector
		}

		n := copy(sector[inSector:], data)

		data = data[n:]
		offset += int64(n)
	}
}

func putU16(buf []byte, offset int, value uint16) {
	buf[offset] = byte(value)
	buf[offset+1] = byte(value >> 8)
}

func putU32(buf []byte, offset int, value uint32) {
	buf[offset] = byte(value)
	buf[offset+1] = byte(value >> 8)
	buf[offset+2] = byte(value >> 16)
	buf[offset+3] = byte(value >> 24)
}

func putU32Be(buf []byte, offset int, value uint32) {
	buf[offset] = byte(value >> 24)
	buf[offset+1] = byte(value >> 16)
	buf[offset+2] = byte(value >> 8)
	buf[offset+3] = byte(value)
}

// fatImageParams selects the synthesized FAT geometry.
type fatImageParams struct {
	fsType FilesystemType

	withMbr        bool
	partitionStart uint32
	systemId       uint8

	sectorsPerCluster uint32
	reservedSectors   uint32
	fatCount          uint32
	rootEntries       uint32
	totalSectors      uint32
	sectorsPerFat     uint32
	rootCluster       uint32
}

// fat16ImageParams is the standard FAT16 test geometry: a single MBR
// partition starting at LBA 63.
func fat16ImageParams() fatImageParams {
	return fatImageParams{
		fsType:            TypeFat16,
		withMbr:           true,
		partitionStart:    0x3f,
		systemId:          SystemIdFat16,
		sectorsPerCluster: 4,
		reservedSectors:   1,
		fatCount:          2,
		rootEntries:       512,
		totalSectors:      65536,
		sectorsPerFat:     64,
	}
}

// fat12ImageParams is a small FAT12 card.
func fat12ImageParams() fatImageParams {
	return fatImageParams{
		fsType:            TypeFat12,
		withMbr:           true,
		partitionStart:    0x3f,
		systemId:          SystemIdFat12,
		sectorsPerCluster: 1,
		reservedSectors:   1,
		fatCount:          2,
		rootEntries:       32,
		totalSectors:      2048,
		sectorsPerFat:     6,
	}
}

// fat32ImageParams is a small volume (68868 clusters) that the cluster-count
// rule classifies as FAT32.
func fat32ImageParams() fatImageParams {
	return fatImageParams{
		fsType:            TypeFat32,
		withMbr:           true,
		partitionStart:    0x3f,
		systemId:          SystemIdFat32,
		sectorsPerCluster: 1,
		reservedSectors:   32,
		fatCount:          2,
		rootEntries:       0,
		totalSectors:      70000,
		sectorsPerFat:     550,
		rootCluster:       2,
	}
}

// fatImageBuilder synthesizes a mountable FAT volume on a RAM device.
type fatImageBuilder struct {
	dev *ramDevice
	p   fatImageParams

	// fat is the logical allocation table, indexed by cluster number.
	fat []uint32

	nextFree uint32

	firstFatSector  uint32
	firstRootSector uint32
	firstDataSector uint32
	rootDirSectors  uint32

	directories []*testDirectory
	root        *testDirectory
}

func newFatImageBuilder(p fatImageParams) *fatImageBuilder {
	b := &fatImageBuilder{
		dev:      newRamDevice(),
		p:        p,
		nextFree: 2,
	}

	b.rootDirSectors = (p.rootEntries*directoryEntrySize + SectorSize - 1) / SectorSize
	b.firstFatSector = p.partitionStart + p.reservedSectors
	b.firstRootSector = b.firstFatSector + p.fatCount*p.sectorsPerFat
	b.firstDataSector = b.firstRootSector + b.rootDirSectors

	dataSectors := p.totalSectors - p.reservedSectors - p.fatCount*p.sectorsPerFat - b.rootDirSectors
	countOfClusters := dataSectors / p.sectorsPerCluster

	b.fat = make([]uint32, countOfClusters+2)

	if p.withMbr == true {
		b.writeMbr()
	}

	b.writeBpb()

	if p.fsType == TypeFat32 {
		clusters := b.allocChain(1, 1)

		if clusters[0] != p.rootCluster {
			panic("FAT32 root cluster allocation out of order")
		}

		b.root = &testDirectory{b: b, clusters: clusters}
	} else {
		b.root = &testDirectory{b: b, isRoot: true}
	}

	b.directories = append(b.directories, b.root)

	return b
}

func (b *fatImageBuilder) writeMbr() {
	sector := make([]byte, SectorSize)

	entry := sector[mbrPartitionTableOffset:]
	entry[0] = bootIndicatorActive
	entry[4] = b.p.systemId
	putU32(entry, 8, b.p.partitionStart)
	putU32(entry, 12, b.p.totalSectors)

	putU16(sector, bootSignatureOffset, requiredBootSignature)

	b.dev.WriteSector(sector, 0)
}

func (b *fatImageBuilder) writeBpb() {
	sector := make([]byte, SectorSize)

	copy(sector[0:], []byte{0xeb, 0x3c, 0x90})
	copy(sector[3:], []byte("MSDOS5.0"))

	putU16(sector, 0x0b, SectorSize)
	sector[0x0d] = byte(b.p.sectorsPerCluster)
	putU16(sector, 0x0e, uint16(b.p.reservedSectors))
	sector[0x10] = byte(b.p.fatCount)
	putU16(sector, 0x11, uint16(b.p.rootEntries))

	if b.p.totalSectors < 0x10000 {
		putU16(sector, 0x13, uint16(b.p.totalSectors))
	} else {
		putU32(sector, 0x20, b.p.totalSectors)
	}

	sector[0x15] = 0xf8

	if b.p.fsType == TypeFat32 {
		putU32(sector, 0x24, b.p.sectorsPerFat)
		putU32(sector, 0x2c, b.p.rootCluster)
	} else {
		putU16(sector, 0x16, uint16(b.p.sectorsPerFat))
	}

	putU16(sector, bootSignatureOffset, requiredBootSignature)

	b.dev.WriteSector(sector, b.p.partitionStart)
}

func (b *fatImageBuilder) endOfChain() uint32 {
	switch b.p.fsType {
	case TypeFat12:
		return 0xfff
	case TypeFat16:
		return 0xffff
	}

	return 0x0fffffff
}

// allocChain allocates count clusters and links them. A stride above one
// leaves free gaps between successive clusters, forcing one fragment per
// cluster.
func (b *fatImageBuilder) allocChain(count int, stride uint32) []uint32 {
	clusters := make([]uint32, count)

	c := b.nextFree
	for i := 0; i < count; i++ {
		clusters[i] = c
		c += stride
	}

	b.nextFree = c

	for i := 0; i < count-1; i++ {
		b.fat[clusters[i]] = clusters[i+1]
	}

	b.fat[clusters[count-1]] = b.endOfChain()

	return clusters
}

func (b *fatImageBuilder) firstSectorOfCluster(cluster uint32) uint32 {
	return (cluster-2)*b.p.sectorsPerCluster + b.firstDataSector
}

// writeClusterData lays file content across a cluster chain.
func (b *fatImageBuilder) writeClusterData(clusters []uint32, data []byte) {
	bytesPerCluster := int(b.p.sectorsPerCluster) * SectorSize

	for i, cluster := range clusters {
		start := i * bytesPerCluster
		if start >= len(data) {
			break
		}

		end := start + bytesPerCluster
		if end > len(data) {
			end = len(data)
		}

		offset := int64(b.firstSectorOfCluster(cluster)) * SectorSize
		b.dev.patch(offset, data[start:end])
	}
}

// clustersForSize returns how many clusters a file of the given size needs.
func (b *fatImageBuilder) clustersForSize(size int) int {
	bytesPerCluster := int(b.p.sectorsPerCluster) * SectorSize

	count := (size + bytesPerCluster - 1) / bytesPerCluster
	if count == 0 {
		count = 1
	}

	return count
}

// testDirectory accumulates 32-byte slots for one directory.
type testDirectory struct {
	b        *fatImageBuilder
	isRoot   bool
	clusters []uint32
	slots    [][]byte
}

func shortNameBytes(name, extension string) (raw [11]byte) {
	for i := 0; i < 11; i++ {
		raw[i] = 0x20
	}

	copy(raw[0:8], name)
	copy(raw[8:11], extension)

	return raw
}

func lfnChecksum(alias [11]byte) byte {
	sum := byte(0)

	for i := 0; i < 11; i++ {
		sum = ((sum & 1) << 7) + (sum >> 1) + alias[i]
	}

	return sum
}

// addShort appends an 8.3 entry.
func (td *testDirectory) addShort(name, extension string, attributes FileAttributes, firstCluster, size uint32) {
	slot := make([]byte, directoryEntrySize)

	alias := shortNameBytes(name, extension)
	copy(slot[0:11], alias[:])

	slot[11] = byte(attributes)

	putU16(slot, 20, uint16(firstCluster>>16))
	putU16(slot, 26, uint16(firstCluster&0xffff))
	putU32(slot, 28, size)

	td.slots = append(td.slots, slot)
}

// addDeleted appends a deleted-entry slot.
func (td *testDirectory) addDeleted() {
	slot := make([]byte, directoryEntrySize)

	slot[0] = entryMarkerDeleted
	slot[11] = byte(AttrArchive)

	td.slots = append(td.slots, slot)
}

// addLfn appends the continuation records for longName (reverse order, as
// on disk) followed by the 8.3 alias entry.
func (td *testDirectory) addLfn(longName, aliasName, aliasExtension string, attributes FileAttributes, firstCluster, size uint32) {
	alias := shortNameBytes(aliasName, aliasExtension)
	checksum := lfnChecksum(alias)

	units := utf16.Encode([]rune(longName))

	recordCount := (len(units) + lfnCharsPerEntry - 1) / lfnCharsPerEntry

	for ordinal := recordCount; ordinal >= 1; ordinal-- {
		slot := make([]byte, directoryEntrySize)

		sequence := byte(ordinal)
		if ordinal == recordCount {
			sequence |= lfnLastFlag
		}

		slot[0] = sequence
		slot[11] = byte(attrLongName)
		slot[12] = 0
		slot[13] = checksum

		// Thirteen UCS-2LE characters per record: NUL-terminate once, then
		// FFFFh fill.
		chars := make([]uint16, lfnCharsPerEntry)
		for i := 0; i < lfnCharsPerEntry; i++ {
			unitIndex := (ordinal-1)*lfnCharsPerEntry + i

			if unitIndex < len(units) {
				chars[i] = units[unitIndex]
			} else if unitIndex == len(units) {
				chars[i] = 0x0000
			} else {
				chars[i] = 0xffff
			}
		}

		offsets := []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
		for i, offset := range offsets {
			putU16(slot, offset, chars[i])
		}

		td.slots = append(td.slots, slot)
	}

	td.addShort(aliasName, aliasExtension, attributes, firstCluster, size)
}

// addFile allocates a chain, writes content, and appends the entry.
func (td *testDirectory) addFile(name, extension string, content []byte, stride uint32) []uint32 {
	clusters := td.b.allocChain(td.b.clustersForSize(len(content)), stride)
	td.b.writeClusterData(clusters, content)

	td.addShort(name, extension, AttrArchive, clusters[0], uint32(len(content)))

	return clusters
}

// addLfnFile is addFile with a long filename.
func (td *testDirectory) addLfnFile(longName, aliasName, aliasExtension string, content []byte) []uint32 {
	clusters := td.b.allocChain(td.b.clustersForSize(len(content)), 1)
	td.b.writeClusterData(clusters, content)

	td.addLfn(longName, aliasName, aliasExtension, AttrArchive, clusters[0], uint32(len(content)))

	return clusters
}

// addSubdirectory allocates one cluster for a child directory, seeds its
// dot entries, and appends the entry to this directory.
func (td *testDirectory) addSubdirectory(name string) *testDirectory {
	clusters := td.b.allocChain(1, 1)

	child := &testDirectory{
		b:        td.b,
		clusters: clusters,
	}

	parentCluster := uint32(0)
	if td.isRoot != true {
		parentCluster = td.clusters[0]
	}

	child.addShort(".", "", AttrDirectory, clusters[0], 0)
	child.addShort("..", "", AttrDirectory, parentCluster, 0)

	td.addShort(name, "", AttrDirectory, clusters[0], 0)

	td.b.directories = append(td.b.directories, child)

	return child
}

// addLfnSubdirectory is addSubdirectory with a long directory name.
func (td *testDirectory) addLfnSubdirectory(longName, aliasName string) *testDirectory {
	clusters := td.b.allocChain(1, 1)

	child := &testDirectory{
		b:        td.b,
		clusters: clusters,
	}

	parentCluster := uint32(0)
	if td.isRoot != true {
		parentCluster = td.clusters[0]
	}

	child.addShort(".", "", AttrDirectory, clusters[0], 0)
	child.addShort("..", "", AttrDirectory, parentCluster, 0)

	td.addLfn(longName, aliasName, "", AttrDirectory, clusters[0], 0)

	td.b.directories = append(td.b.directories, child)

	return child
}

// finalize writes every directory's slots and then the FAT copies to the
// device. Directories go first because writing one may grow its chain.
func (b *fatImageBuilder) finalize() *ramDevice {
	for _, td := range b.directories {
		b.writeDirectory(td)
	}

	b.writeFat()

	return b.dev
}

func (b *fatImageBuilder) writeDirectory(td *testDirectory) {
	if td.isRoot == true {
		offset := int64(b.firstRootSector) * SectorSize

		for _, slot := range td.slots {
			b.dev.patch(offset, slot)
			offset += directoryEntrySize
		}

		return
	}

	bytesPerCluster := int(b.p.sectorsPerCluster) * SectorSize
	slotsPerCluster := bytesPerCluster / directoryEntrySize

	// Grow the chain when the slots outrun the first cluster.
	for len(td.slots) > slotsPerCluster*len(td.clusters) {
		extension := b.allocChain(1, 1)

		b.fat[td.clusters[len(td.clusters)-1]] = extension[0]
		td.clusters = append(td.clusters, extension[0])
	}

	for i, slot := range td.slots {
		cluster := td.clusters[i/slotsPerCluster]
		inCluster := (i % slotsPerCluster) * directoryEntrySize

		offset := int64(b.firstSectorOfCluster(cluster))*SectorSize + int64(inCluster)
		b.dev.patch(offset, slot)
	}
}

func (b *fatImageBuilder) writeFat() {
	var raw []byte

	switch b.p.fsType {
	case TypeFat12:
		raw = make([]byte, int(b.p.sectorsPerFat)*SectorSize)

		for cluster, value := range b.fat {
			offset := cluster + cluster/2

			if cluster&1 == 0 {
				raw[offset] = byte(value)
				raw[offset+1] = (raw[offset+1] & 0xf0) | byte(value>>8)&0x0f
			} else {
				raw[offset] = (raw[offset] & 0x0f) | byte(value&0x0f)<<4
				raw[offset+1] = byte(value >> 4)
			}
		}

	case TypeFat16:
		raw = make([]byte, int(b.p.sectorsPerFat)*SectorSize)

		for cluster, value := range b.fat {
			putU16(raw, cluster*2, uint16(value))
		}

	case TypeFat32:
		raw = make([]byte, int(b.p.sectorsPerFat)*SectorSize)

		for cluster, value := range b.fat {
			putU32(raw, cluster*4, value)
		}
	}

	// Reserved head entries carry the media descriptor.
	raw[0] = 0xf8

	for copyIndex := uint32(0); copyIndex < b.p.fatCount; copyIndex++ {
		base := int64(b.firstFatSector+copyIndex*b.p.sectorsPerFat) * SectorSize
		b.dev.patch(base, raw)
	}

	return
}

// isoImageBuilder synthesizes a mountable ISO9660 (optionally Joliet)
// volume. Logical blocks are 2048 bytes, four device sectors each.
type isoImageBuilder struct {
	dev *ramDevice

	totalBlocks uint32
	joliet      bool
}

const isoTestBlockSize = 2048

func newIsoImageBuilder(joliet bool) *isoImageBuilder {
	return &isoImageBuilder{
		dev:         newRamDevice(),
		totalBlocks: 64,
		joliet:      joliet,
	}
}

func (ib *isoImageBuilder) writeBlock(block uint32, data []byte) {
	ib.dev.patch(int64(block)*isoTestBlockSize, data)
}

// ucs2BeBytes encodes ASCII text as UCS-2BE.
func ucs2BeBytes(s string) []byte {
	units := utf16.Encode([]rune(s))

	raw := make([]byte, len(units)*2)
	for i, unit := range units {
		raw[i*2] = byte(unit >> 8)
		raw[i*2+1] = byte(unit)
	}

	return raw
}

// isoRecordBytes builds one directory record.
func isoRecordBytes(identifier []byte, block, size uint32, isDir bool) []byte {
	length := isoRecordFixedSize + len(identifier)
	if length%2 != 0 {
		length++
	}

	raw := make([]byte, length)

	raw[0] = byte(length)
	putU32(raw, 2, block)
	putU32Be(raw, 6, block)
	putU32(raw, 10, size)
	putU32Be(raw, 14, size)

	if isDir == true {
		raw[25] = isoFlagDirectory
	}

	putU16(raw, 28, 1)
	raw[30] = 0
	raw[31] = 1

	raw[32] = byte(len(identifier))
	copy(raw[33:], identifier)

	return raw
}

// buildDirExtent packs records into one logical block.
func buildDirExtent(records ...[]byte) []byte {
	extent := make([]byte, isoTestBlockSize)

	offset := 0
	for _, record := range records {
		copy(extent[offset:], record)
		offset += len(record)
	}

	return extent
}

// writeDescriptor writes a PVD or SVD with the given root extent.
func (ib *isoImageBuilder) writeDescriptor(block uint32, vdType uint8, volumeId string, rootBlock, rootSize uint32, joliet bool) {
	raw := make([]byte, isoTestBlockSize)

	raw[0] = vdType
	copy(raw[1:6], "CD001")
	raw[6] = 1

	if joliet == true {
		idRaw := ucs2BeBytes(volumeId)
		copy(raw[isoVolumeIdOffset:isoVolumeIdOffset+isoVolumeIdLength], idRaw)

		// UCS-2 level 3 escape sequence.
		raw[isoEscapeSequencesOffset] = 0x25
		raw[isoEscapeSequencesOffset+1] = 0x2f
		raw[isoEscapeSequencesOffset+2] = 0x45
	} else {
		for i := 0; i < isoVolumeIdLength; i++ {
			raw[isoVolumeIdOffset+i] = 0x20
		}

		copy(raw[isoVolumeIdOffset:], volumeId)
	}

	putU32(raw, isoVolumeSpaceSizeOffset, ib.totalBlocks)
	putU32Be(raw, isoVolumeSpaceSizeOffset+4, ib.totalBlocks)

	putU16(raw, isoLogicalBlockSizeOffset, isoTestBlockSize)
	raw[isoLogicalBlockSizeOffset+2] = byte(isoTestBlockSize >> 8)
	raw[isoLogicalBlockSizeOffset+3] = byte(isoTestBlockSize & 0xff)

	rootRecord := isoRecordBytes([]byte{0x00}, rootBlock, rootSize, true)
	copy(raw[isoRootRecordOffset:isoRootRecordOffset+isoRootRecordLength], rootRecord)

	ib.writeBlock(block, raw)
}

// writeTerminator ends the descriptor set.
func (ib *isoImageBuilder) writeTerminator(block uint32) {
	raw := make([]byte, isoTestBlockSize)

	raw[0] = isoVdTypeTerminator
	copy(raw[1:6], "CD001")
	raw[6] = 1

	ib.writeBlock(block, raw)
}
