package fatiso

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMount_Fat16WithMbr(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())
	b.root.addShort("HELLO", "TXT", AttrArchive, 0, 0)
	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	geometry := fs.Geometry()

	require.Equal(t, TypeFat16, geometry.Type)
	require.Equal(t, uint32(SectorSize), geometry.BytesPerSector)
	require.Equal(t, uint32(4), geometry.SectorsPerCluster)
	require.Equal(t, uint32(2), geometry.FatCount)
	require.Equal(t, uint32(65536), geometry.TotalSectors)
	require.Equal(t, uint32(0x3f), geometry.RelativeSector)
	require.Equal(t, uint32(0x3f+1), geometry.FirstFatSector)
	require.Equal(t, uint32(0x3f+1+128), geometry.FirstRootSector)
	require.Equal(t, uint32(0x3f+1+128+32), geometry.FirstDataSector)
	require.Equal(t, uint32(16343), geometry.CountOfClusters)

	require.Equal(t, byte('C'), fs.DriveLetter())
	require.Equal(t, `C:\`, fs.CurrentPath())
}

func TestMount_Fat16NoMbrFallback(t *testing.T) {
	p := fat16ImageParams()
	p.withMbr = false
	p.partitionStart = 0

	b := newFatImageBuilder(p)
	b.root.addShort("README", "TXT", AttrArchive, 0, 0)
	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	geometry := fs.Geometry()

	require.Equal(t, TypeFat16, geometry.Type)
	require.Equal(t, uint32(0), geometry.RelativeSector)

	// The root directory must be reachable through the fallback mount.
	entry, _, err := fs.EnumerateFolder(true)
	require.NoError(t, err)
	require.Equal(t, "README", entry.Name)
}

func TestMount_Fat12(t *testing.T) {
	b := newFatImageBuilder(fat12ImageParams())
	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	geometry := fs.Geometry()

	require.Equal(t, TypeFat12, geometry.Type)
	require.True(t, geometry.CountOfClusters < 4085)
}

func TestMount_Fat32(t *testing.T) {
	b := newFatImageBuilder(fat32ImageParams())
	b.root.addShort("BIG", "BIN", AttrArchive, 0, 0)
	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	geometry := fs.Geometry()

	require.Equal(t, TypeFat32, geometry.Type)
	require.Equal(t, uint32(2), geometry.RootCluster)
	require.True(t, geometry.CountOfClusters >= 65525)

	entry, _, err := fs.EnumerateFolder(true)
	require.NoError(t, err)
	require.Equal(t, "BIG", entry.Name)
}

func TestMount_GarbageImage(t *testing.T) {
	dev := newRamDevice()

	_, err := Mount(dev, 0)
	require.Error(t, err)
}

func TestMount_PartitionIndexOutOfRange(t *testing.T) {
	dev := newRamDevice()

	_, err := Mount(dev, 4)
	require.Error(t, err)
}

func TestVolumeInquiry_Fat16(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())

	content := make([]byte, 3*4*SectorSize)
	b.root.addFile("DATA", "BIN", content, 1)

	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	totalSectors, freeSectors, err := fs.VolumeInquiry()
	require.NoError(t, err)

	geometry := fs.Geometry()

	require.Equal(t, uint32(65536), totalSectors)

	// Three clusters are allocated to the file; every other cluster is free.
	expectedFree := (geometry.CountOfClusters - 3) * geometry.SectorsPerCluster
	require.Equal(t, expectedFree, freeSectors)
}

func TestVolumeLabel_FromRootEntry(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())
	b.root.addShort("TESTVOL", "", AttrVolumeId, 0, 0)
	b.root.addShort("HELLO", "TXT", AttrArchive, 0, 0)
	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	label, err := fs.VolumeLabel()
	require.NoError(t, err)
	require.Equal(t, "TESTVOL", label)
}

func TestGeometry_Dump(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())
	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	fs.Geometry().Dump()
}
