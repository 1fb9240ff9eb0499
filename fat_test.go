package fatiso

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// mountBuilder finalizes the image and mounts it.
func mountBuilder(t *testing.T, b *fatImageBuilder) *Filesystem {
	dev := b.finalize()

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	return fs
}

func TestFatReader_NextCluster_Fat16(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())
	clusters := b.root.addFile("CHAIN", "BIN", make([]byte, 5*4*SectorSize), 1)
	fs := mountBuilder(t, b)

	require.Len(t, clusters, 5)

	for i := 0; i < len(clusters)-1; i++ {
		next, result, err := fs.fat.nextCluster(clusters[i])
		require.NoError(t, err)
		require.Equal(t, chainNext, result)
		require.Equal(t, clusters[i+1], next)
	}

	_, result, err := fs.fat.nextCluster(clusters[len(clusters)-1])
	require.NoError(t, err)
	require.Equal(t, chainEnd, result)
}

func TestFatReader_NextCluster_Fat12(t *testing.T) {
	b := newFatImageBuilder(fat12ImageParams())

	// Odd- and even-numbered clusters exercise both halves of the packed
	// 12-bit entries.
	clusters := b.root.addFile("CHAIN", "BIN", make([]byte, 7*SectorSize), 1)
	fs := mountBuilder(t, b)

	require.Len(t, clusters, 7)

	walked := []uint32{clusters[0]}

	current := clusters[0]
	for {
		next, result, err := fs.fat.nextCluster(current)
		require.NoError(t, err)

		if result == chainEnd {
			break
		}

		require.Equal(t, chainNext, result)

		walked = append(walked, next)
		current = next
	}

	require.Equal(t, clusters, walked)
}

func TestFatReader_NextCluster_Fat32(t *testing.T) {
	b := newFatImageBuilder(fat32ImageParams())
	clusters := b.root.addFile("CHAIN", "BIN", make([]byte, 3*SectorSize), 1)
	fs := mountBuilder(t, b)

	require.Len(t, clusters, 3)

	next, result, err := fs.fat.nextCluster(clusters[0])
	require.NoError(t, err)
	require.Equal(t, chainNext, result)
	require.Equal(t, clusters[1], next)

	_, result, err = fs.fat.nextCluster(clusters[2])
	require.NoError(t, err)
	require.Equal(t, chainEnd, result)
}

// TestFatReader_BuildChain_ClusterCountLaw verifies that a file of S bytes
// with cluster size C occupies exactly ceil(S/C) clusters.
func TestFatReader_BuildChain_ClusterCountLaw(t *testing.T) {
	sizes := []int{1, SectorSize, 4*SectorSize - 1, 4 * SectorSize, 4*SectorSize + 1, 10*4*SectorSize + 100}

	for _, size := range sizes {
		b := newFatImageBuilder(fat16ImageParams())
		clusters := b.root.addFile("SIZED", "BIN", make([]byte, size), 1)
		fs := mountBuilder(t, b)

		bytesPerCluster := int(fs.Geometry().BytesPerCluster())
		expected := (size + bytesPerCluster - 1) / bytesPerCluster

		require.Len(t, clusters, expected)

		ft := newFragmentTable(MaxFileFragments)

		err := fs.fat.buildChain(clusters[0], ft)
		require.NoError(t, err)

		require.Equal(t, uint32(expected), ft.cachedClusters)
		require.False(t, ft.partial)
	}
}

func TestFragmentTable_Coalescing(t *testing.T) {
	ft := newFragmentTable(8)

	for cluster := uint32(10); cluster < 15; cluster++ {
		require.True(t, ft.append(cluster))
	}

	require.True(t, ft.append(20))
	require.True(t, ft.append(21))

	require.Equal(t, 2, ft.count)
	require.Equal(t, fragment{start: 10, length: 5}, ft.runs[0])
	require.Equal(t, fragment{start: 20, length: 2}, ft.runs[1])

	cluster, found := ft.clusterAt(0)
	require.True(t, found)
	require.Equal(t, uint32(10), cluster)

	cluster, found = ft.clusterAt(4)
	require.True(t, found)
	require.Equal(t, uint32(14), cluster)

	cluster, found = ft.clusterAt(5)
	require.True(t, found)
	require.Equal(t, uint32(20), cluster)

	_, found = ft.clusterAt(7)
	require.False(t, found)
}

func TestFatReader_BuildChain_FragmentBudget(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())

	// A stride of two makes every cluster its own fragment; sixty of them
	// exceed the file cache capacity.
	clusters := b.root.addFile("FRAG", "BIN", make([]byte, 60*4*SectorSize), 2)
	fs := mountBuilder(t, b)

	ft := newFragmentTable(MaxFileFragments)

	err := fs.fat.buildChain(clusters[0], ft)
	require.Equal(t, ErrNoFragmentBudget, err)

	require.True(t, ft.partial)
	require.Equal(t, uint32(MaxFileFragments), ft.cachedClusters)

	// Ordinals past the cache resolve through the FAT fallback.
	cluster, err := fs.fat.clusterForOrdinal(ft, 59)
	require.NoError(t, err)
	require.Equal(t, clusters[59], cluster)

	// And past the chain end, the ordinal is out of range.
	_, err = fs.fat.clusterForOrdinal(ft, 60)
	require.Equal(t, ErrEndOfFile, err)
}
