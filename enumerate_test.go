package fatiso

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnumerateFolder_Stateful(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())

	b.root.addShort("ONE", "TXT", AttrArchive, 0, 1)
	b.root.addShort("TWO", "TXT", AttrArchive, 0, 2)
	b.root.addShort("SECRET", "TXT", AttrArchive|AttrHidden, 0, 3)
	b.root.addShort("THREE", "TXT", AttrArchive, 0, 4)

	fs := mountBuilder(t, b)

	names := []string{}
	paths := []string{}

	restart := true
	for {
		entry, fullPath, err := fs.EnumerateFolder(restart)
		restart = false

		if err == ErrEndOfDirectory {
			break
		}

		require.NoError(t, err)

		names = append(names, entry.Name)
		paths = append(paths, fullPath)
	}

	// Hidden entries never surface.
	require.Equal(t, []string{"ONE", "TWO", "THREE"}, names)
	require.Equal(t, []string{`C:\ONE.TXT`, `C:\TWO.TXT`, `C:\THREE.TXT`}, paths)

	// A restart rewinds the hidden cursor.
	entry, _, err := fs.EnumerateFolder(true)
	require.NoError(t, err)
	require.Equal(t, "ONE", entry.Name)
}

// buildTreeImage authors a three-level tree for the disk-walk oracle.
func buildTreeImage() (*fatImageBuilder, []string) {
	b := newFatImageBuilder(fat16ImageParams())

	b.root.addFile("ROOT1", "TXT", []byte("r1"), 1)
	b.root.addFile("ROOT2", "MP3", []byte("r2"), 1)

	docs := b.root.addSubdirectory("DOCS")
	docs.addFile("NOTES", "TXT", []byte("n"), 1)

	deep := docs.addSubdirectory("DEEP")
	deep.addFile("BURIED", "DAT", []byte("b"), 1)

	music := b.root.addSubdirectory("MUSIC")
	music.addFile("SONG", "MP3", []byte("s"), 1)

	private := b.root.addSubdirectory("PRIVATE")
	private.addFile("SEEN", "TXT", []byte("x"), 1)

	oracle := []string{
		`C:\DOCS`,
		`C:\DOCS\DEEP`,
		`C:\DOCS\DEEP\BURIED.DAT`,
		`C:\DOCS\NOTES.TXT`,
		`C:\MUSIC`,
		`C:\MUSIC\SONG.MP3`,
		`C:\PRIVATE`,
		`C:\PRIVATE\SEEN.TXT`,
		`C:\ROOT1.TXT`,
		`C:\ROOT2.MP3`,
	}

	return b, oracle
}

// TestEnumerateDisk_Oracle: the depth-first walk emits exactly the oracle
// set.
func TestEnumerateDisk_Oracle(t *testing.T) {
	b, oracle := buildTreeImage()
	fs := mountBuilder(t, b)

	visited := []string{}

	cb := func(fullPath string, entry DirectoryEntry) (err error) {
		visited = append(visited, fullPath)
		return nil
	}

	err := fs.EnumerateDisk(cb)
	require.NoError(t, err)

	sort.Strings(visited)
	require.Equal(t, oracle, visited)
}

func TestEnumerateDisk_DepthFirstOrder(t *testing.T) {
	b, _ := buildTreeImage()
	fs := mountBuilder(t, b)

	visited := []string{}

	cb := func(fullPath string, entry DirectoryEntry) (err error) {
		visited = append(visited, fullPath)
		return nil
	}

	err := fs.EnumerateDisk(cb)
	require.NoError(t, err)

	// A directory is always followed immediately by its own contents.
	index := map[string]int{}
	for i, path := range visited {
		index[path] = i
	}

	require.Equal(t, index[`C:\DOCS`]+1, index[`C:\DOCS\NOTES.TXT`])
	require.True(t, index[`C:\DOCS\DEEP\BURIED.DAT`] > index[`C:\DOCS\DEEP`])
	require.True(t, index[`C:\MUSIC\SONG.MP3`] > index[`C:\MUSIC`])
}

func TestEnumerateDisk_HiddenDirectoryPruned(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())

	b.root.addFile("VISIBLE", "TXT", []byte("v"), 1)

	// A hidden directory with content that must never surface.
	secret := b.root.addSubdirectory("SECRET")
	secret.addFile("INSIDE", "TXT", []byte("i"), 1)

	// Flip the SECRET entry's attribute byte to hidden+directory.
	for _, slot := range b.root.slots {
		if string(slot[0:6]) == "SECRET" {
			slot[11] = byte(AttrDirectory | AttrHidden)
		}
	}

	fs := mountBuilder(t, b)

	visited := []string{}

	cb := func(fullPath string, entry DirectoryEntry) (err error) {
		visited = append(visited, fullPath)
		return nil
	}

	err := fs.EnumerateDisk(cb)
	require.NoError(t, err)

	require.Equal(t, []string{`C:\VISIBLE.TXT`}, visited)
}

func TestEnumerateDisk_Iso(t *testing.T) {
	dev, _, _ := buildIsoImage(false)

	fs, err := Mount(dev, 0)
	require.NoError(t, err)

	visited := []string{}

	cb := func(fullPath string, entry DirectoryEntry) (err error) {
		visited = append(visited, fullPath)
		return nil
	}

	err = fs.EnumerateDisk(cb)
	require.NoError(t, err)

	sort.Strings(visited)

	require.Equal(t, []string{
		`C:\BIG.BIN`,
		`C:\HELLO.TXT`,
		`C:\SUBDIR`,
		`C:\SUBDIR\NESTED.DAT`,
	}, visited)
}
