package fatiso

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildNestedImage authors C:\MUSIC\ALBUM\TRACK01.MP3 plus root-level
// extras.
func buildNestedImage() *fatImageBuilder {
	b := newFatImageBuilder(fat16ImageParams())

	music := b.root.addSubdirectory("MUSIC")
	album := music.addSubdirectory("ALBUM")

	album.addFile("TRACK01", "MP3", []byte("track-one-payload"), 1)

	b.root.addFile("ROOT", "TXT", []byte("root-file"), 1)

	return b
}

func TestSplitPath(t *testing.T) {
	pp, err := splitPath(`C:\a\b\file.ext`)
	require.NoError(t, err)
	require.Equal(t, byte('C'), pp.drive)
	require.True(t, pp.absolute)
	require.Equal(t, []string{"a", "b", "file.ext"}, pp.segments)

	pp, err = splitPath(`sub\file.ext`)
	require.NoError(t, err)
	require.Equal(t, byte(0), pp.drive)
	require.False(t, pp.absolute)
	require.Equal(t, []string{"sub", "file.ext"}, pp.segments)

	pp, err = splitPath(`\anchored`)
	require.NoError(t, err)
	require.True(t, pp.absolute)

	pp, err = splitPath(`d:relative`)
	require.NoError(t, err)
	require.Equal(t, byte('D'), pp.drive)
}

func TestSplitPath_TooLong(t *testing.T) {
	_, err := splitPath(`C:\` + strings.Repeat("x", MaxPath))
	require.Equal(t, ErrPathTooLong, err)
}

func TestChdir_AbsoluteAndRelative(t *testing.T) {
	fs := mountBuilder(t, buildNestedImage())

	err := fs.Chdir(`C:\MUSIC`, false)
	require.NoError(t, err)
	require.Equal(t, `C:\MUSIC`, fs.CurrentPath())

	err = fs.Chdir("ALBUM", false)
	require.NoError(t, err)
	require.Equal(t, `C:\MUSIC\ALBUM`, fs.CurrentPath())

	entry, _, err := fs.EnumerateFolder(true)
	require.NoError(t, err)
	require.Equal(t, "TRACK01", entry.Name)
}

func TestChdir_CaseInsensitive(t *testing.T) {
	fs := mountBuilder(t, buildNestedImage())

	err := fs.Chdir(`c:\music\album`, false)
	require.NoError(t, err)

	lowerDir := fs.currentDir

	err = fs.Chdir(`C:\MUSIC\ALBUM`, false)
	require.NoError(t, err)

	require.True(t, fs.currentDir.equals(lowerDir))
}

func TestChdir_Parent(t *testing.T) {
	fs := mountBuilder(t, buildNestedImage())

	err := fs.Chdir(`C:\MUSIC\ALBUM`, false)
	require.NoError(t, err)

	err = fs.Chdir("", true)
	require.NoError(t, err)
	require.Equal(t, `C:\MUSIC`, fs.CurrentPath())

	err = fs.Chdir("", true)
	require.NoError(t, err)
	require.Equal(t, `C:\`, fs.CurrentPath())

	// Already at the root.
	err = fs.Chdir("", true)
	require.Equal(t, ErrNoMoreEntries, err)
}

func TestChdir_Errors(t *testing.T) {
	fs := mountBuilder(t, buildNestedImage())

	err := fs.Chdir(`C:\NOSUCH`, false)
	require.Equal(t, ErrNotFound, err)

	err = fs.Chdir(`C:\ROOT.TXT`, false)
	require.Equal(t, ErrNotADirectory, err)

	err = fs.Chdir(`C:\ROOT.TXT\deeper`, false)
	require.Equal(t, ErrNotADirectory, err)
}

func TestResolve_File(t *testing.T) {
	fs := mountBuilder(t, buildNestedImage())

	entry, _, err := fs.resolve(`C:\MUSIC\ALBUM\TRACK01.MP3`, true)
	require.NoError(t, err)
	require.Equal(t, "TRACK01", entry.Name)
	require.Equal(t, "MP3", entry.Extension)

	// A directory where a file is expected.
	_, _, err = fs.resolve(`C:\MUSIC`, true)
	require.Equal(t, ErrNotAFile, err)

	_, _, err = fs.resolve(`C:\MUSIC\ALBUM\MISSING.MP3`, true)
	require.Equal(t, ErrNotFound, err)
}

func TestResolve_RelativeToCurrentDirectory(t *testing.T) {
	fs := mountBuilder(t, buildNestedImage())

	err := fs.Chdir(`C:\MUSIC`, false)
	require.NoError(t, err)

	entry, _, err := fs.resolve(`ALBUM\TRACK01.MP3`, true)
	require.NoError(t, err)
	require.Equal(t, "TRACK01", entry.Name)
}

func TestNameMatches_ShortAndLong(t *testing.T) {
	entry := DirectoryEntry{
		Name:      "Long Name.txt",
		ShortName: "LONGNA~1.TXT",
		Kind:      KindFile,
	}

	require.True(t, nameMatches("long name.txt", entry))
	require.True(t, nameMatches("LONGNA~1.TXT", entry))
	require.False(t, nameMatches("other.txt", entry))

	dot := DirectoryEntry{Name: ".", ShortName: "."}
	require.False(t, nameMatches(".", dot))
}
