package fatiso

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// patternContent generates a deterministic, position-dependent payload so
// misplaced reads cannot go unnoticed.
func patternContent(size int) []byte {
	content := make([]byte, size)

	for i := range content {
		content[i] = byte(i*7 + i/SectorSize)
	}

	return content
}

func buildFileImage(size int, stride uint32) (*fatImageBuilder, []byte) {
	b := newFatImageBuilder(fat16ImageParams())

	content := patternContent(size)
	b.root.addFile("DATA", "BIN", content, stride)

	return b, content
}

func TestFile_ReadAll(t *testing.T) {
	size := 3*4*SectorSize + 123

	b, content := buildFileImage(size, 1)
	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	defer f.Close()

	require.Equal(t, uint32(size), f.Size())

	recovered := make([]byte, size)

	n, err := f.Read(recovered)
	require.NoError(t, err)
	require.Equal(t, size, n)

	require.True(t, bytes.Equal(content, recovered))

	require.True(t, f.EOF())

	_, err = f.ReadByte()
	require.Equal(t, ErrEndOfFile, err)
}

func TestFile_ReadFragmented(t *testing.T) {
	// Sixty single-cluster fragments overflow the fragment cache, forcing
	// reads past it through the FAT fallback.
	size := 60 * 4 * SectorSize

	b, content := buildFileImage(size, 2)
	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	defer f.Close()

	require.True(t, f.fragments.partial)

	recovered := make([]byte, size)

	n, err := f.Read(recovered)
	require.NoError(t, err)
	require.Equal(t, size, n)

	require.True(t, bytes.Equal(content, recovered))
}

func TestFile_ReadByteSequence(t *testing.T) {
	size := SectorSize + 37

	b, content := buildFileImage(size, 1)
	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	defer f.Close()

	for i := 0; i < size; i++ {
		c, err := f.ReadByte()
		require.NoError(t, err)
		require.Equal(t, content[i], c)
	}

	require.True(t, f.EOF())
}

// TestFile_SeekReadIdempotence: seek(Absolute, k) then read(1) returns the
// same byte as reading k bytes forward from open.
func TestFile_SeekReadIdempotence(t *testing.T) {
	size := 5*4*SectorSize + 11

	b, content := buildFileImage(size, 1)
	fs := mountBuilder(t, b)

	offsets := []int64{0, 1, SectorSize - 1, SectorSize, 4 * SectorSize, int64(size) - 1}

	for _, k := range offsets {
		f, err := fs.OpenFile(`C:\DATA.BIN`)
		require.NoError(t, err)

		position, err := f.Seek(SeekAbsolute, k)
		require.NoError(t, err)
		require.Equal(t, uint32(k), position)

		c, err := f.ReadByte()
		require.NoError(t, err)
		require.Equal(t, content[k], c)

		f.Close()
	}
}

func TestFile_SeekRelativeAndClamp(t *testing.T) {
	size := 2 * 4 * SectorSize

	b, content := buildFileImage(size, 1)
	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	defer f.Close()

	_, err = f.Seek(SeekAbsolute, 100)
	require.NoError(t, err)

	position, err := f.Seek(SeekRelative, 28)
	require.NoError(t, err)
	require.Equal(t, uint32(128), position)

	c, err := f.ReadByte()
	require.NoError(t, err)
	require.Equal(t, content[128], c)

	// Negative targets clamp to zero, oversized targets to the size.
	position, err = f.Seek(SeekRelative, -1000000)
	require.NoError(t, err)
	require.Equal(t, uint32(0), position)

	position, err = f.Seek(SeekAbsolute, int64(size)+500)
	require.NoError(t, err)
	require.Equal(t, uint32(size), position)

	require.True(t, f.EOF())
}

// TestFile_EofLaw: EOF is true exactly when the consumed count equals the
// size.
func TestFile_EofLaw(t *testing.T) {
	size := 700

	b, _ := buildFileImage(size, 1)
	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	defer f.Close()

	buffer := make([]byte, 100)

	consumed := 0
	for consumed < size {
		require.False(t, f.EOF())

		n, err := f.Read(buffer)
		require.NoError(t, err)

		consumed += n
	}

	require.Equal(t, size, consumed)
	require.True(t, f.EOF())
}

func TestFile_SaveAndRestorePosition(t *testing.T) {
	size := 3 * SectorSize

	b, content := buildFileImage(size, 1)
	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	defer f.Close()

	_, err = f.Seek(SeekAbsolute, 600)
	require.NoError(t, err)

	f.SavePosition()

	_, err = f.Seek(SeekAbsolute, 1400)
	require.NoError(t, err)

	err = f.RestorePosition()
	require.NoError(t, err)

	require.Equal(t, uint32(600), f.Position())

	c, err := f.ReadByte()
	require.NoError(t, err)
	require.Equal(t, content[600], c)
}

// TestFile_LongNamePathReadAll opens a file through long-named path
// segments and verifies every byte against the authored content.
func TestFile_LongNamePathReadAll(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())

	sub := b.root.addLfnSubdirectory("longfilename directory for test", "LONGFI~1")

	content := patternContent(100 * 1024)
	sub.addLfnFile("tony yang and test_test.txt", "TONYYA~1", "TXT", content)

	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\longfilename directory for test\tony yang and test_test.txt`)
	require.NoError(t, err)

	defer f.Close()

	require.Equal(t, uint32(len(content)), f.Size())

	recovered := make([]byte, len(content))

	n, err := f.Read(recovered)
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	require.True(t, bytes.Equal(content, recovered))

	// The short alias resolves to the same file.
	g, err := fs.OpenFile(`C:\LONGFI~1\TONYYA~1.TXT`)
	require.NoError(t, err)

	defer g.Close()

	require.Equal(t, f.Entry().FirstCluster, g.Entry().FirstCluster)
}

func TestFile_OpenErrors(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())
	b.root.addSubdirectory("MUSIC")
	fs := mountBuilder(t, b)

	_, err := fs.OpenFile(`C:\MISSING.BIN`)
	require.Equal(t, ErrNotFound, err)

	_, err = fs.OpenFile(`C:\MUSIC`)
	require.Equal(t, ErrNotAFile, err)
}

func TestFile_OpenLimit(t *testing.T) {
	b := newFatImageBuilder(fat16ImageParams())
	b.root.addFile("DATA", "BIN", []byte("x"), 1)
	fs := mountBuilder(t, b)

	files := []*File{}

	for i := 0; i < MaxOpenFiles; i++ {
		f, err := fs.OpenFile(`C:\DATA.BIN`)
		require.NoError(t, err)

		files = append(files, f)
	}

	_, err := fs.OpenFile(`C:\DATA.BIN`)
	require.Error(t, err)

	for _, f := range files {
		require.NoError(t, f.Close())
	}

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	f.Close()
}

func TestFile_ShortReadAtEof(t *testing.T) {
	size := 100

	b, content := buildFileImage(size, 1)
	fs := mountBuilder(t, b)

	f, err := fs.OpenFile(`C:\DATA.BIN`)
	require.NoError(t, err)

	defer f.Close()

	buffer := make([]byte, 300)

	n, err := f.Read(buffer)
	require.Equal(t, ErrEndOfFile, err)
	require.Equal(t, size, n)
	require.True(t, bytes.Equal(content, buffer[:n]))
}
