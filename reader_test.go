package fatiso

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSectorReader_ByteCursor(t *testing.T) {
	dev := newRamDevice()

	sector := make([]byte, SectorSize)
	for i := range sector {
		sector[i] = byte(i)
	}

	dev.WriteSector(sector, 7)

	sr := newSectorReader(dev)

	err := sr.open(7)
	require.NoError(t, err)

	b, err := sr.readByte()
	require.NoError(t, err)
	require.Equal(t, byte(0), b)

	b, err = sr.readByte()
	require.NoError(t, err)
	require.Equal(t, byte(1), b)

	err = sr.seekTo(7, 255)
	require.NoError(t, err)

	b, err = sr.readByte()
	require.NoError(t, err)
	require.Equal(t, byte(255), b)
}

func TestSectorReader_SeekOffsetBound(t *testing.T) {
	sr := newSectorReader(newRamDevice())

	err := sr.seekTo(0, SectorSize)
	require.Error(t, err)
}

func TestUnalignedLittleEndianReads(t *testing.T) {
	raw := []byte{0x00, 0x34, 0x12, 0x78, 0x56, 0x34, 0x12}

	require.Equal(t, uint16(0x1234), getUint16Le(raw, 1))
	require.Equal(t, uint32(0x12345678), getUint32Le(raw, 3))
}

func TestDecodeUcs2(t *testing.T) {
	le := []byte{'a', 0, 'b', 0, 'c', 0, 0, 0, 0xff, 0xff}

	s, err := decodeUcs2Le(le)
	require.NoError(t, err)
	require.Equal(t, "abc", s)

	be := []byte{0, 'X', 0, 'y', 0, 0}

	s, err = decodeUcs2Be(be)
	require.NoError(t, err)
	require.Equal(t, "Xy", s)
}

func TestUpperAscii(t *testing.T) {
	require.Equal(t, "HELLO.TXT", upperAscii("hello.txt"))
	require.Equal(t, "ALREADY", upperAscii("ALREADY"))
	require.Equal(t, "MIXED99", upperAscii("MiXeD99"))
}

func TestParsePartitionEntry(t *testing.T) {
	sector := make([]byte, SectorSize)

	entry := sector[mbrPartitionTableOffset:]
	entry[0] = bootIndicatorActive
	entry[4] = SystemIdFat16
	putU32(entry, 8, 0x3f)
	putU32(entry, 12, 65536)

	putU16(sector, bootSignatureOffset, requiredBootSignature)

	pe, err := parsePartitionEntry(sector, 0)
	require.NoError(t, err)

	require.True(t, pe.IsAllocated())
	require.True(t, pe.IsActive())
	require.Equal(t, uint8(SystemIdFat16), pe.SystemId)
	require.Equal(t, uint32(0x3f), pe.RelativeSector)
	require.Equal(t, uint32(65536), pe.TotalSectors)

	require.True(t, hasBootSignature(sector))

	// The other three slots are empty.
	pe, err = parsePartitionEntry(sector, 1)
	require.NoError(t, err)
	require.False(t, pe.IsAllocated())
}
