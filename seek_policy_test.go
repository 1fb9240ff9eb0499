package fatiso

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// stubClock is a fixed play-time clock.
type stubClock struct {
	minutes int
	seconds int
}

func (sc stubClock) Minutes() int {
	return sc.minutes
}

func (sc stubClock) Seconds() int {
	return sc.seconds
}

// TestFileSeekPrev_TimeBias: below the threshold the selection really moves
// back; at or above it the current file is restarted in place.
func TestFileSeekPrev_TimeBias(t *testing.T) {
	fs := mountBuilder(t, buildPlayerImage())

	nav, err := NewNavigator(fs)
	require.NoError(t, err)

	// Position on the second audio file.
	_, err = nav.GotoFirst(FilterMp3 | FilterWav)
	require.NoError(t, err)

	entry, err := nav.GotoNext(FilterMp3 | FilterWav)
	require.NoError(t, err)
	require.Equal(t, "B", entry.Name)

	// Two seconds in: a previous-seek selects the previous file.
	selected, err := FileSeekPrev(nav, stubClock{minutes: 0, seconds: 2}, FilterMp3|FilterWav, false)
	require.NoError(t, err)
	require.True(t, selected)

	current, err := nav.Current()
	require.NoError(t, err)
	require.Equal(t, "A", current.Name)

	// Five seconds in: the cursor must not move (restart current).
	selected, err = FileSeekPrev(nav, stubClock{minutes: 0, seconds: 5}, FilterMp3|FilterWav, false)
	require.NoError(t, err)
	require.True(t, selected)

	current, err = nav.Current()
	require.NoError(t, err)
	require.Equal(t, "A", current.Name)

	// Past a minute the bias also applies regardless of the second count.
	selected, err = FileSeekPrev(nav, stubClock{minutes: 1, seconds: 0}, FilterMp3|FilterWav, false)
	require.NoError(t, err)
	require.True(t, selected)

	current, err = nav.Current()
	require.NoError(t, err)
	require.Equal(t, "A", current.Name)
}

func TestFileSeekPrev_LoopToLast(t *testing.T) {
	fs := mountBuilder(t, buildPlayerImage())

	nav, err := NewNavigator(fs)
	require.NoError(t, err)

	_, err = nav.GotoFirst(FilterMp3 | FilterWav)
	require.NoError(t, err)

	// Seeking back from the first entry wraps to the last when looping.
	selected, err := FileSeekPrev(nav, stubClock{}, FilterMp3|FilterWav, true)
	require.NoError(t, err)
	require.True(t, selected)

	current, err := nav.Current()
	require.NoError(t, err)
	require.Equal(t, "B", current.Name)

	// Without looping, the seek reports no selection.
	_, err = nav.GotoFirst(FilterMp3 | FilterWav)
	require.NoError(t, err)

	selected, err = FileSeekPrev(nav, stubClock{}, FilterMp3|FilterWav, false)
	require.NoError(t, err)
	require.False(t, selected)
}

func TestFileSeekNext_Wrap(t *testing.T) {
	fs := mountBuilder(t, buildPlayerImage())

	nav, err := NewNavigator(fs)
	require.NoError(t, err)

	_, err = nav.GotoLast(FilterMp3 | FilterWav)
	require.NoError(t, err)

	selected, err := FileSeekNext(nav, FilterMp3|FilterWav, true)
	require.NoError(t, err)
	require.True(t, selected)

	current, err := nav.Current()
	require.NoError(t, err)
	require.Equal(t, "A", current.Name)

	// No wrap: walking off the end reports no selection.
	_, err = nav.GotoLast(FilterMp3 | FilterWav)
	require.NoError(t, err)

	selected, err = FileSeekNext(nav, FilterMp3|FilterWav, false)
	require.NoError(t, err)
	require.False(t, selected)
}

func TestFileEnterDir(t *testing.T) {
	fs := mountBuilder(t, buildPlayerImage())

	nav, err := NewNavigator(fs)
	require.NoError(t, err)

	// On a file: no entry happens.
	_, err = nav.GotoFirst(FilterMp3)
	require.NoError(t, err)

	entered, err := FileEnterDir(nav, FilterMp3)
	require.NoError(t, err)
	require.False(t, entered)

	// On a directory with matching content: descends.
	_, err = nav.GotoFirst(FilterDir)
	require.NoError(t, err)

	entered, err = FileEnterDir(nav, FilterMp3)
	require.NoError(t, err)
	require.True(t, entered)
	require.Equal(t, `C:\ALBUM`, fs.CurrentPath())

	current, err := nav.Current()
	require.NoError(t, err)
	require.Equal(t, "TRACK01", current.Name)

	// Back out; the EMPTY directory holds nothing that matches.
	_, err = nav.GotoParent()
	require.NoError(t, err)

	var entry DirectoryEntry
	for {
		entry, err = nav.GotoNext(FilterDir)
		require.NoError(t, err)

		if entry.Name == "EMPTY" {
			break
		}
	}

	entered, err = FileEnterDir(nav, FilterMp3)
	require.NoError(t, err)
	require.False(t, entered)
	require.Equal(t, `C:\`, fs.CurrentPath())
}
