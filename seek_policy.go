// This file implements the player-facing seek helpers layered over the
// navigator: time-biased previous, next with optional wrap, and directory
// entry with restore-on-empty.

package fatiso

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// FSeekTime is the played-seconds threshold below which a previous-seek
// really moves to the previous file instead of restarting the current one.
const FSeekTime = 4

// PlayClock reports how long the current file has been playing. The clock
// source is external to this engine.
type PlayClock interface {
	Minutes() int
	Seconds() int
}

// FileSeekPrev selects the previous file carrying one of the filtered
// types. When the clock says the current file has played for FSeekTime
// seconds or longer, the selection does not move: the caller restarts the
// current file instead.
//
// The boolean result reports whether a file is selected afterwards. With
// loop set, walking off the first entry wraps to the last.
func FileSeekPrev(nav *Navigator, clock PlayClock, filter TypeFilter, loop bool) (selected bool, err error) {
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

	if clock.Seconds() >= FSeekTime || clock.Minutes() != 0 {
		// Played long enough: restart the current file, no cursor movement.
		return true, nil
	}

	_, err = nav.GotoPrev(filter)
	if err == nil {
		return true, nil
	}

	if err != ErrNoMoreEntries {
		log.PanicIf(err)
	}

	// Walked off the beginning of the listing.
	if loop != true {
		return false, nil
	}

	_, err = nav.GotoLast(filter)
	if err == ErrNoMoreEntries {
		return false, nil
	}

	log.PanicIf(err)

	return true, nil
}

// FileSeekNext selects the next file carrying one of the filtered types.
// With loop set, walking off the last entry wraps to the first.
func FileSeekNext(nav *Navigator, filter TypeFilter, loop bool) (selected bool, err error) {
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

	_, err = nav.GotoNext(filter)
	if err == nil {
		return true, nil
	}

	if err != ErrNoMoreEntries {
		log.PanicIf(err)
	}

	if loop != true {
		return false, nil
	}

	_, err = nav.GotoFirst(filter)
	if err == ErrNoMoreEntries {
		return false, nil
	}

	log.PanicIf(err)

	return true, nil
}

// FileEnterDir descends into the directory under the cursor when it holds
// at least one filtered entry; an empty or mismatched directory leaves the
// selection where it was.
func FileEnterDir(nav *Navigator, filter TypeFilter) (entered bool, err error) {
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

	current, err := nav.Current()
	if err == ErrNoMoreEntries {
		return false, nil
	}

	log.PanicIf(err)

	if current.Kind != KindDirectory {
		return false, nil
	}

	_, err = nav.GotoChild(filter)
	if err == ErrNoMatchingFiles {
		return false, nil
	}

	log.PanicIf(err)

	return true, nil
}
