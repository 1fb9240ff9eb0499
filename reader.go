// This file implements the streaming byte cursors over the sector device.
// The directory iterator and the file cursor each own one so that directory
// enumeration does not thrash the sector cache of an open file.

package fatiso

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// sectorReader is a byte-granular cursor over the device. It caches exactly
// one sector. After every successful read, (lba, offset) point at the next
// unread byte; crossing offset 512 is the caller's responsibility because
// the successor sector depends on whether a cluster chain or a contiguous
// extent is being walked.
type sectorReader struct {
	dev SectorDevice

	lba    uint32
	offset uint32

	buf      [SectorSize]byte
	bufLba   uint32
	bufValid bool
}

func newSectorReader(dev SectorDevice) *sectorReader {
	return &sectorReader{
		dev: dev,
	}
}

// open positions the cursor at byte zero of the given sector.
func (sr *sectorReader) open(lba uint32) (err error) {
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

	err = sr.seekTo(lba, 0)
	log.PanicIf(err)

	return nil
}

// seekTo repositions the cursor. O(1): at most one sector load.
func (sr *sectorReader) seekTo(lba, offset uint32) (err error) {
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

	if offset >= SectorSize {
		log.Panicf("seek offset exceeds sector size: (%d)", offset)
	}

	sr.lba = lba
	sr.offset = offset

	err = sr.load()
	log.PanicIf(err)

	return nil
}

// load ensures the cached sector matches the cursor sector.
func (sr *sectorReader) load() (err error) {
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

	if sr.bufValid == true && sr.bufLba == sr.lba {
		return nil
	}

	err = sr.dev.ReadSector(sr.buf[:], sr.lba)
	log.PanicIf(err)

	sr.bufLba = sr.lba
	sr.bufValid = true

	return nil
}

// sector returns the cached 512 bytes for the cursor sector.
func (sr *sectorReader) sector() (data []byte, err error) {
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

	err = sr.load()
	log.PanicIf(err)

	return sr.buf[:], nil
}

// readByte returns the byte under the cursor and advances by one. The caller
// must advance the sector itself when offset reaches 512.
func (sr *sectorReader) readByte() (b byte, err error) {
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

	if sr.offset >= SectorSize {
		log.Panicf("byte cursor ran past the sector: (%d)", sr.offset)
	}

	err = sr.load()
	log.PanicIf(err)

	b = sr.buf[sr.offset]
	sr.offset++

	return b, nil
}

// invalidate drops the cached sector so the next access rereads the device.
func (sr *sectorReader) invalidate() {
	sr.bufValid = false
}

// getUint16Le performs an explicit unaligned little-endian read from an
// arbitrary offset of a raw sector.
func getUint16Le(data []byte, offset int) uint16 {
	return uint16(data[offset]) | uint16(data[offset+1])<<8
}

// getUint32Le performs an explicit unaligned little-endian read from an
// arbitrary offset of a raw sector.
func getUint32Le(data []byte, offset int) uint32 {
	return uint32(data[offset]) |
		uint32(data[offset+1])<<8 |
		uint32(data[offset+2])<<16 |
		uint32(data[offset+3])<<24
}
