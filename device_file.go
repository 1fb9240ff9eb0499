// This file adapts an image file to the sector-device contract so the
// command-line tools (and tests) can mount ordinary image files.

package fatiso

import (
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// FileSectorDevice exposes any io.ReaderAt as a sector device. Reads past
// the end of a short image return zero-filled sectors, which mirrors how
// oversized raw media reads unwritten space.
type FileSectorDevice struct {
	r io.ReaderAt
}

// NewFileSectorDevice returns a device over the given reader.
func NewFileSectorDevice(r io.ReaderAt) *FileSectorDevice {
	return &FileSectorDevice{
		r: r,
	}
}

// ReadSector fills buf with the sector at the given LBA.
func (fsd *FileSectorDevice) ReadSector(buf []byte, lba uint32) (err error) {
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

	if len(buf) != SectorSize {
		log.Panicf("sector buffer not correct size: (%d)", len(buf))
	}

	n, err := fsd.r.ReadAt(buf, int64(lba)*SectorSize)
	if err == io.EOF {
		for i := n; i < SectorSize; i++ {
			buf[i] = 0
		}

		return nil
	}

	log.PanicIf(err)

	return nil
}
