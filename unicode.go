package fatiso

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/dsoprea/go-logging"
)

var (
	ucs2leDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	ucs2beDecoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
)

// decodeUcs2Le decodes raw UCS-2LE data (VFAT long filenames), truncating at
// the first NUL code-unit.
func decodeUcs2Le(raw []byte) (s string, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	end := len(raw) &^ 1
	for i := 0; i < end; i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			end = i
			break
		}
	}

	decoded, err := ucs2leDecoder.Bytes(raw[:end])
	log.PanicIf(err)

	return string(decoded), nil
}

// decodeUcs2Be decodes raw UCS-2BE data (Joliet identifiers), truncating at
// the first NUL code-unit.
func decodeUcs2Be(raw []byte) (s string, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	end := len(raw) &^ 1
	for i := 0; i < end; i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			end = i
			break
		}
	}

	decoded, err := ucs2beDecoder.Bytes(raw[:end])
	log.PanicIf(err)

	return string(decoded), nil
}

// upperAscii upper-cases ASCII letters only. On-disk name comparison is
// case-insensitive over the ASCII range; full Unicode folding is not
// performed.
func upperAscii(s string) string {
	out := []byte(s)
	changed := false

	for i := 0; i < len(out); i++ {
		if out[i] >= 'a' && out[i] <= 'z' {
			out[i] -= 'a' - 'A'
			changed = true
		}
	}

	if changed == false {
		return s
	}

	return string(out)
}
