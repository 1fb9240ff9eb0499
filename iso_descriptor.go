// This file manages the ISO9660 volume-descriptor set. Descriptors are
// 2048-byte records starting at logical block 16; the engine walks them
// until the set terminator and keeps the primary descriptor, preferring a
// Joliet supplementary descriptor when one is present.

package fatiso

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	isoDescriptorBlock = 16
	isoDescriptorSize  = 2048

	isoLogicalBlockSizeOffset = 128
	isoVolumeIdOffset         = 40
	isoVolumeIdLength         = 32
	isoVolumeSpaceSizeOffset  = 80
	isoRootRecordOffset       = 156
	isoRootRecordLength       = 34
	isoEscapeSequencesOffset  = 88
)

const (
	isoVdTypeBoot          = 0
	isoVdTypePrimary       = 1
	isoVdTypeSupplementary = 2
	isoVdTypePartition     = 3
	isoVdTypeTerminator    = 0xff
)

var (
	requiredIsoStandardId = []byte("CD001")
)

// isoVolumeDescriptorHeader is the 7-byte header common to every volume
// descriptor.
type isoVolumeDescriptorHeader struct {
	// Type: 1 is the primary descriptor, 2 the supplementary (Joliet when
	// the escape sequences say so), FFh the set terminator.
	Type uint8

	// StandardId: always "CD001".
	StandardId [5]byte

	// Version: always 1.
	Version uint8
}

// isoVolume is what the engine retains from the descriptor set.
type isoVolume struct {
	joliet bool

	volumeId string

	// volumeSpaceSize is the volume size in logical blocks.
	volumeSpaceSize uint32

	logicalBlockSize uint32

	rootExtentStart uint32
	rootExtentSize  uint32
}

// isJolietEscape recognizes the UCS-2 escape sequences (%/@, %/C, %/E) that
// mark a supplementary descriptor as Joliet.
func isJolietEscape(escapes []byte) bool {
	if len(escapes) < 3 || escapes[0] != 0x25 || escapes[1] != 0x2f {
		return false
	}

	return escapes[2] == 0x40 || escapes[2] == 0x43 || escapes[2] == 0x45
}

// readIsoDescriptorBlock reads one 2048-byte descriptor, which spans four
// device sectors.
func readIsoDescriptorBlock(dev SectorDevice, base, block uint32) (raw []byte, err error) {
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

	raw = make([]byte, isoDescriptorSize)

	sectorsPerBlock := uint32(isoDescriptorSize / SectorSize)
	firstLba := base + block*sectorsPerBlock

	for i := uint32(0); i < sectorsPerBlock; i++ {
		err := dev.ReadSector(raw[i*SectorSize:(i+1)*SectorSize], firstLba+i)
		log.PanicIf(err)
	}

	return raw, nil
}

// parseIsoVolumeDescriptors walks the descriptor set at block 16 of the
// given partition base and returns the selected volume parameters, or
// ErrInvalidFormat when the set is missing or holds neither a primary nor a
// Joliet supplementary descriptor.
func parseIsoVolumeDescriptors(dev SectorDevice, base uint32) (volume isoVolume, err error) {
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

	found := false

	for block := uint32(isoDescriptorBlock); ; block++ {
		raw, err := readIsoDescriptorBlock(dev, base, block)
		log.PanicIf(err)

		vdh := isoVolumeDescriptorHeader{}

		err = restruct.Unpack(raw[:7], defaultEncoding, &vdh)
		log.PanicIf(err)

		if bytes.Equal(vdh.StandardId[:], requiredIsoStandardId) != true {
			if found == true {
				break
			}

			return volume, ErrInvalidFormat
		}

		if vdh.Type == isoVdTypeTerminator {
			break
		}

		if vdh.Type == isoVdTypePrimary && found == false {
			volume = parseIsoDescriptorBody(raw, false)
			found = true
		} else if vdh.Type == isoVdTypeSupplementary {
			if isJolietEscape(raw[isoEscapeSequencesOffset:isoEscapeSequencesOffset+3]) == true {
				// A Joliet descriptor supersedes the primary one.
				volume = parseIsoDescriptorBody(raw, true)
				found = true
			}
		}
	}

	if found != true {
		return volume, ErrInvalidFormat
	}

	return volume, nil
}

// parseIsoDescriptorBody extracts the retained fields from a primary or
// supplementary descriptor. ISO stores both-endian integers; only the
// little-endian half is read.
func parseIsoDescriptorBody(raw []byte, joliet bool) (volume isoVolume) {
	volume.joliet = joliet
	volume.volumeSpaceSize = getUint32Le(raw, isoVolumeSpaceSizeOffset)
	volume.logicalBlockSize = uint32(getUint16Le(raw, isoLogicalBlockSizeOffset))

	idRaw := raw[isoVolumeIdOffset : isoVolumeIdOffset+isoVolumeIdLength]

	if joliet == true {
		decoded, err := decodeUcs2Be(idRaw)
		if err == nil {
			volume.volumeId = trimPadding([]byte(decoded))
		}
	} else {
		volume.volumeId = trimPadding(idRaw)
	}

	// The 34-byte root directory record: extent location at record offset 2,
	// data length at record offset 10 (both-endian; little half only).
	record := raw[isoRootRecordOffset : isoRootRecordOffset+isoRootRecordLength]

	volume.rootExtentStart = getUint32Le(record, 2)
	volume.rootExtentSize = getUint32Le(record, 10)

	return volume
}

// String returns a descriptive string.
func (vdh isoVolumeDescriptorHeader) String() string {
	return fmt.Sprintf("IsoVolumeDescriptorHeader<TYPE=(%d) STANDARD-ID=[%s] VERSION=(%d)>",
		vdh.Type, string(vdh.StandardId[:]), vdh.Version)
}
