// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

// Package zip decodes the on-the-wire shapes of PKZIP records: central
// directory headers, local file headers, the Zip64 extensions, and the
// WinZip AES extra field. It touches the underlying bytes as little as
// possible and leaves every policy decision (symlink handling, crypto,
// tree building) to the caller.
package zip

import (
	"encoding/binary"
	"errors"
	"time"
)

// Signatures, little-endian on the wire.
const (
	SigLocalHeader   = 0x04034b50
	SigCentralHeader = 0x02014b50
	SigEOCD          = 0x06054b50
	SigEOCD64        = 0x06064b50
	SigEOCD64Locator = 0x07064b50
)

// Extra field ids this package understands.
const (
	ExtraZip64    = 0x0001
	ExtraNTFS     = 0x000a
	ExtraUnixInfo = 0x5455
	ExtraUnix     = 0x5855
	ExtraWinZipAE = 0x9901
)

const winZipAEVendorID = 0x4541 // "AE"

// ErrExtraField is returned when an extra-field's declared length doesn't
// match the bytes actually available.
var ErrExtraField = errors.New("zip: malformed extra field")

// CentralHeader is the fixed-size part of a central directory record,
// decoded in place. Filename/extra/comment follow it in the stream.
type CentralHeader struct {
	VersionMadeBy    uint16
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLen          uint16
	ExtraLen         uint16
	CommentLen       uint16
	DiskStart        uint16
	InternalAttrs    uint16
	ExternalAttrs    uint32
	LocalHeaderOff   uint32
}

// DecodeCentralHeader reads the fixed 46-byte central directory header at
// the front of buf (sans signature, already checked by the caller).
func DecodeCentralHeader(buf []byte) (CentralHeader, error) {
	if len(buf) < 42 {
		return CentralHeader{}, ErrExtraField
	}
	return CentralHeader{
		VersionMadeBy:    binary.LittleEndian.Uint16(buf[0:]),
		VersionNeeded:    binary.LittleEndian.Uint16(buf[2:]),
		Flags:            binary.LittleEndian.Uint16(buf[4:]),
		Method:           binary.LittleEndian.Uint16(buf[6:]),
		ModTime:          binary.LittleEndian.Uint16(buf[8:]),
		ModDate:          binary.LittleEndian.Uint16(buf[10:]),
		CRC32:            binary.LittleEndian.Uint32(buf[12:]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[16:]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[20:]),
		NameLen:          binary.LittleEndian.Uint16(buf[24:]),
		ExtraLen:         binary.LittleEndian.Uint16(buf[26:]),
		CommentLen:       binary.LittleEndian.Uint16(buf[28:]),
		DiskStart:        binary.LittleEndian.Uint16(buf[30:]),
		InternalAttrs:    binary.LittleEndian.Uint16(buf[32:]),
		ExternalAttrs:    binary.LittleEndian.Uint32(buf[34:]),
		LocalHeaderOff:   binary.LittleEndian.Uint32(buf[38:]),
	}, nil
}

// CentralHeaderSize is the length of the fixed part of a central directory
// record, signature included.
const CentralHeaderSize = 46

// LocalHeader is the fixed-size part of a local file header.
type LocalHeader struct {
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLen          uint16
	ExtraLen         uint16
}

// LocalHeaderSize is the length of the fixed part of a local file header,
// signature included.
const LocalHeaderSize = 30

// DecodeLocalHeader reads the fixed 26-byte body following the signature.
func DecodeLocalHeader(buf []byte) (LocalHeader, error) {
	if len(buf) < 26 {
		return LocalHeader{}, ErrExtraField
	}
	return LocalHeader{
		VersionNeeded:    binary.LittleEndian.Uint16(buf[0:]),
		Flags:            binary.LittleEndian.Uint16(buf[2:]),
		Method:           binary.LittleEndian.Uint16(buf[4:]),
		ModTime:          binary.LittleEndian.Uint16(buf[6:]),
		ModDate:          binary.LittleEndian.Uint16(buf[8:]),
		CRC32:            binary.LittleEndian.Uint32(buf[10:]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[14:]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[18:]),
		NameLen:          binary.LittleEndian.Uint16(buf[22:]),
		ExtraLen:         binary.LittleEndian.Uint16(buf[24:]),
	}, nil
}

// ParseExtra walks a (id:u16, len:u16, payload) run, stopping silently at
// the first malformed record (matches the teacher's tolerant behavior:
// central directory extras from real-world tools are frequently padded).
func ParseExtra(x []byte) map[int][]byte {
	ret := make(map[int][]byte)
	for len(x) >= 4 {
		kind := int(binary.LittleEndian.Uint16(x))
		size := int(binary.LittleEndian.Uint16(x[2:]))
		x = x[4:]
		if size > len(x) {
			break
		}
		ret[kind] = x[:size]
		x = x[size:]
	}
	return ret
}

// Zip64Fields reads the widened 64-bit values out of a Zip64 extra field
// (id 0x0001), in the fixed order spec.md §4.4 requires: uncompressed
// size, compressed size, local header offset, starting disk -- but only
// for the fields whose 32-bit counterpart was the 0xFFFFFFFF sentinel.
func Zip64Fields(extra []byte, wantUncompressed, wantCompressed, wantOffset, wantDisk bool) (uncompressed, compressed, offset uint64, disk uint32, err error) {
	need := func(n int) bool {
		if len(extra) < n {
			return false
		}
		return true
	}
	if wantUncompressed {
		if !need(8) {
			return 0, 0, 0, 0, ErrExtraField
		}
		uncompressed = binary.LittleEndian.Uint64(extra)
		extra = extra[8:]
	}
	if wantCompressed {
		if !need(8) {
			return 0, 0, 0, 0, ErrExtraField
		}
		compressed = binary.LittleEndian.Uint64(extra)
		extra = extra[8:]
	}
	if wantOffset {
		if !need(8) {
			return 0, 0, 0, 0, ErrExtraField
		}
		offset = binary.LittleEndian.Uint64(extra)
		extra = extra[8:]
	}
	if wantDisk {
		if !need(4) {
			return 0, 0, 0, 0, ErrExtraField
		}
		disk = binary.LittleEndian.Uint32(extra)
		extra = extra[4:]
	}
	return uncompressed, compressed, offset, disk, nil
}

// AESExtra is the decoded WinZip AES extra field (id 0x9901).
type AESExtra struct {
	VendorVersion  uint16
	StrengthBits   int // 128, 192, or 256
	RealMethod     uint16
	SaltLen        int
	VerifierLen    int
}

// ParseAESExtra decodes the payload of extra field 0x9901.
func ParseAESExtra(payload []byte) (AESExtra, error) {
	if len(payload) < 7 {
		return AESExtra{}, ErrExtraField
	}
	vendorVersion := binary.LittleEndian.Uint16(payload[0:])
	vendorID := binary.LittleEndian.Uint16(payload[2:])
	if vendorVersion != 1 && vendorVersion != 2 {
		return AESExtra{}, ErrExtraField
	}
	if vendorID != winZipAEVendorID {
		return AESExtra{}, ErrExtraField
	}
	strengthTag := payload[4]
	var bits int
	switch strengthTag {
	case 1:
		bits = 128
	case 2:
		bits = 192
	case 3:
		bits = 256
	default:
		return AESExtra{}, ErrExtraField
	}
	method := binary.LittleEndian.Uint16(payload[5:])
	return AESExtra{
		VendorVersion: vendorVersion,
		StrengthBits:  bits,
		RealMethod:    method,
		SaltLen:       bits / 16,
		VerifierLen:   2,
	}, nil
}

// DOSTimeToUnix decodes a packed DOS date/time into epoch seconds using
// the host's local-time-to-epoch conversion, the way the reference
// implementation lets the C library's mktime decide DST.
func DOSTimeToUnix(dosDate, dosTime uint16) int64 {
	t := time.Date(
		int(dosDate>>9)+1980,
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f)*2,
		0,
		time.Local,
	)
	return t.Unix()
}

// TimeFromExtraField extracts a higher-resolution mtime from an NTFS or
// Unix extra field, if present, returning the zero Time otherwise. This
// is an additive refinement over the DOS-time field (SPEC_FULL.md C4).
func TimeFromExtraField(kind int, payload []byte) time.Time {
	switch kind {
	case ExtraNTFS:
		if len(payload) < 4 {
			return time.Time{}
		}
		subfields := ParseExtra(payload[4:])
		times, ok := subfields[1]
		if !ok || len(times) < 8 {
			return time.Time{}
		}
		const ticksPerSecond = 1e7
		ts := int64(binary.LittleEndian.Uint64(times))
		secs := ts / ticksPerSecond
		nsecs := (1e9 / ticksPerSecond) * (ts % ticksPerSecond)
		epoch := time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)
		return time.Unix(epoch.Unix()+secs, nsecs)
	case ExtraUnix, ExtraUnixInfo:
		if kind == ExtraUnixInfo {
			if len(payload) < 5 || payload[0]&1 == 0 {
				return time.Time{}
			}
			return time.Unix(int64(binary.LittleEndian.Uint32(payload[1:])), 0)
		}
		if len(payload) < 8 {
			return time.Time{}
		}
		return time.Unix(int64(binary.LittleEndian.Uint32(payload[4:])), 0)
	}
	return time.Time{}
}
