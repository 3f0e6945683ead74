// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"encoding/binary"

	"github.com/zipvfs/zipvfs/internal/zip"
)

const (
	maxCommentLen = 65535
	eocdMinLen    = 22
	maxEOCDScan   = eocdMinLen + maxCommentLen // 65557, spec.md §4.3
	eocdWindow    = 256
)

// centralDirLocation is what C3 hands to C4: where the central directory
// starts, how many records it holds, and the bias every local-header
// offset must be corrected by (spec.md §4.3's data_start).
type centralDirLocation struct {
	centralDirOffset int64
	centralDirSize   int64
	entryCount       uint64
	dataStart        int64
	zip64            bool
}

// locateCentralDirectory finds the EOCD (scanning backward in sliding
// 256-byte windows, carrying the last 4 bytes across window boundaries
// so the signature is never split) and, if present, the Zip64 EOCD,
// tolerating an arbitrary prefix before the archive proper (spec.md
// §4.3, self-extractors).
func locateCentralDirectory(src Source, size int64) (centralDirLocation, error) {
	eocdPos, eocd, err := findEOCD(src, size)
	if err != nil {
		return centralDirLocation{}, err
	}

	diskThis := binary.LittleEndian.Uint16(eocd[4:])
	diskCentral := binary.LittleEndian.Uint16(eocd[6:])
	entryCount := uint64(binary.LittleEndian.Uint16(eocd[10:]))
	centralSize := int64(binary.LittleEndian.Uint32(eocd[12:]))
	centralOffset := int64(binary.LittleEndian.Uint32(eocd[16:]))

	if diskThis != 0 || diskCentral != 0 {
		return centralDirLocation{}, newErr(CodeCorrupt, "", "spanned archives are not supported")
	}

	is64 := entryCount == 0xffff || uint32(centralSize) == 0xffffffff || uint32(centralOffset) == 0xffffffff

	if !is64 {
		dataStart := eocdPos - (centralOffset + centralSize)
		return centralDirLocation{
			centralDirOffset: centralOffset,
			centralDirSize:   centralSize,
			entryCount:       entryCount,
			dataStart:        dataStart,
		}, nil
	}

	locPos := eocdPos - 20
	if locPos < 0 {
		return centralDirLocation{}, newErr(CodeCorrupt, "", "missing Zip64 EOCD locator")
	}
	locBuf := make([]byte, 20)
	if err := seekRead(src, locPos, locBuf); err != nil {
		return centralDirLocation{}, err
	}
	if binary.LittleEndian.Uint32(locBuf) != zip.SigEOCD64Locator {
		return centralDirLocation{}, newErr(CodeCorrupt, "", "missing Zip64 EOCD locator signature")
	}
	storedOffset := int64(binary.LittleEndian.Uint64(locBuf[8:]))

	actualPos, eocd64, err := findZip64EOCD(src, size, eocdPos, storedOffset)
	if err != nil {
		return centralDirLocation{}, err
	}

	diskThis64 := binary.LittleEndian.Uint32(eocd64[16:])
	diskCentral64 := binary.LittleEndian.Uint32(eocd64[20:])
	if diskThis64 != 0 || diskCentral64 != 0 {
		return centralDirLocation{}, newErr(CodeCorrupt, "", "spanned archives are not supported")
	}
	entryCount64 := binary.LittleEndian.Uint64(eocd64[32:])
	centralSize64 := int64(binary.LittleEndian.Uint64(eocd64[40:]))
	centralOffset64 := int64(binary.LittleEndian.Uint64(eocd64[48:]))

	dataStart := actualPos - storedOffset
	return centralDirLocation{
		centralDirOffset: centralOffset64,
		centralDirSize:   centralSize64,
		entryCount:       entryCount64,
		dataStart:        dataStart,
		zip64:            true,
	}, nil
}

// findEOCD scans backward from EOF for signature 0x06054b50, at most
// maxEOCDScan bytes, in sliding eocdWindow-byte windows that overlap by
// 4 bytes so the signature can never straddle a window boundary
// unnoticed. The match closest to EOF wins.
func findEOCD(src Source, size int64) (int64, []byte, error) {
	if size < eocdMinLen {
		return 0, nil, newErr(CodeUnsupported, "", "archive too small for EOCD")
	}

	scanLen := size
	if scanLen > maxEOCDScan {
		scanLen = maxEOCDScan
	}
	start := size - scanLen

	// Read overlapping windows from the back; keep the carried tail
	// from the previous (later) window so a signature split across a
	// boundary is still seen.
	var carry []byte
	pos := size
	for pos > start {
		winStart := pos - eocdWindow
		if winStart < start {
			winStart = start
		}
		winLen := pos - winStart
		buf := make([]byte, winLen+int64(len(carry)))
		if err := seekRead(src, winStart, buf[:winLen]); err != nil {
			return 0, nil, err
		}
		copy(buf[winLen:], carry)

		if idx := lastIndexEOCD(buf); idx >= 0 {
			eocdPos := winStart + int64(idx)
			if size-eocdPos >= eocdMinLen {
				// The fixed record can run past buf when the signature
				// was found in the carried tail, so read it from src.
				fixed := make([]byte, eocdMinLen)
				if err := seekRead(src, eocdPos, fixed); err != nil {
					return 0, nil, err
				}
				eocdLen := eocdMinLen + int(binary.LittleEndian.Uint16(fixed[20:]))
				if eocdPos+int64(eocdLen) <= size {
					full := make([]byte, eocdLen)
					if err := seekRead(src, eocdPos, full); err != nil {
						return 0, nil, err
					}
					return eocdPos, full, nil
				}
			}
		}

		if winLen >= 4 {
			carry = append([]byte(nil), buf[:4]...)
		} else {
			carry = append([]byte(nil), buf[:winLen]...)
		}
		pos = winStart
	}
	return 0, nil, newErr(CodeUnsupported, "", "EOCD signature not found")
}

// lastIndexEOCD returns the offset of the last (closest to EOF)
// occurrence of the EOCD signature in buf, or -1.
func lastIndexEOCD(buf []byte) int {
	for i := len(buf) - 4; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) == zip.SigEOCD {
			return i
		}
	}
	return -1
}

// findZip64EOCD tries, in order, the stored locator offset, eocdPos-56,
// eocdPos-84, and finally a brute-force backward scan over 256 KiB
// between them (spec.md §4.3): the stored offset is untrusted because
// self-extractors prepend arbitrary bytes the original author never
// saw.
func findZip64EOCD(src Source, size, eocdPos, storedOffset int64) (int64, []byte, error) {
	try := func(pos int64) ([]byte, bool) {
		if pos < 0 || pos+56 > size {
			return nil, false
		}
		buf := make([]byte, 56)
		if err := seekRead(src, pos, buf); err != nil {
			return nil, false
		}
		if binary.LittleEndian.Uint32(buf) != zip.SigEOCD64 {
			return nil, false
		}
		return buf, true
	}

	candidates := []int64{storedOffset, eocdPos - 56, eocdPos - 84}
	for _, pos := range candidates {
		if buf, ok := try(pos); ok {
			return pos, buf, nil
		}
	}

	// Brute-force scan: search backward over the 256 KiB preceding the
	// locator, which bounds both candidates above.
	scanStart := eocdPos - 84 - 256*1024
	if scanStart < 0 {
		scanStart = 0
	}
	scanEnd := eocdPos
	chunk := make([]byte, scanEnd-scanStart)
	if err := seekRead(src, scanStart, chunk); err != nil {
		return 0, nil, err
	}
	for i := len(chunk) - 4; i >= 0; i-- {
		if binary.LittleEndian.Uint32(chunk[i:]) == zip.SigEOCD64 {
			pos := scanStart + int64(i)
			if buf, ok := try(pos); ok {
				return pos, buf, nil
			}
		}
	}
	return 0, nil, newErr(CodeCorrupt, "", "Zip64 EOCD record not found")
}
