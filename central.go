// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/zipvfs/zipvfs/internal/zip"
)

// nonUnixHosts are the version_made_by upper-byte values
// spec.md §4.4 lists as hosts that never encode POSIX symlink bits in
// their external attributes (0 DOS/FAT, 1 Amiga, 2 OpenVMS, 4 VM/CMS,
// 6 CP/M, 11 NTFS, 13 Acorn RISC OS, 14 VFAT, 15 alternate MVS, 18 OS/400).
var nonUnixHosts = map[byte]bool{0: true, 1: true, 2: true, 4: true, 6: true, 11: true, 13: true, 14: true, 15: true, 18: true}

const symlinkFileTypeMask = 0170000
const symlinkFileType = 0120000

// parseCentralDirectory walks exactly loc.entryCount central directory
// records starting at loc.centralDirOffset+loc.dataStart (spec.md §4.4),
// decoding each into an *Entry and indexing it via t.hashEntry (C5).
func parseCentralDirectory(src Source, loc centralDirLocation, t *tree, hasEncrypted *bool) error {
	if err := src.Seek(loc.centralDirOffset + loc.dataStart); err != nil {
		return wrapErr(CodeIO, "", err)
	}

	for i := uint64(0); i < loc.entryCount; i++ {
		if err := parseOneCentralRecord(src, loc, t, hasEncrypted); err != nil {
			return err
		}
	}
	return nil
}

func parseOneCentralRecord(src Source, loc centralDirLocation, t *tree, hasEncrypted *bool) error {
	fixed := make([]byte, zip.CentralHeaderSize)
	if err := readAll(src, fixed); err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(fixed) != zip.SigCentralHeader {
		return newErr(CodeCorrupt, "", "bad central directory record signature")
	}
	hdr, err := zip.DecodeCentralHeader(fixed[4:])
	if err != nil {
		return wrapErr(CodeCorrupt, "", err)
	}
	if hdr.DiskStart != 0 {
		return newErr(CodeCorrupt, "", "spanned archives are not supported")
	}

	rest := make([]byte, int(hdr.NameLen)+int(hdr.ExtraLen)+int(hdr.CommentLen))
	if err := readAll(src, rest); err != nil {
		return err
	}
	nameBytes := rest[:hdr.NameLen]
	extraBytes := rest[hdr.NameLen : int(hdr.NameLen)+int(hdr.ExtraLen)]

	hostType := byte(hdr.VersionMadeBy >> 8)
	name := string(nameBytes)
	if hostType == 0 {
		name = strings.ReplaceAll(name, "\\", "/")
	}
	name = strings.TrimPrefix(name, "/")

	extra := zip.ParseExtra(extraBytes)

	uncompressed := uint64(hdr.UncompressedSize)
	compressed := uint64(hdr.CompressedSize)
	localOffset := uint64(hdr.LocalHeaderOff)
	disk := uint32(hdr.DiskStart)

	if zfield, ok := extra[zip.ExtraZip64]; ok {
		wantU := hdr.UncompressedSize == 0xffffffff
		wantC := hdr.CompressedSize == 0xffffffff
		wantO := hdr.LocalHeaderOff == 0xffffffff
		wantD := hdr.DiskStart == 0xffff
		u, c, o, d, err := zip.Zip64Fields(zfield, wantU, wantC, wantO, wantD)
		if err != nil {
			return wrapErr(CodeCorrupt, name, err)
		}
		if wantU {
			uncompressed = u
		}
		if wantC {
			compressed = c
		}
		if wantO {
			localOffset = o
		}
		if wantD {
			disk = d
		}
	}
	if disk != 0 {
		return newErr(CodeCorrupt, name, "spanned archives are not supported")
	}

	e := &Entry{
		name:              strings.TrimSuffix(name, "/"),
		versionMadeBy:     hdr.VersionMadeBy,
		versionNeeded:     hdr.VersionNeeded,
		generalBits:       hdr.Flags,
		compressionMethod: hdr.Method,
		crc32:             hdr.CRC32,
		compressedSize:    compressed,
		uncompressedSize:  uncompressed,
		dosModTime:        hdr.ModTime,
		dosModDate:        hdr.ModDate,
		dataOffset:        int64(localOffset) + loc.dataStart,
	}
	e.lastModTime = zip.DOSTimeToUnix(hdr.ModDate, hdr.ModTime)
	for _, id := range sortedExtraIDsDescending(extra) {
		if ts := zip.TimeFromExtraField(id, extra[id]); !ts.IsZero() {
			e.lastModTime = ts.Unix()
		}
	}

	if aesPayload, ok := extra[zip.ExtraWinZipAE]; ok && e.compressionMethod == 99 {
		aesInfo, err := zip.ParseAESExtra(aesPayload)
		if err != nil {
			return wrapErr(CodeCorrupt, name, err)
		}
		e.aesParams = &AESParams{StrengthBits: aesInfo.StrengthBits, SaltLen: aesInfo.SaltLen, InnerMethod: aesInfo.RealMethod}
		e.compressionMethod = aesInfo.RealMethod
		*hasEncrypted = true
	} else if e.generalBits&0x1 != 0 {
		*hasEncrypted = true
	}

	switch {
	case strings.HasSuffix(name, "/"):
		e.kind = KindDirectory
		e.uncompressedSize = 0
	case isUnixSymlink(hostType, hdr.ExternalAttrs, uncompressed):
		e.kind = KindUnresolvedSymlink
	default:
		e.kind = KindUnresolvedFile
	}

	if _, err := t.hashEntry(e); err != nil {
		return err
	}
	return nil
}

// sortedExtraIDsDescending gives deterministic processing order for
// extra fields that may each independently refine the mtime (NTFS,
// Info-ZIP Unix, extended timestamp): highest id first, so that when
// more than one is present the lowest-id field's value wins, matching
// the teacher's own descending walk in internal/zip/times.go.
func sortedExtraIDsDescending(extra map[int][]byte) []int {
	ids := make([]int, 0, len(extra))
	for id := range extra {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	return ids
}

func isUnixSymlink(hostType byte, externalAttrs uint32, uncompressedSize uint64) bool {
	if nonUnixHosts[hostType] {
		return false
	}
	mode := externalAttrs >> 16
	return mode&symlinkFileTypeMask == symlinkFileType && uncompressedSize > 0
}
