// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"io"
	"path"
	"strings"

	"github.com/zipvfs/zipvfs/internal/zip"
)

// resolve drives an entry through the state machine in spec.md §4.6
// (C6). It is idempotent: a second call on an already-resolved or
// already-broken entry is a fast no-op (or a CodeCorrupt/CodeSymlinkLoop
// error, for the broken/resolving states respectively).
func (a *Archive) resolve(e *Entry) error {
	switch e.kind {
	case KindDirectory, KindResolved:
		return nil
	case KindResolving:
		return newErr(CodeSymlinkLoop, e.name, "")
	case KindBrokenFile, KindBrokenSymlink:
		return newErr(CodeCorrupt, e.name, "entry previously failed to resolve")
	}

	wasSymlink := e.kind == KindUnresolvedSymlink
	if wasSymlink {
		e.kind = KindResolving
	}

	if err := a.parseLocalHeader(e); err != nil {
		if wasSymlink {
			e.kind = KindBrokenSymlink
		} else {
			e.kind = KindBrokenFile
		}
		return err
	}

	if !wasSymlink {
		e.kind = KindResolved
		return nil
	}

	target, err := a.followSymlink(e)
	if err != nil {
		e.kind = KindBrokenSymlink
		return err
	}
	e.symlinkTarget = target
	e.kind = KindResolved
	return nil
}

// parseLocalHeader seeks to e's pre-resolution offset, validates the
// local file header, cross-checks sizes/CRC against the central
// directory record (tolerating the Jar/"streamed" zero-sentinel and the
// Zip64 0xFFFFFFFF sentinel), and advances e.dataOffset to the first
// payload byte (spec.md §4.6).
func (a *Archive) parseLocalHeader(e *Entry) error {
	src := a.src
	if err := src.Seek(e.dataOffset); err != nil {
		return wrapErr(CodeIO, e.name, err)
	}
	sig, err := readU32LE(src)
	if err != nil {
		return err
	}
	if sig != zip.SigLocalHeader {
		return newErr(CodeCorrupt, e.name, "bad local file header signature")
	}
	fixed := make([]byte, zip.LocalHeaderSize-4)
	if err := readAll(src, fixed); err != nil {
		return err
	}
	lh, err := zip.DecodeLocalHeader(fixed)
	if err != nil {
		return wrapErr(CodeCorrupt, e.name, err)
	}

	if !localFieldMatches(uint64(lh.VersionNeeded), uint64(e.versionNeeded)) {
		return newErr(CodeCorrupt, e.name, "version_needed mismatch between local and central headers")
	}
	if !localFieldMatches(uint64(lh.CompressedSize), e.compressedSize) {
		return newErr(CodeCorrupt, e.name, "compressed size mismatch between local and central headers")
	}
	if e.aesParams == nil && !localFieldMatches(uint64(lh.UncompressedSize), e.uncompressedSize) {
		return newErr(CodeCorrupt, e.name, "uncompressed size mismatch between local and central headers")
	}
	if e.aesParams == nil && lh.CRC32 != 0 && lh.CRC32 != 0xffffffff && lh.CRC32 != e.crc32 {
		return newErr(CodeCorrupt, e.name, "CRC mismatch between local and central headers")
	}

	payloadOffset := e.dataOffset + zip.LocalHeaderSize + int64(lh.NameLen) + int64(lh.ExtraLen)

	switch {
	case e.aesParams != nil:
		saltLen := e.aesParams.SaltLen
		header := make([]byte, saltLen+2)
		if err := seekRead(src, payloadOffset, header); err != nil {
			return err
		}
		copy(e.aesParams.Salt[:], header[:saltLen])
		copy(e.aesParams.Verifier[:], header[saltLen:])
		payloadOffset += int64(saltLen + 2)
	case e.generalBits&0x1 != 0:
		// Traditional PKWARE header: a fixed 12 bytes, skipped here
		// because its length never depends on the password. The bytes
		// themselves are read and verified lazily, once a password is
		// available, in newOpenFile (spec.md §4.2, §4.7).
		payloadOffset += traditionalHeaderLen
	}

	e.dataOffset = payloadOffset
	return nil
}

const traditionalHeaderLen = 12

// localFieldMatches tolerates a local-header field of zero (general bit
// 3 / "Jar" producers defer the real value to the data descriptor) or
// 0xFFFFFFFF (the Zip64 sentinel, widened value lives in the central
// directory only) in addition to an exact match.
func localFieldMatches(local, central uint64) bool {
	return local == central || local == 0 || local == 0xffffffff
}

// followSymlink reads the entry's payload as link text, normalizes it
// relative to the symlink's own directory, looks up the target, and
// resolves it recursively, flattening symlink chains so
// e.symlinkTarget always ends up pointing at a non-symlink entry
// (spec.md §4.6, §3 invariant 3).
func (a *Archive) followSymlink(e *Entry) (*Entry, error) {
	linkText, err := a.readSymlinkText(e)
	if err != nil {
		return nil, wrapErr(CodeCorrupt, e.name, err)
	}

	hostType := byte(e.versionMadeBy >> 8)
	if hostType == 0 {
		linkText = strings.ReplaceAll(linkText, "\\", "/")
	}

	targetPath := path.Join(path.Dir(e.name), linkText)
	targetPath = strings.TrimPrefix(targetPath, "/")
	if targetPath == "." || targetPath == ".." || strings.HasPrefix(targetPath, "../") {
		return nil, newErr(CodeCorrupt, e.name, "symlink escapes the archive root")
	}

	target := a.tree.findEntry(targetPath)
	if target == nil {
		return nil, newErr(CodeCorrupt, e.name, "symlink target not found")
	}

	if err := a.resolve(target); err != nil {
		return nil, err
	}
	if target.symlinkTarget != nil {
		return target.symlinkTarget, nil
	}
	return target, nil
}

// readSymlinkText reads e's full uncompressed payload (inflating first
// if necessary) as the literal link text.
func (a *Archive) readSymlinkText(e *Entry) (string, error) {
	of, err := a.newOpenFile(e, nil)
	if err != nil {
		return "", err
	}
	defer of.Destroy()

	buf := make([]byte, e.uncompressedSize)
	n, err := io.ReadFull(of, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return string(buf[:n]), nil
}
