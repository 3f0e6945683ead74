// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/zipvfs/zipvfs/internal/decompressioncache"
	"github.com/zipvfs/zipvfs/internal/zip"
	"github.com/zipvfs/zipvfs/internal/zipcrypto"
)

// decryptReader wraps a Source slice of ciphertext (bounded by
// remaining) and decrypts it byte-by-byte (traditional) or in CTR
// blocks (AES) as it is read. A nil trad and nil aes means the entry
// isn't encrypted and bytes pass through untouched.
type decryptReader struct {
	src       Source
	remaining int64
	trad      *zipcrypto.Traditional
	aes       *zipcrypto.AES
}

func (d *decryptReader) Read(p []byte) (int, error) {
	if d.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > d.remaining {
		p = p[:d.remaining]
	}
	n, err := d.src.Read(p)
	if n > 0 {
		buf := p[:n]
		switch {
		case d.aes != nil:
			d.aes.Decrypt(buf)
		case d.trad != nil:
			for i, c := range buf {
				buf[i] = d.trad.DecryptByte(c)
			}
		}
		d.remaining -= int64(n)
	}
	return n, err
}

// OpenFile is a single streaming cursor over one entry's decompressed
// content (spec.md §4.7, C7). It is not safe for concurrent use by
// multiple goroutines; Duplicate gives each goroutine its own cursor.
type OpenFile struct {
	archive  *Archive
	entry    *Entry
	password []byte

	method         uint16
	payloadStart   int64 // first compressed/ciphertext byte, src's offset space
	compressedSize int64 // ciphertext length, header/salt/verifier/MAC excluded
	uncompressedSize int64

	trad *zipcrypto.Traditional
	aes  *zipcrypto.AES

	src      Source
	dr       *decryptReader
	inflator io.ReadCloser // non-nil only for method == deflate
	checked  io.Reader     // non-nil only when Options.VerifyCRC32 is set

	uncompressedPosition int64

	ck *decompressioncache.ReaderAt // lazily built when Options.CheckpointCache is set
}

// newOpenFile builds a streaming cursor for e, which must already be
// resolved and, if it was a symlink, flattened to its final target.
func (a *Archive) newOpenFile(e *Entry, password []byte) (*OpenFile, error) {
	src, err := a.src.Duplicate()
	if err != nil {
		return nil, wrapErr(CodeIO, e.name, err)
	}

	of := &OpenFile{
		archive:          a,
		entry:            e,
		password:         password,
		method:           e.compressionMethod,
		uncompressedSize: int64(e.uncompressedSize),
		src:              src,
	}

	payloadStart := e.dataOffset
	compressedSize := int64(e.compressedSize)

	switch {
	case e.aesParams != nil:
		aes, err := zipcrypto.NewAES(password, e.aesParams.Salt[:e.aesParams.SaltLen], e.aesParams.StrengthBits, e.aesParams.Verifier)
		if err != nil {
			src.Destroy()
			return nil, newErr(CodeBadPassword, e.name, "")
		}
		of.aes = aes
		compressedSize -= int64(e.aesParams.SaltLen + 2 + 10) // salt+verifier prefix, 10-byte auth code trailer
	case e.generalBits&0x1 != 0:
		trad, err := verifyTraditionalHeader(src, payloadStart-traditionalHeaderLen, password, e)
		if err != nil {
			src.Destroy()
			return nil, err
		}
		of.trad = trad
		compressedSize -= traditionalHeaderLen
	}

	if compressedSize < 0 {
		src.Destroy()
		return nil, newErr(CodeCorrupt, e.name, "negative compressed size after header accounting")
	}

	of.payloadStart = payloadStart
	of.compressedSize = compressedSize

	if err := src.Seek(payloadStart); err != nil {
		src.Destroy()
		return nil, wrapErr(CodeIO, e.name, err)
	}
	of.dr = &decryptReader{src: src, remaining: compressedSize, trad: of.trad, aes: of.aes}

	switch of.method {
	case 0:
		// stored
	case 8:
		of.inflator = flate.NewReader(of.dr)
	default:
		src.Destroy()
		return nil, newErr(CodeUnsupported, e.name, "unsupported compression method")
	}

	if of.verifyCRC32() {
		checked := zip.NewChecksumReader(of.rawReader(), of.uncompressedSize, e.crc32)
		of.checked = checked
	} else if cc := a.opts.checkpointCache(); cc != nil && !of.directSeekable() {
		of.ck = cc.readerFor(of)
	}

	return of, nil
}

// rawReader is the plaintext-producing reader before any CRC check is
// layered on top: the inflator for deflate, the decrypt layer directly
// for stored.
func (of *OpenFile) rawReader() io.Reader {
	if of.inflator != nil {
		return of.inflator
	}
	return of.dr
}

func (of *OpenFile) verifyCRC32() bool { return of.archive.opts.verifyCRC32() }

// directSeekable reports whether Seek can reseat the byte source
// directly instead of replaying from the start: true for stored,
// not-traditionally-encrypted entries (including AES-wrapped ones,
// since CTR mode is randomly addressable) and false whenever a DEFLATE
// inflator, the traditional stream cipher's running key state, or a
// CRC-32 check (Options.VerifyCRC32) is in the loop (spec.md §4.7).
func (of *OpenFile) directSeekable() bool {
	return of.method == 0 && of.trad == nil && !of.verifyCRC32()
}

// verifyTraditionalHeader reads and decrypts the 12-byte PKWARE header
// at headerOffset and checks its verifier byte (spec.md §4.2): the high
// byte of dos_mod_time when general-purpose bit 3 (data descriptor) is
// set, otherwise the high byte of crc32.
func verifyTraditionalHeader(src Source, headerOffset int64, password []byte, e *Entry) (*zipcrypto.Traditional, error) {
	var hdr [12]byte
	if err := seekRead(src, headerOffset, hdr[:]); err != nil {
		return nil, err
	}
	want := byte(e.crc32 >> 24)
	if e.generalBits&0x8 != 0 {
		want = byte(e.dosModTime >> 8)
	}
	t := zipcrypto.NewTraditional(password)
	if err := t.VerifyHeader(hdr, want); err != nil {
		return nil, newErr(CodeBadPassword, e.name, "")
	}
	if err := src.Seek(headerOffset + traditionalHeaderLen); err != nil {
		return nil, wrapErr(CodeIO, e.name, err)
	}
	return t, nil
}

// rawRead pulls the next plaintext bytes from the inflator (deflate) or
// straight from the decrypt layer (stored), without touching
// uncompressedPosition.
func (of *OpenFile) rawRead(buf []byte) (int, error) {
	if of.checked != nil {
		return of.checked.Read(buf)
	}
	if of.inflator != nil {
		return of.inflator.Read(buf)
	}
	return of.dr.Read(buf)
}

// Read implements the C7 streaming read (spec.md §4.7): returns at most
// uncompressed_size - uncompressed_position bytes, 0/io.EOF exactly at
// the end.
func (of *OpenFile) Read(buf []byte) (int, error) {
	avail := of.uncompressedSize - of.uncompressedPosition
	if avail <= 0 {
		return 0, io.EOF
	}
	if int64(len(buf)) > avail {
		buf = buf[:avail]
	}

	if of.ck != nil {
		n, err := of.ck.ReadAt(buf, of.uncompressedPosition)
		of.uncompressedPosition += int64(n)
		if err == io.EOF && n > 0 {
			err = nil
		}
		return n, err
	}

	n, err := of.rawRead(buf)
	of.uncompressedPosition += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	if err == zip.ErrChecksum {
		err = wrapErr(CodeCorrupt, of.entry.name, err)
	}
	return n, err
}

// Tell reports the current uncompressed read position.
func (of *OpenFile) Tell() (int64, error) { return of.uncompressedPosition, nil }

// Length reports the entry's uncompressed size.
func (of *OpenFile) Length() (int64, error) { return of.uncompressedSize, nil }

// Seek repositions the cursor (spec.md §4.7). Direct-seekable entries
// reseat the byte source in place; everything else either serves the
// jump from the checkpoint cache (if configured) or replays from the
// start, discarding bytes until the target position.
func (of *OpenFile) Seek(pos int64) error {
	if pos > of.uncompressedSize {
		return newErr(CodePastEOF, of.entry.name, "")
	}
	if pos == of.uncompressedPosition {
		return nil
	}

	if of.ck != nil {
		of.uncompressedPosition = pos
		return nil
	}

	if of.directSeekable() {
		if err := of.src.Seek(of.payloadStart + pos); err != nil {
			return wrapErr(CodeIO, of.entry.name, err)
		}
		if of.aes != nil {
			of.aes.SeekTo(pos)
		}
		of.dr.remaining = of.compressedSize - pos
		of.uncompressedPosition = pos
		return nil
	}

	if err := of.restart(); err != nil {
		return err
	}
	discard := make([]byte, 512)
	for of.uncompressedPosition < pos {
		want := int64(len(discard))
		if remaining := pos - of.uncompressedPosition; remaining < want {
			want = remaining
		}
		n, err := of.rawRead(discard[:want])
		of.uncompressedPosition += int64(n)
		if err != nil && of.uncompressedPosition < pos {
			return wrapErr(CodeIO, of.entry.name, err)
		}
	}
	return nil
}

// restart reseats the byte source at the entry's first payload byte,
// restores the traditional cipher's post-header key snapshot (CTR mode
// has no such state to restore), and reinitializes the inflator.
func (of *OpenFile) restart() error {
	if err := of.src.Seek(of.payloadStart); err != nil {
		return wrapErr(CodeIO, of.entry.name, err)
	}
	if of.trad != nil {
		of.trad.SeekRewind()
	}
	of.dr.remaining = of.compressedSize
	if of.inflator != nil {
		of.inflator.Close()
		of.inflator = flate.NewReader(of.dr)
	}
	if of.verifyCRC32() {
		of.checked = zip.NewChecksumReader(of.rawReader(), of.uncompressedSize, of.entry.crc32)
	}
	of.uncompressedPosition = 0
	return nil
}

// Duplicate returns an independent cursor over the same entry, always
// starting at offset 0 regardless of of's current position (spec.md
// §4.7, §8 testable property 7): the original's cursor is never
// inherited.
func (of *OpenFile) Duplicate() (*OpenFile, error) {
	return of.archive.newOpenFile(of.entry, of.password)
}

// Destroy releases the cursor's byte source. Safe to call once.
func (of *OpenFile) Destroy() error {
	if of.inflator != nil {
		of.inflator.Close()
	}
	return of.src.Destroy()
}

// newStepper builds a decompressioncache.Stepper chain over a fresh,
// independent decode pipeline for of's entry: each call decodes the
// next checkpointChunkSize bytes and returns a continuation (spec.md
// §4.7's replay cost, amortized across repeated seeks via
// CheckpointCache).
func (of *OpenFile) newStepper() decompressioncache.Stepper {
	dup, err := of.archive.src.Duplicate()
	if err != nil {
		return failingStepper(err)
	}

	var trad *zipcrypto.Traditional
	if of.trad != nil {
		t, err := verifyTraditionalHeader(dup, of.payloadStart-traditionalHeaderLen, of.password, of.entry)
		if err != nil {
			dup.Destroy()
			return failingStepper(err)
		}
		trad = t
	} else if err := dup.Seek(of.payloadStart); err != nil {
		dup.Destroy()
		return failingStepper(err)
	}

	var aesDec *zipcrypto.AES
	if of.aes != nil {
		p := of.entry.aesParams
		a, err := zipcrypto.NewAES(of.password, p.Salt[:p.SaltLen], p.StrengthBits, p.Verifier)
		if err != nil {
			dup.Destroy()
			return failingStepper(err)
		}
		aesDec = a
	}

	dr := &decryptReader{src: dup, remaining: of.compressedSize, trad: trad, aes: aesDec}
	var rc io.Reader = dr
	var inflator io.ReadCloser
	if of.method == 8 {
		inflator = flate.NewReader(dr)
		rc = inflator
	}
	return chunkStepper(rc, inflator, dup)
}

func failingStepper(err error) decompressioncache.Stepper {
	return func() (decompressioncache.Stepper, []byte, error) { return nil, nil, err }
}

func chunkStepper(rc io.Reader, inflator io.ReadCloser, dup Source) decompressioncache.Stepper {
	var step decompressioncache.Stepper
	step = func() (decompressioncache.Stepper, []byte, error) {
		buf := make([]byte, checkpointChunkSize)
		n, err := io.ReadFull(rc, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			if inflator != nil {
				inflator.Close()
			}
			dup.Destroy()
			return nil, buf[:n], nil
		}
		if err != nil {
			if inflator != nil {
				inflator.Close()
			}
			dup.Destroy()
			return nil, buf[:n], err
		}
		return step, buf[:n], nil
	}
	return step
}
