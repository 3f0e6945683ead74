// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zip

import (
	"errors"
	"hash"
	"hash/crc32"
	"io"
)

// ErrChecksum is returned by a ChecksumReader when the CRC-32 trailer
// does not match the decompressed bytes. spec.md §9 preserves the
// reference implementation's choice to skip this check by default;
// ChecksumReader exists for callers that opt in (Options.VerifyCRC32).
var ErrChecksum = errors.New("zip: checksum error")

// NewChecksumReader wraps r so that, once exactly size bytes have been
// read from it, the accumulated CRC-32 is compared against want. A
// mismatch surfaces as ErrChecksum on the read that completes the size.
func NewChecksumReader(r io.Reader, size int64, want uint32) io.Reader {
	return &checksumReader{r: r, remain: size, want: want, hash: crc32.NewIEEE()}
}

type checksumReader struct {
	r      io.Reader
	remain int64
	want   uint32
	hash   hash.Hash32
}

func (r *checksumReader) Read(b []byte) (n int, err error) {
	if r.hash == nil {
		return 0, ErrChecksum
	}
	n, err = r.r.Read(b)
	r.hash.Write(b[:n])
	r.remain -= int64(n)
	if r.remain <= 0 {
		if r.hash.Sum32() != r.want {
			r.hash = nil
			return n, ErrChecksum
		}
		if err == nil {
			err = io.EOF
		}
	}
	return n, err
}
