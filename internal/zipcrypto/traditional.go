// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

// Package zipcrypto implements the two decryption schemes ZIP archives
// use: the legacy PKWARE traditional stream cipher, and WinZip AES-CTR
// with PBKDF2 key derivation. Both are consumed underneath a DEFLATE (or
// stored) payload by the core's streaming reader (spec.md §4.2, §4.7).
package zipcrypto

import (
	"errors"
	"hash/crc32"
)

// ErrBadPassword is returned when the traditional verifier byte, or the
// AES password-verification value, does not match.
var ErrBadPassword = errors.New("zipcrypto: bad password")

// Traditional implements the PKWARE stream cipher (spec.md §4.2).
type Traditional struct {
	keys    [3]uint32
	initial [3]uint32 // snapshot after header verification, for seek-rewind
}

// NewTraditional seeds the three keys from password bytes.
func NewTraditional(password []byte) *Traditional {
	t := &Traditional{keys: [3]uint32{0x12345678, 0x23456789, 0x34567890}}
	for _, b := range password {
		t.update(b)
	}
	return t
}

func (t *Traditional) update(plain byte) {
	t.keys[0] = crc32step(t.keys[0], plain)
	t.keys[1] += t.keys[0] & 0xff
	t.keys[1] = t.keys[1]*134775813 + 1
	t.keys[2] = crc32step(t.keys[2], byte(t.keys[1]>>24))
}

func crc32step(crc uint32, b byte) uint32 {
	return crc32.IEEETable[(crc^uint32(b))&0xff] ^ (crc >> 8)
}

func (t *Traditional) keystreamByte() byte {
	tmp := uint16(t.keys[2]|2) & 0xffff
	return byte((uint32(tmp) * uint32(tmp^1)) >> 8)
}

// DecryptByte decrypts one ciphertext byte and folds the resulting
// plaintext back into the key schedule.
func (t *Traditional) DecryptByte(c byte) byte {
	p := c ^ t.keystreamByte()
	t.update(p)
	return p
}

// VerifyHeader consumes the 12-byte encryption header (already read by
// the caller into hdr) and checks its last byte against wantVerifier
// (spec.md §4.2: the high byte of dos_mod_time when general bit 3 is
// set, otherwise the high byte of crc32). Snapshots the keys on success
// so SeekRewind can restore them later.
func (t *Traditional) VerifyHeader(hdr [12]byte, wantVerifier byte) error {
	var last byte
	for _, c := range hdr {
		last = t.DecryptByte(c)
	}
	if last != wantVerifier {
		return ErrBadPassword
	}
	t.initial = t.keys
	return nil
}

// SeekRewind restores the keys captured by VerifyHeader, for the C7
// backward-seek replay path (spec.md §4.7).
func (t *Traditional) SeekRewind() {
	t.keys = t.initial
}
