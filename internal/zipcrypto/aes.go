// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

// ErrShortSalt is returned by NewAES when the key strength is not 128,
// 192 or 256 bits, or the salt length does not match that strength.
var ErrShortSalt = errors.New("zipcrypto: short AES salt/verifier")

// AES implements WinZip AES-CTR decryption (spec.md §4.2, §6). Derives
// the encryption key, authentication key, and 2-byte password verifier
// from PBKDF2-HMAC-SHA1 over the password and the per-entry salt, then
// decrypts with AES-CTR using a little-endian 64-bit block counter that
// starts at 1.
type AES struct {
	encKey  []byte
	authKey []byte // retained for callers that wish to check the 10-byte AAC; unused by the reader
	block   cipher.Block
	counter uint64 // next block index to encrypt into the keystream
	ksPos   int    // bytes of the current keystream block already consumed
	ks      []byte // current 16-byte keystream block
}

func keyStrengthLens(bits int) (keyLen, saltLen int) {
	switch bits {
	case 128:
		return 16, 8
	case 192:
		return 24, 12
	case 256:
		return 32, 16
	default:
		return 0, 0
	}
}

// NewAES derives keys from password and salt for the given key strength
// (128/192/256) and checks the 2-byte verifier. Returns ErrBadPassword on
// mismatch (spec.md §4.2).
func NewAES(password, salt []byte, strengthBits int, verifier [2]byte) (*AES, error) {
	keyLen, saltLen := keyStrengthLens(strengthBits)
	if keyLen == 0 || len(salt) != saltLen {
		return nil, ErrShortSalt
	}
	// PBKDF2 derives encKey || authKey || 2-byte verifier in one pass,
	// per the WinZip AE-1/AE-2 specification.
	derived := pbkdf2.Key(password, salt, 1000, keyLen+keyLen+2, sha1.New)
	encKey := derived[:keyLen]
	authKey := derived[keyLen : keyLen*2]
	pwv := derived[keyLen*2:]
	if !bytes.Equal(pwv, verifier[:]) {
		return nil, ErrBadPassword
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	a := &AES{
		encKey:  encKey,
		authKey: authKey,
		block:   block,
		counter: 1,
	}
	a.fillBlock()
	return a, nil
}

func (a *AES) fillBlock() {
	var iv [16]byte
	iv[0] = byte(a.counter)
	iv[1] = byte(a.counter >> 8)
	iv[2] = byte(a.counter >> 16)
	iv[3] = byte(a.counter >> 24)
	iv[4] = byte(a.counter >> 32)
	iv[5] = byte(a.counter >> 40)
	iv[6] = byte(a.counter >> 48)
	iv[7] = byte(a.counter >> 56)
	a.ks = make([]byte, 16)
	a.block.Encrypt(a.ks, iv[:])
	a.counter++
	a.ksPos = 0
}

// Decrypt XORs ciphertext in place against the CTR keystream, advancing
// the block counter as needed.
func (a *AES) Decrypt(buf []byte) {
	for i := range buf {
		if a.ksPos == len(a.ks) {
			a.fillBlock()
		}
		buf[i] ^= a.ks[a.ksPos]
		a.ksPos++
	}
}

// SeekTo re-derives the counter and intra-block position for an
// arbitrary byte offset into the plaintext stream. Unlike the
// traditional cipher, CTR mode keystream bytes depend only on the block
// index, not on any previously decrypted plaintext, so reconstructing
// the counter by division (rather than replaying every byte from the
// start as spec.md §4.2/§9 describes the reference doing) produces a
// bit-identical keystream -- this is the "obvious optimization" spec.md
// §9 flags, taken because it is provably equivalent here.
func (a *AES) SeekTo(plaintextOffset int64) {
	a.counter = uint64(plaintextOffset/16) + 1
	a.fillBlock()
	a.ksPos = int(plaintextOffset % 16)
}
