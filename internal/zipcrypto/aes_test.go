// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/sha1"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// encryptAES mirrors AES.fillBlock/Decrypt's little-endian-counter CTR
// construction independently, to build known-good fixtures: WinZip
// AES-CTR is its own symmetric XOR cipher, so "encrypt" and "decrypt"
// are the same keystream-XOR operation.
func encryptAES(key []byte, plaintext []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(plaintext))
	counter := uint64(1)
	pos := 0
	var ks [16]byte
	ksLen := 0
	for i := range plaintext {
		if ksLen == 0 {
			var iv [16]byte
			iv[0] = byte(counter)
			iv[1] = byte(counter >> 8)
			iv[2] = byte(counter >> 16)
			iv[3] = byte(counter >> 24)
			iv[4] = byte(counter >> 32)
			iv[5] = byte(counter >> 40)
			iv[6] = byte(counter >> 48)
			iv[7] = byte(counter >> 56)
			block.Encrypt(ks[:], iv[:])
			counter++
			ksLen = 16
			pos = 0
		}
		out[i] = plaintext[i] ^ ks[pos]
		pos++
		ksLen--
	}
	return out
}

func deriveAESKeys(t *testing.T, password, salt []byte, strengthBits int) (encKey, authKey []byte, verifier [2]byte) {
	t.Helper()
	keyLen, saltLen := keyStrengthLens(strengthBits)
	if len(salt) != saltLen {
		t.Fatalf("salt length %d does not match strength %d", len(salt), strengthBits)
	}
	derived := pbkdf2.Key(password, salt, 1000, keyLen*2+2, sha1.New)
	encKey = derived[:keyLen]
	authKey = derived[keyLen : keyLen*2]
	copy(verifier[:], derived[keyLen*2:])
	return
}

func TestAESRoundTrip(t *testing.T) {
	password := []byte("correct horse battery staple")
	salt := bytes.Repeat([]byte{0x07}, 16) // 256-bit strength salt length
	encKey, _, verifier := deriveAESKeys(t, password, salt, 256)

	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 3)
	ciphertext := encryptAES(encKey, plaintext)

	a, err := NewAES(password, salt, 256, verifier)
	if err != nil {
		t.Fatalf("NewAES: %v", err)
	}
	got := append([]byte(nil), ciphertext...)
	a.Decrypt(got)
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch:\n got  %q\n want %q", got, plaintext)
	}
}

func TestAESBadPassword(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, 8)
	_, _, verifier := deriveAESKeys(t, []byte("right"), salt, 128)
	if _, err := NewAES([]byte("wrong"), salt, 128, verifier); err == nil {
		t.Fatal("expected bad password error")
	}
}

func TestAESSeekToMatchesSequentialDecrypt(t *testing.T) {
	password := []byte("seekable")
	salt := bytes.Repeat([]byte{0x42}, 12) // 192-bit strength salt length
	encKey, _, verifier := deriveAESKeys(t, password, salt, 192)

	plaintext := bytes.Repeat([]byte{0, 1, 2, 3}, 20) // 80 bytes, crosses several 16-byte blocks
	ciphertext := encryptAES(encKey, plaintext)

	sequential, err := NewAES(password, salt, 192, verifier)
	if err != nil {
		t.Fatal(err)
	}
	seqOut := append([]byte(nil), ciphertext...)
	sequential.Decrypt(seqOut)

	for _, offset := range []int64{0, 1, 15, 16, 17, 33, 63, 79} {
		jumper, err := NewAES(password, salt, 192, verifier)
		if err != nil {
			t.Fatal(err)
		}
		jumper.SeekTo(offset)
		tail := append([]byte(nil), ciphertext[offset:]...)
		jumper.Decrypt(tail)
		if !bytes.Equal(tail, seqOut[offset:]) {
			t.Errorf("SeekTo(%d) mismatch:\n got  %q\n want %q", offset, tail, seqOut[offset:])
		}
	}
}
