// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipcrypto

import "testing"

// encryptTraditional mirrors DecryptByte's key schedule but in the
// encrypt direction, for building known-good fixtures in tests: the
// plaintext byte is what feeds the key update, regardless of which
// direction the cipher runs.
func encryptTraditional(t *Traditional, plain []byte) []byte {
	out := make([]byte, len(plain))
	for i, p := range plain {
		out[i] = p ^ t.keystreamByte()
		t.update(p)
	}
	return out
}

func TestTraditionalRoundTrip(t *testing.T) {
	password := []byte("hunter2")
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	enc := NewTraditional(password)
	cipher := encryptTraditional(enc, plaintext)

	dec := NewTraditional(password)
	got := make([]byte, len(cipher))
	for i, c := range cipher {
		got[i] = dec.DecryptByte(c)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip failed: got %q want %q", got, plaintext)
	}
}

func TestTraditionalVerifyHeader(t *testing.T) {
	password := []byte("swordfish")
	wantVerifier := byte(0x42)

	enc := NewTraditional(password)
	var plainHeader [12]byte
	plainHeader[11] = wantVerifier
	var hdr [12]byte
	copy(hdr[:], encryptTraditional(enc, plainHeader[:]))

	dec := NewTraditional(password)
	if err := dec.VerifyHeader(hdr, wantVerifier); err != nil {
		t.Fatalf("VerifyHeader failed: %v", err)
	}
}

func TestTraditionalVerifyHeaderBadPassword(t *testing.T) {
	enc := NewTraditional([]byte("correct"))
	var hdr [12]byte
	copy(hdr[:], encryptTraditional(enc, make([]byte, 12)))

	dec := NewTraditional([]byte("wrong"))
	if err := dec.VerifyHeader(hdr, 0); err == nil {
		t.Fatal("expected bad password error")
	}
}

func TestTraditionalSeekRewind(t *testing.T) {
	password := []byte("rewindme")
	plaintext := []byte("0123456789abcdef0123456789abcdef")

	enc := NewTraditional(password)
	cipher := encryptTraditional(enc, plaintext)

	dec := NewTraditional(password)
	dec.initial = dec.keys // snapshot at the start, as VerifyHeader would after a 0-length header

	first := make([]byte, len(cipher))
	for i, c := range cipher {
		first[i] = dec.DecryptByte(c)
	}

	dec.SeekRewind()
	second := make([]byte, len(cipher))
	for i, c := range cipher {
		second[i] = dec.DecryptByte(c)
	}

	if string(first) != string(second) || string(first) != string(plaintext) {
		t.Fatalf("rewind produced different plaintext: %q vs %q", first, second)
	}
}
