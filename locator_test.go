// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	gozip "archive/zip"
	"bytes"
	"encoding/binary"
	"testing"
)

func TestLocateCentralDirectoryPlain(t *testing.T) {
	raw := buildTestZip(t)
	loc, err := locateCentralDirectory(NewBytesSource(raw), int64(len(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if loc.dataStart != 0 {
		t.Fatalf("expected zero data_start for a plain archive, got %d", loc.dataStart)
	}
	if loc.entryCount != 4 {
		t.Fatalf("expected 4 entries, got %d", loc.entryCount)
	}
}

func TestLocateCentralDirectoryWithSelfExtractorPrefix(t *testing.T) {
	prefix := bytes.Repeat([]byte{0xCC}, 12345)
	raw := append(append([]byte(nil), prefix...), buildTestZip(t)...)

	loc, err := locateCentralDirectory(NewBytesSource(raw), int64(len(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if loc.dataStart != int64(len(prefix)) {
		t.Fatalf("expected data_start %d, got %d", len(prefix), loc.dataStart)
	}
}

func TestLocateCentralDirectoryWithComment(t *testing.T) {
	var buf bytes.Buffer
	zw := gozip.NewWriter(&buf)
	w, err := zw.CreateHeader(&gozip.FileHeader{Name: "one.txt", Method: gozip.Store})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("1"))
	if err := zw.SetComment("a trailing zip comment, just long enough to matter"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	loc, err := locateCentralDirectory(NewBytesSource(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if loc.entryCount != 1 {
		t.Fatalf("expected 1 entry, got %d", loc.entryCount)
	}
}

func TestFindEOCDTooSmall(t *testing.T) {
	_, _, err := findEOCD(NewBytesSource([]byte("short")), 5)
	if err == nil {
		t.Fatal("expected error for a too-small archive")
	}
}

func TestFindEOCDNotFound(t *testing.T) {
	junk := bytes.Repeat([]byte{0x00}, 100)
	_, _, err := findEOCD(NewBytesSource(junk), int64(len(junk)))
	if err == nil {
		t.Fatal("expected EOCD-not-found error")
	}
}

func TestFindEOCDAcrossWindowBoundary(t *testing.T) {
	// Give the archive a trailing comment just long enough that the EOCD
	// record starts 2 bytes before the first (last-in-file) sliding
	// window, so its signature straddles the window boundary and is only
	// seen through the carried tail.
	raw := buildTestZip(t)
	commentLen := eocdWindow - eocdMinLen + 2
	binary.LittleEndian.PutUint16(raw[len(raw)-2:], uint16(commentLen))
	padded := append(raw, bytes.Repeat([]byte{0x41}, commentLen)...)

	eocdPos, eocd, err := findEOCD(NewBytesSource(padded), int64(len(padded)))
	if err != nil {
		t.Fatal(err)
	}
	if eocdPos != int64(len(raw)-eocdMinLen) {
		t.Fatalf("unexpected EOCD position %d", eocdPos)
	}
	if len(eocd) != eocdMinLen+commentLen {
		t.Fatalf("unexpected EOCD length %d", len(eocd))
	}
}
