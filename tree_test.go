// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import "testing"

func TestTreeHashEntryAndFind(t *testing.T) {
	tr := newTree(10, true)

	f := &Entry{name: "a/b/c.txt", kind: KindUnresolvedFile, uncompressedSize: 5}
	if _, err := tr.hashEntry(f); err != nil {
		t.Fatal(err)
	}

	got := tr.findEntry("a/b/c.txt")
	if got == nil || got.kind != KindUnresolvedFile {
		t.Fatalf("expected to find the file entry, got %+v", got)
	}

	// Fabricated ancestor directories should exist as placeholders.
	dir := tr.findEntry("a/b")
	if dir == nil || dir.kind != KindDirectory || !dir.isPlaceholder() {
		t.Fatalf("expected a placeholder ancestor, got %+v", dir)
	}
}

func TestTreeCaseInsensitiveLookup(t *testing.T) {
	tr := newTree(4, true)
	f := &Entry{name: "Docs/Readme.TXT", kind: KindUnresolvedFile}
	if _, err := tr.hashEntry(f); err != nil {
		t.Fatal(err)
	}

	if tr.findEntry("docs/readme.txt") != f {
		t.Fatal("expected case-insensitive lookup to find the same entry")
	}
	if tr.findEntry("DOCS/README.TXT") != f {
		t.Fatal("expected case-insensitive lookup to find the same entry")
	}
}

func TestTreePlaceholderOverwrite(t *testing.T) {
	tr := newTree(4, true)

	// File under dir/ fabricates dir/ as a placeholder first.
	f := &Entry{name: "dir/file.txt", kind: KindUnresolvedFile}
	if _, err := tr.hashEntry(f); err != nil {
		t.Fatal(err)
	}
	placeholder := tr.findEntry("dir")
	if !placeholder.isPlaceholder() {
		t.Fatal("expected placeholder before real record arrives")
	}

	// A later real central directory record for "dir/" overwrites it in place.
	real := &Entry{name: "dir", kind: KindDirectory, lastModTime: 12345}
	returned, err := tr.hashEntry(real)
	if err != nil {
		t.Fatal(err)
	}
	if returned != placeholder {
		t.Fatal("expected overwrite to reuse the same *Entry so children/siblings survive")
	}
	if placeholder.isPlaceholder() {
		t.Fatal("expected placeholder to no longer report as a placeholder after overwrite")
	}
	if placeholder.lastModTime != 12345 {
		t.Fatalf("expected overwritten mtime, got %d", placeholder.lastModTime)
	}

	// The child inserted earlier must still be reachable.
	found := false
	walkChildren(placeholder, func(c *Entry) {
		if c == f {
			found = true
		}
	})
	if !found {
		t.Fatal("expected child to survive placeholder overwrite")
	}
}

func TestTreeDuplicateRealRecordIsCorrupt(t *testing.T) {
	tr := newTree(4, true)
	a := &Entry{name: "x.txt", kind: KindUnresolvedFile}
	if _, err := tr.hashEntry(a); err != nil {
		t.Fatal(err)
	}
	b := &Entry{name: "x.txt", kind: KindUnresolvedFile}
	if _, err := tr.hashEntry(b); err == nil {
		t.Fatal("expected duplicate non-placeholder record to be rejected")
	}
}

func TestTreeMRUReordersOnHit(t *testing.T) {
	tr := newTree(1, true) // single bucket forces every entry into one chain
	a := &Entry{name: "a", kind: KindUnresolvedFile}
	b := &Entry{name: "b", kind: KindUnresolvedFile}
	if _, err := tr.hashEntry(a); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.hashEntry(b); err != nil {
		t.Fatal(err)
	}

	// b was inserted last, so it's at the bucket head; finding a should
	// splice a to the head instead.
	if tr.buckets[0] != b {
		t.Fatalf("expected b at bucket head before lookup, got %+v", tr.buckets[0])
	}
	tr.findEntry("a")
	if tr.buckets[0] != a {
		t.Fatal("expected MRU lookup to splice the hit entry to the bucket head")
	}
}

func TestTreeDisabledMRULeavesOrderAlone(t *testing.T) {
	tr := newTree(1, false)
	a := &Entry{name: "a", kind: KindUnresolvedFile}
	b := &Entry{name: "b", kind: KindUnresolvedFile}
	tr.hashEntry(a)
	tr.hashEntry(b)

	tr.findEntry("a")
	if tr.buckets[0] != b {
		t.Fatal("expected bucket order to stay put when MRU is disabled")
	}
}
