// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	gozip "archive/zip"
	"bytes"
	"errors"
	"testing"
)

func addSymlink(t *testing.T, zw *gozip.Writer, name, target string) {
	t.Helper()
	w, err := zw.CreateHeader(&gozip.FileHeader{
		Name:           name,
		Method:         gozip.Store,
		CreatorVersion: 3<<8 | 20,
		ExternalAttrs:  unixSymlinkMode << 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(target)); err != nil {
		t.Fatal(err)
	}
}

func TestResolveSymlinkCycleDetected(t *testing.T) {
	var buf bytes.Buffer
	zw := gozip.NewWriter(&buf)
	addSymlink(t, zw, "a", "b")
	addSymlink(t, zw, "b", "a")
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	a := openTestArchive(t, buf.Bytes())
	_, err := a.Stat("a")
	if err == nil {
		t.Fatal("expected a symlink cycle to be rejected")
	}
	var ce *CodeError
	if !errors.As(err, &ce) || (ce.Code != CodeSymlinkLoop && ce.Code != CodeCorrupt) {
		t.Fatalf("expected a symlink-loop or corrupt error, got %v", err)
	}
}

func TestResolveSymlinkEscapeRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := gozip.NewWriter(&buf)
	addSymlink(t, zw, "sub/escape", "../../outside")
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	a := openTestArchive(t, buf.Bytes())
	_, err := a.Stat("sub/escape")
	if err == nil {
		t.Fatal("expected an escaping symlink to be rejected")
	}
	var ce *CodeError
	if !errors.As(err, &ce) || ce.Code != CodeCorrupt {
		t.Fatalf("expected CodeCorrupt, got %v", err)
	}
}

func TestResolveSymlinkChainFlattens(t *testing.T) {
	var buf bytes.Buffer
	zw := gozip.NewWriter(&buf)
	real, err := zw.CreateHeader(&gozip.FileHeader{Name: "real.txt", Method: gozip.Store})
	if err != nil {
		t.Fatal(err)
	}
	real.Write([]byte("payload"))
	addSymlink(t, zw, "middle", "real.txt")
	addSymlink(t, zw, "outer", "middle")
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	a := openTestArchive(t, buf.Bytes())
	of, err := a.OpenRead("outer")
	if err != nil {
		t.Fatal(err)
	}
	defer of.Destroy()
	if got := readAllFrom(t, of); string(got) != "payload" {
		t.Fatalf("expected flattened symlink chain to read the real target, got %q", got)
	}
}
