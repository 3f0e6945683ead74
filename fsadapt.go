// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"io"
	"io/fs"
	"strings"
	"time"
)

// FS adapts an Archive to io/fs.FS, the way the teacher's internal
// tarfs/sit/hfs backends each expose one (SPEC_FULL.md C8 supplement),
// so the facade can be handed directly to anything written against the
// standard library's filesystem interfaces.
type FS struct {
	a *Archive
}

// FS returns an io/fs.FS view of a.
func (a *Archive) FS() FS { return FS{a: a} }

func (f FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	p := name
	if p == "." {
		p = ""
	}

	st, err := f.a.Stat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: toFSErr(err)}
	}
	if st.IsDir {
		return &fsDir{fsys: f, name: name}, nil
	}

	of, err := f.a.OpenRead(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: toFSErr(err)}
	}
	return &fsFile{of: of, stat: st, name: name}, nil
}

func toFSErr(err error) error {
	var ce *CodeError
	if ok := asCodeError(err, &ce); ok {
		switch ce.Code {
		case CodeNotFound:
			return fs.ErrNotExist
		case CodeReadOnly:
			return fs.ErrPermission
		}
	}
	return err
}

func asCodeError(err error, target **CodeError) bool {
	for err != nil {
		if ce, ok := err.(*CodeError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// fsFile wraps an *OpenFile to satisfy fs.File + io.Seeker.
type fsFile struct {
	of   *OpenFile
	stat Stat
	name string
}

func (f *fsFile) Read(buf []byte) (int, error) { return f.of.Read(buf) }

func (f *fsFile) Close() error { return f.of.Destroy() }

func (f *fsFile) Stat() (fs.FileInfo, error) { return fsFileInfo{f.stat, baseName(f.name)}, nil }

// Seek implements io.Seeker over OpenFile's absolute-position Seek.
func (f *fsFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.of.Tell()
	if err != nil {
		return 0, err
	}
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos += offset
	case io.SeekEnd:
		pos = f.stat.Size + offset
	}
	if err := f.of.Seek(pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// fsDir satisfies fs.File + fs.ReadDirFile for a directory entry.
type fsDir struct {
	fsys FS
	name string
	read bool
}

func (d *fsDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *fsDir) Close() error { return nil }

func (d *fsDir) Stat() (fs.FileInfo, error) {
	p := d.name
	if p == "." {
		p = ""
	}
	st, err := d.fsys.a.Stat(p)
	if err != nil {
		return nil, err
	}
	return fsFileInfo{st, baseName(d.name)}, nil
}

func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.read && n > 0 {
		return nil, io.EOF
	}
	d.read = true

	p := d.name
	if p == "." {
		p = ""
	}
	var entries []fs.DirEntry
	err := d.fsys.a.Enumerate(p, func(name string, isDir bool) error {
		st, statErr := d.fsys.a.Stat(name)
		if statErr != nil {
			return statErr
		}
		entries = append(entries, fsFileInfo{st, baseName(name)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func baseName(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	if p == "." || p == "" {
		return "."
	}
	return p
}

// fsFileInfo adapts Stat to fs.FileInfo and fs.DirEntry simultaneously.
type fsFileInfo struct {
	st   Stat
	base string
}

func (i fsFileInfo) Name() string       { return i.base }
func (i fsFileInfo) Size() int64        { return i.st.Size }
func (i fsFileInfo) ModTime() time.Time { return time.Unix(i.st.ModTime, 0) }
func (i fsFileInfo) IsDir() bool        { return i.st.IsDir }
func (i fsFileInfo) Sys() any           { return i.st }

func (i fsFileInfo) Mode() fs.FileMode {
	if i.st.IsDir {
		return fs.ModeDir | 0555
	}
	return 0444
}

func (i fsFileInfo) Type() fs.FileMode          { return i.Mode().Type() }
func (i fsFileInfo) Info() (fs.FileInfo, error) { return i, nil }
