// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"strings"
	"sync"
)

// Archive is the read-only façade a surrounding VFS mounts (spec.md
// §4.8, C8): everything it needs -- stat, enumerate, open-for-read --
// hangs off this type. One Archive owns exactly one Source for its
// lifetime; Close destroys it.
type Archive struct {
	opts Options
	src  Source
	tree *tree
	loc  centralDirLocation

	hasEncrypted bool

	mu     sync.Mutex
	closed bool
}

// Open locates and parses the central directory of src (tolerating an
// arbitrary self-extractor prefix, spec.md §4.3) and builds the
// directory tree eagerly (spec.md §4.5). src is owned by the returned
// Archive from this point on; callers should not use it directly again.
func Open(src Source, opts Options) (*Archive, error) {
	size, err := src.Length()
	if err != nil {
		return nil, wrapErr(CodeIO, "", err)
	}

	loc, err := locateCentralDirectory(src, size)
	if err != nil {
		return nil, err
	}

	t := newTree(int(loc.entryCount), !opts.disableMRU())

	var hasEncrypted bool
	if err := parseCentralDirectory(src, loc, t, &hasEncrypted); err != nil {
		return nil, err
	}

	if hasEncrypted {
		opts.logger().Debug("archive contains encrypted entries", "entries", loc.entryCount)
	}

	return &Archive{opts: opts, src: src, tree: t, loc: loc, hasEncrypted: hasEncrypted}, nil
}

// Stat describes one entry, after following any symlink chain
// (spec.md §4.6 invariant 3: Kind reflects the original entry's own
// state, Size/IsDir reflect the final target).
type Stat struct {
	Name    string
	Kind    EntryKind
	IsDir   bool
	Size    int64
	ModTime int64
}

// Stat resolves path and reports its metadata.
func (a *Archive) Stat(path string) (Stat, error) {
	e := a.tree.findEntry(path)
	if e == nil {
		return Stat{}, newErr(CodeNotFound, path, "")
	}
	if err := a.resolve(e); err != nil {
		return Stat{}, err
	}
	target := e
	if e.symlinkTarget != nil {
		target = e.symlinkTarget
	}
	return Stat{
		Name:    e.name,
		Kind:    e.kind,
		IsDir:   target.kind == KindDirectory,
		Size:    target.UncompressedSize(),
		ModTime: e.lastModTime,
	}, nil
}

// Enumerate invokes fn once per direct child of dir, in unspecified
// order, stopping at the first error fn returns.
func (a *Archive) Enumerate(dir string, fn func(name string, isDir bool) error) error {
	d := a.tree.findEntry(dir)
	if d == nil {
		return newErr(CodeNotFound, dir, "")
	}
	if d.kind != KindDirectory {
		if err := a.resolve(d); err != nil {
			return err
		}
		if d.symlinkTarget != nil {
			d = d.symlinkTarget
		}
		if d.kind != KindDirectory {
			return newErr(CodeCorrupt, dir, "not a directory")
		}
	}

	var walkErr error
	walkChildren(d, func(c *Entry) {
		if walkErr != nil {
			return
		}
		walkErr = fn(c.name, c.kind == KindDirectory)
	})
	return walkErr
}

// OpenRead opens path for streaming read (C7). path is looked up
// literally first; only if that misses and the archive contains at
// least one encrypted entry is a trailing "$password" suffix split off
// and the remainder looked up again (spec.md §4.8): an archive with no
// encrypted entries never treats "$" as meaningful, so a literal name
// that happens to contain one still resolves directly. AES entries
// opened without a password fall back to Options.AESPassword;
// traditionally-encrypted entries opened without a password fail
// not-found, since the suffix is required to supply one (spec.md §8
// scenario 3); a password supplied for a non-encrypted entry is a
// bad-password error (spec.md §7).
func (a *Archive) OpenRead(path string) (*OpenFile, error) {
	p := path
	var password string
	var hasPassword bool

	e := a.tree.findEntry(p)
	if e == nil && a.hasEncrypted {
		p, password, hasPassword = splitPassword(path)
		e = a.tree.findEntry(p)
	}
	if e == nil {
		return nil, newErr(CodeNotFound, path, "")
	}
	if err := a.resolve(e); err != nil {
		return nil, err
	}
	target := e
	if e.symlinkTarget != nil {
		target = e.symlinkTarget
	}
	// A directory opens successfully as a stream of zero bytes: its
	// uncompressed size is always 0.

	encrypted := target.aesParams != nil || target.generalBits&0x1 != 0
	var pw []byte
	switch {
	case !encrypted && hasPassword:
		return nil, newErr(CodeBadPassword, p, "password supplied for a non-encrypted entry")
	case hasPassword:
		pw = []byte(password)
	case target.aesParams != nil:
		pw = a.opts.aesPassword()
	case encrypted:
		return nil, newErr(CodeNotFound, path, "suffix is required to supply a password")
	}

	return a.newOpenFile(target, pw)
}

// splitPassword splits "name$password" on the last '$'. A path with no
// '$' has no password.
func splitPassword(p string) (path, password string, has bool) {
	idx := strings.LastIndexByte(p, '$')
	if idx < 0 {
		return p, "", false
	}
	return p[:idx], p[idx+1:], true
}

// Close releases the underlying Source. Safe to call more than once.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.src.Destroy()
}
