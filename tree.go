// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// tree is the directory tree and hash index (spec.md §4.5, C5): an array
// of bucket heads sized max(1, n/5), separate chaining via hashNext, and
// move-to-front reordering on lookup hit. xxhash is the "stable hash"
// spec.md requires lookup and insertion to agree on -- the same library
// the teacher reaches for identity-hashing interned paths
// (internal/fileid), applied here to lower-cased UTF-8 path bytes.
type tree struct {
	root    *Entry
	buckets []*Entry
	mru     bool // reorder buckets on lookup hit
}

func newTree(entryCountHint int, mru bool) *tree {
	n := entryCountHint / 5
	if n < 1 {
		n = 1
	}
	root := &Entry{name: "", kind: KindDirectory}
	return &tree{root: root, buckets: make([]*Entry, n), mru: mru}
}

// pathHash lower-cases the path (ASCII-aware, matching spec.md §4.5's
// case-insensitive UTF-8 comparison for the common case; full Unicode
// case folding is explicitly out of scope per spec.md's Non-goals) and
// hashes it with xxhash.
func pathHash(name string) uint64 {
	return xxhash.Sum64String(strings.ToLower(name))
}

func (t *tree) bucketIndex(name string) int {
	return int(pathHash(name) % uint64(len(t.buckets)))
}

func pathEqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// findEntry looks up path (empty returns the root) and, on hit,
// splices the entry to its bucket's head for MRU ordering (spec.md
// §4.5), unless MRU has been disabled for lock-free concurrent reads
// (spec.md §5, Options.DisableMRU).
func (t *tree) findEntry(path string) *Entry {
	path = trimSlashes(path)
	if path == "" {
		return t.root
	}
	idx := t.bucketIndex(path)

	var prev *Entry
	for e := t.buckets[idx]; e != nil; prev, e = e, e.hashNext {
		if pathEqualFold(e.name, path) {
			if t.mru && prev != nil {
				prev.hashNext = e.hashNext
				e.hashNext = t.buckets[idx]
				t.buckets[idx] = e
			}
			return e
		}
	}
	return nil
}

func trimSlashes(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

func splitParent(path string) (parent, base string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// insertBucket adds e to the head of its hash bucket.
func (t *tree) insertBucket(e *Entry) {
	idx := t.bucketIndex(e.name)
	e.hashNext = t.buckets[idx]
	t.buckets[idx] = e
}

// insertChild links e as the head of parent's children list.
func insertChild(parent, e *Entry) {
	e.sibling = parent.children
	parent.children = e
}

// ensureAncestors fabricates any missing parent directories for path,
// recursively, and returns the immediate parent entry. Fabricated
// directories are placeholders (lastModTime == 0, spec.md §4.5) so a
// later real central-directory record for the same path can overwrite
// them instead of colliding.
func (t *tree) ensureAncestors(path string) (*Entry, error) {
	parent, _ := splitParent(path)
	if parent == "" {
		return t.root, nil
	}
	if existing := t.findEntry(parent); existing != nil {
		if existing.kind != KindDirectory {
			return nil, newErr(CodeCorrupt, parent, "ancestor is not a directory")
		}
		return existing, nil
	}
	grandparent, err := t.ensureAncestors(parent)
	if err != nil {
		return nil, err
	}
	dir := &Entry{name: parent, kind: KindDirectory}
	t.insertBucket(dir)
	insertChild(grandparent, dir)
	return dir, nil
}

// hashEntry inserts a freshly decoded entry into the tree (spec.md
// §4.5's insertion algorithm). Duplicate records are only tolerated when
// the pre-existing entry is a fabricated placeholder, in which case its
// metadata is overwritten in place and the same *Entry is returned;
// otherwise ErrCorrupt.
func (t *tree) hashEntry(e *Entry) (*Entry, error) {
	parent, err := t.ensureAncestors(e.name)
	if err != nil {
		return nil, err
	}

	if existing := t.findEntry(e.name); existing != nil {
		if !existing.isPlaceholder() {
			return nil, newErr(CodeCorrupt, e.name, "duplicate central directory record")
		}
		overwritePlaceholder(existing, e)
		return existing, nil
	}

	t.insertBucket(e)
	insertChild(parent, e)
	return e, nil
}

func overwritePlaceholder(dst, src *Entry) {
	children, sibling, hashNext := dst.children, dst.sibling, dst.hashNext
	name := dst.name
	*dst = *src
	dst.name = name
	dst.children, dst.sibling, dst.hashNext = children, sibling, hashNext
}

// walkChildren invokes fn for every direct child of dir, in the
// (unspecified, insertion-reversed) order they are linked.
func walkChildren(dir *Entry, fn func(*Entry)) {
	for c := dir.children; c != nil; c = c.sibling {
		fn(c)
	}
}
