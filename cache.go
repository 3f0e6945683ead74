// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import (
	"context"
	"fmt"

	"github.com/zipvfs/zipvfs/internal/decompressioncache"
)

// defaultCheckpointCacheMB is the bigcache size NewCheckpointCache
// allocates when a caller doesn't need a custom budget.
const defaultCheckpointCacheMB = 1024

// CheckpointCache accelerates repeated forward seeking on DEFLATE or
// traditionally-encrypted entries (spec.md §4.7's "must replay from the
// start when seeking backward"): rather than literally re-inflating
// from byte zero on every such seek, it remembers decompression
// checkpoints in a bigcache.BigCache it owns (internal/decompressioncache,
// adapted from the teacher's on-demand-decompression cache for
// SIT/archive payloads) and resumes from the nearest one. It never
// changes the bytes a read produces, only how much work it costs.
//
// A CheckpointCache may be shared across every Archive and OpenFile in
// a process; each OpenFile that uses it gets its own cache-key
// namespace, so unrelated entries never collide. Unlike the teacher's
// original cache, the backing store is this struct's own field, not a
// package-level global: two CheckpointCaches in the same process (one
// per test, say) never see each other's checkpoints.
type CheckpointCache struct {
	debugPrefix string
	store       *decompressioncache.Store
}

// NewCheckpointCache allocates a dedicated bigcache.BigCache (sized
// defaultCheckpointCacheMB) and returns a cache whose keys are
// namespaced under debugPrefix (a label useful in bigcache metrics/
// dumps, not otherwise interpreted).
func NewCheckpointCache(debugPrefix string) (*CheckpointCache, error) {
	return NewCheckpointCacheSize(debugPrefix, defaultCheckpointCacheMB)
}

// NewCheckpointCacheSize is NewCheckpointCache with an explicit cache
// size in megabytes, for embedders that want a smaller or larger budget.
func NewCheckpointCacheSize(debugPrefix string, maxSizeMB int) (*CheckpointCache, error) {
	store, err := decompressioncache.NewStore(context.Background(), maxSizeMB)
	if err != nil {
		return nil, err
	}
	return &CheckpointCache{debugPrefix: debugPrefix, store: store}, nil
}

// readerFor builds a fresh decompressioncache.ReaderAt over of's
// decompression pipeline, backed by c's store.
func (c *CheckpointCache) readerFor(of *OpenFile) *decompressioncache.ReaderAt {
	name := fmt.Sprintf("%s/%s", c.debugPrefix, of.entry.name)
	return c.store.New(of.newStepper(), of.uncompressedSize, name)
}

const checkpointChunkSize = 32 * 1024
