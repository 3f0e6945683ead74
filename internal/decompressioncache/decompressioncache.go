// Package decompressioncache memoizes decompression checkpoints behind
// a bigcache.BigCache so that repeatedly seeking around inside a
// DEFLATE or traditionally-encrypted ZIP entry doesn't cost a full
// re-inflate from the start every time. Stepper is the caller's
// decode-the-next-chunk closure; Store.New and ReaderAt.ReadAt do the
// checkpoint bookkeeping.
//
// Unlike the on-demand-decompression cache this package started from,
// the backing bigcache.BigCache is not a package-level singleton: a
// caller owns a *Store and threads it explicitly into every ReaderAt it
// builds, so two callers in the same process (or two tests) never
// share cache state by accident.
package decompressioncache

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/allegro/bigcache/v3"
)

// Guaranteed never to be called too many times
// therefore never feel obliged to return io.EOF for the last one
type Stepper func() (Stepper, []byte, error)

// Store owns one bigcache.BigCache and hands out ReaderAt instances
// that share it. Callers that want isolated cache state construct
// their own Store; callers happy to share memoized checkpoints across
// many ReaderAts pass the same Store to every New call.
type Store struct {
	cache *bigcache.BigCache
	uniq  uint64
}

// NewStore allocates a bigcache.BigCache sized maxSizeMB megabytes.
func NewStore(ctx context.Context, maxSizeMB int) (*Store, error) {
	c, err := bigcache.New(ctx, bigcache.Config{
		HardMaxCacheSize: maxSizeMB,
		Shards:           1024,
	})
	if err != nil {
		return nil, err
	}
	return &Store{cache: c}, nil
}

// New builds a ReaderAt over stepper, backed by s's cache. debugName
// namespaces this ReaderAt's cache keys; two ReaderAts built from the
// same Store never collide regardless of debugName, since each also
// gets its own monotonic id.
func (s *Store) New(stepper Stepper, size int64, debugName string) *ReaderAt {
	return &ReaderAt{
		store:       s,
		uniq:        atomic.AddUint64(&s.uniq, 1),
		debugName:   debugName,
		checkpoints: []checkpoint{{stepper: stepper, offset: 0}},
		size:        size,
	}
}

func (r *ReaderAt) Size() int64 {
	return r.size
}

func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	} else if off+int64(len(p)) > r.size {
		p = p[:r.size-off]
	}

	i := sort.Search(len(r.checkpoints), func(i int) bool {
		return r.checkpoints[i].offset > off
	}) - 1

	// start with the highest checkpoint that starts <= the request
	for { // with some care this loop could be concurrent
		key := fmt.Sprintf("%s_%d_%d", r.debugName, r.uniq, r.checkpoints[i].offset)
		blob, cacheErr := r.store.cache.Get(key)

		if cacheErr != nil { // decompress a block expensively
			newstepper, newblob, err := r.checkpoints[i].stepper()
			blob = newblob
			r.store.cache.Set(key, blob)
			r.checkpoints[i].err = err
			if r.checkpoints[i].offset+int64(len(blob)) >= r.size {
				r.checkpoints[i].err = io.EOF // this is the last one, return io.EOF consistently
			} else if i+1 == len(r.checkpoints) { // stepper for the next one
				r.checkpoints = append(r.checkpoints, checkpoint{
					stepper: newstepper,
					offset:  r.checkpoints[i].offset + int64(len(blob))})
			}
		}

		// copy bytes into the destination buffer
		destcut, srccut, ok := overlap(off, len(p), r.checkpoints[i].offset, len(blob))
		if !ok {
			panic("obtained a chunk but it does not overlap with the request, never OK")
		}
		n := copy(p[destcut:], blob[srccut:])
		if destcut+n == len(p) /*satisfied*/ || r.checkpoints[i].err != nil /*eof*/ {
			return destcut + n, r.checkpoints[i].err
		}

		i++
	}
}

type ReaderAt struct {
	store       *Store
	uniq        uint64
	debugName   string
	checkpoints []checkpoint // once there is no more data, nil checkpoint
	size        int64
}

type checkpoint struct {
	stepper Stepper
	offset  int64
	err     error
}

func overlap(aoffset int64, alen int, boffset int64, blen int) (ainner, binner int, ok bool) {
	if aoffset >= boffset+int64(blen) || boffset >= aoffset+int64(alen) {
		return 0, 0, false
	}

	if aoffset > boffset {
		binner = int(aoffset - boffset)
	} else {
		ainner = int(boffset - aoffset)
	}
	return ainner, binner, true
}
