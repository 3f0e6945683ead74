// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import "log/slog"

// defaultAESPassword is the built-in password consumed when a caller
// opens an AES-encrypted entry without a "$password" suffix (spec.md
// §4.8, §8 scenario 4, §9 Open Questions). The reference implementation
// hard-codes this at compile time; SPEC_FULL.md resolves the flagged
// Open Question by promoting it to a field of Options that defaults to
// the historical literal, so embedders can override it without a
// recompile.
const defaultAESPassword = "VCFZGF32"

// Options configures an Archive beyond what the byte source and the
// on-disk records themselves specify. The zero Options is the same
// behavior as the reference core: MRU reordering on, no CRC-32
// verification, the built-in AES password, logging through
// slog.Default().
type Options struct {
	// Logger receives Debug-level diagnostics: Open logs one message
	// when the archive contains encrypted entries. Failed password
	// checks are returned as errors and are not logged. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// AESPassword is used for any AES-wrapped entry opened without an
	// explicit "$password" suffix. Defaults to defaultAESPassword.
	AESPassword string

	// DisableMRU turns off the hash-bucket move-to-front reordering
	// (spec.md §4.5) so that findEntry never mutates the tree, which is
	// the precondition spec.md §5 places on lock-free concurrent lookup
	// from multiple goroutines.
	DisableMRU bool

	// VerifyCRC32, if set, wraps every decompressed stream in a CRC-32
	// check and surfaces CodeCorrupt on mismatch. spec.md §9 preserves
	// the reference's choice to skip this by default.
	VerifyCRC32 bool

	// CheckpointCache, if non-nil, is consulted by the streaming reader
	// to resume a forward seek from the nearest cached decompression
	// checkpoint instead of re-inflating from the start of the entry.
	// See SPEC_FULL.md's Domain Stack entry for
	// github.com/allegro/bigcache/v3. Never changes the bytes produced,
	// only how quickly they are produced.
	CheckpointCache *CheckpointCache
}

func (o *Options) logger() *slog.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) aesPassword() []byte {
	if o != nil && o.AESPassword != "" {
		return []byte(o.AESPassword)
	}
	return []byte(defaultAESPassword)
}

func (o *Options) disableMRU() bool {
	return o != nil && o.DisableMRU
}

func (o *Options) verifyCRC32() bool {
	return o != nil && o.VerifyCRC32
}

func (o *Options) checkpointCache() *CheckpointCache {
	if o == nil {
		return nil
	}
	return o.CheckpointCache
}
