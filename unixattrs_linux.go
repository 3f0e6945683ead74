// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

//go:build linux

package zipvfs

import "golang.org/x/sys/unix"

// UnixStatT projects a Stat onto a unix.Stat_t-shaped value, for
// embedders that mount an Archive into a POSIX-flavored VFS and want
// something they can hand straight to a syscall-shaped Sys() consumer,
// the way the teacher's internal/fileid does for its own host stat
// translation (SPEC_FULL.md Domain Stack, golang.org/x/sys). Only the
// fields Stat actually knows about are populated; everything else is
// zero.
func UnixStatT(st Stat) unix.Stat_t {
	var mode uint32 = 0444
	if st.IsDir {
		mode = unix.S_IFDIR | 0555
	} else {
		mode |= unix.S_IFREG
	}
	return unix.Stat_t{
		Mode:  mode,
		Size:  st.Size,
		Mtim:  unix.Timespec{Sec: st.ModTime},
	}
}
