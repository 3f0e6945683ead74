// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package zipvfs

import "github.com/bmatcuk/doublestar/v4"

// Glob returns every path in the archive matching pattern (doublestar
// syntax: "**" matches any number of path elements), the convenience
// method SPEC_FULL.md's C8 supplement adds on top of the directory tree.
func (a *Archive) Glob(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(a.FS(), pattern)
	if err != nil {
		return nil, wrapErr(CodeCorrupt, pattern, err)
	}
	return matches, nil
}
