//go:build linux

package dispatch

import "golang.org/x/sys/unix"

// openWriteFlags lists the open(2) flag bits that mark a call as a write.
var openWriteFlags = []uint64{
	uint64(unix.O_WRONLY),
	uint64(unix.O_RDWR),
	uint64(unix.O_TRUNC),
	uint64(unix.O_CREAT),
	uint64(unix.O_EXCL),
	uint64(unix.O_TMPFILE),
}

// isWriteFlags reports whether the open-flags value marks a write, using
// strict bitwise equality against each flag's bit pattern. Strict equality
// is required because O_TMPFILE has multiple bits set on Linux, and a naive
// `flags & O_TMPFILE != 0` test would misfire on unrelated combinations that
// merely share some of those bits (e.g. O_DIRECTORY).
func isWriteFlags(flags uint64) bool {
	for _, f := range openWriteFlags {
		if flags&f == f {
			return true
		}
	}
	return false
}
