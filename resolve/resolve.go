// Package resolve reconstructs the absolute path a syscall refers to,
// given the raw argument, a directory fd (possibly AT_FDCWD), and the
// traced thread's identity.
//
// The default implementation reads the /proc/<tid>/cwd and
// /proc/<tid>/fd/<n> symlinks the same way DMOJ's cptbox isolate.py
// resolves a dirfd-relative path for its own access checks.
package resolve

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmoj-sandbox/cptbox-go/policy"
)

// ATFDCWD is the sentinel directory-fd value meaning "current working
// directory", matching the Linux AT_FDCWD constant.
const ATFDCWD int32 = -100

// ErrNoSuchThread is returned by OSProcFS when the traced thread has
// already exited; callers map this to a deny-with-ENOENT.
var ErrNoSuchThread = errors.New("resolve: traced thread no longer exists")

// ProcFS is the per-thread filesystem-identity lookup the resolver needs.
// Implementations must be safe for concurrent use by independent tracees.
type ProcFS interface {
	// ReadCwd returns the absolute current working directory of tid.
	ReadCwd(tid uint32) (string, error)
	// ReadFd returns the absolute path fd refers to within tid's fd table.
	ReadFd(tid uint32, fd int32) (string, error)
}

// OSProcFS implements ProcFS against the real /proc filesystem.
type OSProcFS struct{}

func (OSProcFS) ReadCwd(tid uint32) (string, error) {
	link, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", tid))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoSuchThread
		}
		return "", err
	}
	return link, nil
}

func (OSProcFS) ReadFd(tid uint32, fd int32) (string, error) {
	link, err := os.Readlink(fmt.Sprintf("/proc/%d/fd/%d", tid, fd))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoSuchThread
		}
		return "", err
	}
	return link, nil
}

var _ ProcFS = OSProcFS{}

// SignExtendFD sign-extends a directory-fd register. Argument registers are
// read as unsigned 64-bit values, but AT_FDCWD (and any real fd) is a
// 32-bit signed quantity; truncating to uint32 and reinterpreting as int32
// recovers the sign the kernel intended.
func SignExtendFD(raw uint64) int32 {
	return int32(uint32(raw))
}

// Resolve reconstructs the absolute, normalized path a syscall refers to.
// rawPath is the string read from the tracee's memory; dirfd is the raw
// (unsigned) directory-fd register value, interpreted as AT_FDCWD-relative
// when it equals ATFDCWD after sign extension.
func Resolve(fs ProcFS, tid uint32, rawPath string, dirfdRaw uint64) (string, error) {
	if filepath.IsAbs(rawPath) {
		return policy.Normalize(rawPath), nil
	}

	dirfd := SignExtendFD(dirfdRaw)

	var (
		base string
		err  error
	)
	if dirfd == ATFDCWD {
		base, err = fs.ReadCwd(tid)
	} else {
		base, err = fs.ReadFd(tid, dirfd)
	}
	if err != nil {
		return "", err
	}

	return policy.Normalize(filepath.Join(base, rawPath)), nil
}
