// Package errno provides the six named deny actions the dispatch tables need:
// value objects, shareable across dispatch tables, that suppress a syscall
// and force its return value to -errno.
package errno

import (
	"syscall"

	"github.com/dmoj-sandbox/cptbox-go/domain"
)

// Action is a single errno deny action. Instances are immutable and safe to
// share across every dispatch table entry that denies with the same errno.
type Action struct {
	// Errno is the POSIX errno value returned to the tracee.
	Errno syscall.Errno
	// Name is the stable, human-readable identifier used in logs.
	Name domain.ErrnoName
}

// Invoke suppresses the syscall and overrides its return value to -errno,
// then reports the decision a dispatch handler should return.
func (a *Action) Invoke(d domain.Debugger) domain.Decision {
	d.SuppressSyscall()
	d.SetResult(-int64(a.Errno))
	return domain.Deny(a.Name)
}

// Handle makes Action itself usable as a domain.Handler, so it can be placed
// directly into a dispatch table (e.g. sys_socket: EACCES).
func (a *Action) Handle(d domain.Debugger) domain.Decision {
	return a.Invoke(d)
}

var (
	EACCES       = &Action{syscall.EACCES, domain.EACCES}
	EPERM        = &Action{syscall.EPERM, domain.EPERM}
	ENOENT       = &Action{syscall.ENOENT, domain.ENOENT}
	EFAULT       = &Action{syscall.EFAULT, domain.EFAULT}
	EINVAL       = &Action{syscall.EINVAL, domain.EINVAL}
	ENAMETOOLONG = &Action{syscall.ENAMETOOLONG, domain.ENAMETOOLONG}
)

// ByName returns the shared Action for one of the six supported errno
// names, for callers that only carry the name. Unknown names map to EINVAL.
func ByName(name domain.ErrnoName) *Action {
	switch name {
	case domain.EACCES:
		return EACCES
	case domain.EPERM:
		return EPERM
	case domain.ENOENT:
		return ENOENT
	case domain.EFAULT:
		return EFAULT
	case domain.EINVAL:
		return EINVAL
	case domain.ENAMETOOLONG:
		return ENAMETOOLONG
	default:
		return EINVAL
	}
}
