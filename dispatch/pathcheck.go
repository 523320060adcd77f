// Package dispatch builds the runtime and compile-time syscall
// dispatch tables: per-syscall-number domain.Handler entries that either
// admit unconditionally, deny unconditionally, run a path access check
// through the access.Checker, or emulate a syscall outright.
//
// The table-as-map shape, and the per-syscall closures that read a path
// argument and defer to a shared checker, are grounded on sysbox-fs's
// seccompSessionMap-adjacent dispatch in seccomp/tracer.go and the
// per-syscall handler functions of handler/handlerDB.go, generalized from
// nestybox-sysbox-fs's container-procfs domain to this module's filesystem
// jail domain. The handler algorithms themselves (which argument carries the
// path, which denote a write, the emulation semantics) are ported from
// DMOJ's cptbox isolate.py IsolateTracer and CompilerIsolateTracer
// dispatch tables.
package dispatch

import (
	"github.com/dmoj-sandbox/cptbox-go/access"
	"github.com/dmoj-sandbox/cptbox-go/domain"
	"github.com/dmoj-sandbox/cptbox-go/resolve"
)

// noDirfd marks a pathCheckHandler whose syscall has no dirfd argument
// (plain open/access/readlink/stat, as opposed to their *at siblings).
const noDirfd = -1

// noFlags marks a pathCheckHandler whose syscall has no open-style flags
// argument to derive writeness from.
const noFlags = -1

// pathCheckHandler is the generic "read a path argument, resolve it, check
// it against a jail" handler that backs the bulk of both dispatch tables.
type pathCheckHandler struct {
	syscallName string
	checker     *access.Checker

	pathArg  int
	dirfdArg int // noDirfd if the syscall has no dirfd argument
	flagsArg int // noFlags if writeness isn't derived from open-flags

	// write, when non-nil, overrides flag-derived writeness outright (e.g.
	// unlink is always a write, regardless of any flags argument).
	write *bool
}

func boolPtr(b bool) *bool { return &b }

// CheckPath builds a handler for a syscall whose only path argument is
// pathArg, with no dirfd and no flags (e.g. plain access, stat, readlink).
func CheckPath(name string, c *access.Checker, pathArg int, write bool) domain.Handler {
	return &pathCheckHandler{syscallName: name, checker: c, pathArg: pathArg, dirfdArg: noDirfd, flagsArg: noFlags, write: boolPtr(write)}
}

// CheckPathAt builds a handler for an *at(2) syscall: pathArg is the path
// argument, dirfdArg the dirfd argument. write overrides writeness; pass nil
// to derive it from flagsArg's open(2) flags instead (pass noFlags if there
// is no flags argument and the call is unconditionally of the given kind).
func CheckPathAt(name string, c *access.Checker, dirfdArg, pathArg, flagsArg int, write *bool) domain.Handler {
	return &pathCheckHandler{syscallName: name, checker: c, pathArg: pathArg, dirfdArg: dirfdArg, flagsArg: flagsArg, write: write}
}

func (h *pathCheckHandler) Handle(d domain.Debugger) domain.Decision {
	raw, deny := h.checker.ReadPath(h.syscallName, d, d.UArg(h.pathArg))
	if deny != nil {
		return deny.Invoke(d)
	}

	write := false
	switch {
	case h.write != nil:
		write = *h.write
	case h.flagsArg != noFlags:
		write = isWriteFlags(d.UArg(h.flagsArg))
	}

	var dirfdRaw uint64
	if h.dirfdArg == noDirfd {
		dirfdRaw = uint64(uint32(resolve.ATFDCWD))
	} else {
		dirfdRaw = d.UArg(h.dirfdArg)
	}

	_, deny = h.checker.Check(d, raw, dirfdRaw, write)
	if deny != nil {
		return deny.Invoke(d)
	}
	return domain.Admit
}
