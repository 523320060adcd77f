//go:build linux && amd64

package dispatch

import (
	"golang.org/x/sys/unix"

	"github.com/dmoj-sandbox/cptbox-go/access"
	"github.com/dmoj-sandbox/cptbox-go/domain"
	"github.com/dmoj-sandbox/cptbox-go/errno"
)

// Table is a syscall dispatch table, keyed by the architecture's syscall
// number (golang.org/x/sys/unix.SYS_*).
type Table map[uintptr]domain.Handler

// Lookup returns the handler registered for num, if any.
func (t Table) Lookup(num uintptr) (domain.Handler, bool) {
	h, ok := t[num]
	return h, ok
}

// RuntimeTable builds the restrictive dispatch table a sandboxed
// submission's own process runs under, ported from DMOJ's cptbox
// IsolateTracer syscall dict.
func RuntimeTable(c *access.Checker) Table {
	no := boolPtr(false)

	return Table{
		// Path-checked reads.
		unix.SYS_OPEN:       CheckPathAt("open", c, noDirfd, 0, 1, nil),
		unix.SYS_OPENAT:     CheckPathAt("openat", c, 0, 1, 2, nil),
		unix.SYS_ACCESS:     CheckPath("access", c, 0, false),
		unix.SYS_FACCESSAT:  CheckPathAt("faccessat", c, 0, 1, noFlags, no),
		unix.SYS_FACCESSAT2: CheckPathAt("faccessat2", c, 0, 1, noFlags, no),
		unix.SYS_READLINK:   CheckPath("readlink", c, 0, false),
		unix.SYS_READLINKAT: CheckPathAt("readlinkat", c, 0, 1, noFlags, no),
		unix.SYS_STAT:       CheckPath("stat", c, 0, false),
		unix.SYS_LSTAT:      CheckPath("lstat", c, 0, false),
		unix.SYS_NEWFSTATAT: CheckPathAt("newfstatat", c, 0, 1, noFlags, no),
		unix.SYS_STATX:      CheckPathAt("statx", c, 0, 1, noFlags, no),

		// Process identity, resource, and capability calls: self-only.
		unix.SYS_KILL:        Kill,
		unix.SYS_TGKILL:      Kill,
		unix.SYS_PRLIMIT64:   Prlimit,
		unix.SYS_PRCTL:       Prctl,
		unix.SYS_ARCH_PRCTL:  domain.Allow,

		// Network syscalls are denied outright: a judged submission has no
		// business opening sockets.
		unix.SYS_SOCKET: errno.EACCES,

		// Unconditional admits: memory management, signal handling, timing,
		// and the rest of a process's non-filesystem runtime surface.
		unix.SYS_BRK:             domain.Allow,
		unix.SYS_MMAP:            domain.Allow,
		unix.SYS_MUNMAP:          domain.Allow,
		unix.SYS_MPROTECT:        domain.Allow,
		unix.SYS_MADVISE:         domain.Allow,
		unix.SYS_FUTEX:           domain.Allow,
		unix.SYS_RT_SIGACTION:    domain.Allow,
		unix.SYS_RT_SIGPROCMASK:  domain.Allow,
		unix.SYS_RT_SIGRETURN:    domain.Allow,
		unix.SYS_SIGALTSTACK:     domain.Allow,
		unix.SYS_NANOSLEEP:       domain.Allow,
		unix.SYS_CLOCK_GETTIME:   domain.Allow,
		unix.SYS_CLOCK_NANOSLEEP: domain.Allow,
		unix.SYS_GETTIMEOFDAY:    domain.Allow,
		unix.SYS_GETRANDOM:       domain.Allow,
		unix.SYS_GETPID:          domain.Allow,
		unix.SYS_GETTID:          domain.Allow,
		unix.SYS_GETUID:          domain.Allow,
		unix.SYS_GETEUID:         domain.Allow,
		unix.SYS_GETGID:          domain.Allow,
		unix.SYS_GETEGID:         domain.Allow,
		unix.SYS_SET_TID_ADDRESS: domain.Allow,
		unix.SYS_SET_ROBUST_LIST: domain.Allow,
		unix.SYS_EXIT:            domain.Allow,
		unix.SYS_EXIT_GROUP:      domain.Allow,
		unix.SYS_READ:            domain.Allow,
		unix.SYS_WRITE:           domain.Allow,
		unix.SYS_READV:           domain.Allow,
		unix.SYS_WRITEV:          domain.Allow,
		unix.SYS_CLOSE:           domain.Allow,
		unix.SYS_LSEEK:           domain.Allow,
		unix.SYS_DUP:             domain.Allow,
		unix.SYS_DUP2:            domain.Allow,
		unix.SYS_FSTAT:           domain.Allow,
		unix.SYS_FCNTL:           domain.Allow,
		unix.SYS_IOCTL:           domain.Allow,
		unix.SYS_POLL:            domain.Allow,
		unix.SYS_PSELECT6:        domain.Allow,
		unix.SYS_RESTART_SYSCALL: domain.Allow,

		// Threading, directory listing, and scheduling/resource queries: a
		// multi-threaded submission calls clone(2) directly (glibc's
		// pthread_create never goes through fork/vfork), and directory
		// listing and scheduling queries are ordinary runtime behavior, not
		// filesystem-jail or process-identity concerns.
		unix.SYS_CLONE:                  domain.Allow,
		unix.SYS_GETDENTS:               domain.Allow,
		unix.SYS_GETDENTS64:             domain.Allow,
		unix.SYS_SCHED_GETAFFINITY:      domain.Allow,
		unix.SYS_SCHED_GETPARAM:         domain.Allow,
		unix.SYS_SCHED_GETSCHEDULER:     domain.Allow,
		unix.SYS_SCHED_GET_PRIORITY_MIN: domain.Allow,
		unix.SYS_SCHED_GET_PRIORITY_MAX: domain.Allow,
		unix.SYS_SCHED_SETSCHEDULER:     domain.Allow,
		unix.SYS_GETRLIMIT:              domain.Allow,
		unix.SYS_GETPPID:                domain.Allow,
		unix.SYS_GETPGRP:                domain.Allow,
		unix.SYS_UNAME:                  domain.Allow,
		unix.SYS_SYSINFO:                domain.Allow,
		unix.SYS_STATFS:                 domain.Allow,
		unix.SYS_MODIFY_LDT:             domain.Allow,
		unix.SYS_TIMER_CREATE:           domain.Allow,
		unix.SYS_TIMER_SETTIME:          domain.Allow,
		unix.SYS_TIMER_DELETE:           domain.Allow,
		unix.SYS_TIMERFD_CREATE:         domain.Allow,
	}
}
