//go:build linux && amd64

package dispatch

import (
	"golang.org/x/sys/unix"

	"github.com/dmoj-sandbox/cptbox-go/access"
	"github.com/dmoj-sandbox/cptbox-go/domain"
)

// CompileTable builds the permissive dispatch table a compiler invocation
// runs under: RuntimeTable's baseline plus the extra surface a compiler
// needs (process spawning, directory mutation, linking, renaming, the
// compiler's own event loop), ported from CompilerIsolateTracer's `update`
// call in DMOJ's compiled_executor.py.
func CompileTable(c *access.Checker) Table {
	t := RuntimeTable(c)

	yes := boolPtr(true)

	for num, h := range Table{
		// Process spawning system calls.
		unix.SYS_FORK:    domain.Allow,
		unix.SYS_VFORK:   domain.Allow,
		unix.SYS_EXECVE:  domain.Allow,
		unix.SYS_GETCPU:  domain.Allow,
		unix.SYS_GETPGID: domain.Allow,

		// Directory system calls: mutation of the tmpdir tree is a write.
		unix.SYS_MKDIR:   CheckPath("mkdir", c, 0, true),
		unix.SYS_MKDIRAT: CheckPathAt("mkdirat", c, 0, 1, noFlags, yes),
		unix.SYS_RMDIR:   CheckPath("rmdir", c, 0, true),

		// Linking system calls.
		unix.SYS_LINK:    CheckPath("link", c, 1, true),
		unix.SYS_LINKAT:  CheckPathAt("linkat", c, 2, 3, noFlags, yes),
		unix.SYS_UNLINK:  CheckPath("unlink", c, 0, true),
		unix.SYS_UNLINKAT: CheckPathAt("unlinkat", c, 0, 1, noFlags, yes),
		unix.SYS_SYMLINK: CheckPath("symlink", c, 1, true),

		// Miscellaneous other filesystem system calls.
		unix.SYS_CHDIR:    CheckPath("chdir", c, 0, false),
		unix.SYS_CHMOD:    CheckPath("chmod", c, 0, true),
		unix.SYS_UTIMENSAT: Utimensat(c),
		unix.SYS_UMASK:    domain.Allow,
		unix.SYS_FLOCK:    domain.Allow,
		unix.SYS_FSYNC:    domain.Allow,
		unix.SYS_FADVISE64: domain.Allow,
		unix.SYS_FCHMODAT: CheckPathAt("fchmodat", c, 0, 1, noFlags, yes),
		unix.SYS_FCHMOD:   Fchmod(c),
		unix.SYS_FALLOCATE: domain.Allow,
		unix.SYS_FTRUNCATE: domain.Allow,
		unix.SYS_RENAME:   Rename(c),
		unix.SYS_RENAMEAT: Renameat(c),

		// I/O system calls.
		unix.SYS_PWRITE64: domain.Allow,
		unix.SYS_SENDFILE: domain.Allow,

		// Event loop system calls the compiler's own driver uses.
		unix.SYS_EPOLL_CREATE:   domain.Allow,
		unix.SYS_EPOLL_CREATE1:  domain.Allow,
		unix.SYS_EPOLL_CTL:      domain.Allow,
		unix.SYS_EPOLL_WAIT:     domain.Allow,
		unix.SYS_EPOLL_PWAIT:    domain.Allow,
		unix.SYS_TIMERFD_SETTIME: domain.Allow,
		unix.SYS_EVENTFD2:       domain.Allow,
		unix.SYS_WAITID:         domain.Allow,
		unix.SYS_WAIT4:          domain.Allow,

		// Network system calls: compilers (e.g. fetching a toolchain
		// component) are not sandboxed on the network axis.
		unix.SYS_SOCKET:      domain.Allow,
		unix.SYS_SOCKETPAIR:  domain.Allow,
		unix.SYS_CONNECT:     domain.Allow,
		unix.SYS_SETSOCKOPT:  domain.Allow,
		unix.SYS_GETSOCKNAME: domain.Allow,
		unix.SYS_SENDMMSG:    domain.Allow,
		unix.SYS_RECVFROM:    domain.Allow,
		unix.SYS_SENDTO:      domain.Allow,

		// Miscellaneous other system calls.
		unix.SYS_MSYNC:           domain.Allow,
		unix.SYS_MEMFD_CREATE:    domain.Allow,
		unix.SYS_RT_SIGSUSPEND:   domain.Allow,
	} {
		t[num] = h
	}

	return t
}
