// Package access decides admit vs. deny-with-errno for a raw path, a
// debugger handle, whether this is a write, and an optional dirfd.
//
// The eight-step procedure here is ported directly from DMOJ's cptbox
// isolate.py IsolateTracer._file_access_check: resolve the path, project
// /proc/self, compare normalized vs. real (symlink-resolved) forms with a
// same-file identity check, then consult the chosen jail on both forms.
package access

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/dmoj-sandbox/cptbox-go/domain"
	"github.com/dmoj-sandbox/cptbox-go/errno"
	"github.com/dmoj-sandbox/cptbox-go/policy"
	"github.com/dmoj-sandbox/cptbox-go/resolve"
)

// MaxPathLength bounds how long a path read from tracee memory may be
// before the resolver gives up and denies with ENAMETOOLONG.
const MaxPathLength = 4096

// procSelfPrefix is the literal prefix the /proc/self projection rewrites.
// Only paths that begin with this exact literal prefix are projected;
// pathological forms reachable only after lexical normalization are out of
// scope.
const procSelfPrefix = "/proc/self"

// Checker applies a read/write jail to a resolved path, including the
// symlink-divergence re-check and /proc/self projection.
type Checker struct {
	ReadPolicy  *policy.Tree
	WritePolicy *policy.Tree
	ProcFS      resolve.ProcFS

	// RealPath and SameFile are injection seams over symlink resolution and
	// inode identity, so tests can drive adversarial symlink-escape
	// scenarios with stubbed resolution where real symlinks aren't needed,
	// and against real temporary directories where they are.
	RealPath func(path string) (string, error)
	SameFile func(a, b string) (bool, error)

	Log *logrus.Logger
}

// NewChecker builds a Checker wired to the real OS filesystem.
func NewChecker(readPolicy, writePolicy *policy.Tree, log *logrus.Logger) *Checker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Checker{
		ReadPolicy:  readPolicy,
		WritePolicy: writePolicy,
		ProcFS:      resolve.OSProcFS{},
		RealPath:    realpathNonStrict,
		SameFile:    osSameFile,
		Log:         log,
	}
}

func osSameFile(a, b string) (bool, error) {
	fa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(fa, fb), nil
}

// ReadPath reads a path argument from tracee memory. A NULL pointer denies
// with EFAULT, an over-length read denies with ENAMETOOLONG, undecodable
// bytes deny with ENOENT.
func (c *Checker) ReadPath(syscallName string, d domain.Debugger, ptr uint64) (string, *errno.Action) {
	if ptr == 0 {
		return "", errno.EFAULT
	}

	raw, err := d.ReadBytes(ptr, MaxPathLength+1)
	if err != nil {
		c.Log.Warnf("denied access via syscall %s: failed to read path: %v", syscallName, err)
		return "", errno.ENAMETOOLONG
	}

	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		c.Log.Warnf("denied access via syscall %s to overly long path", syscallName)
		return "", errno.ENAMETOOLONG
	}
	raw = raw[:nul]

	if !utf8.Valid(raw) {
		c.Log.Warnf("denied access via syscall %s to path with invalid encoding: %q", syscallName, raw)
		return "", errno.ENOENT
	}

	return string(raw), nil
}

// Check runs the full access-check procedure. rawPath is the (non-empty) string
// already read from tracee memory via ReadPath; dirfdRaw is the raw
// directory-fd register, interpreted per resolve.Resolve. write selects
// which jail governs the decision.
func (c *Checker) Check(d domain.Debugger, rawPath string, dirfdRaw uint64, write bool) (string, *errno.Action) {
	normalized, err := resolve.Resolve(c.ProcFS, d.Tid(), rawPath, dirfdRaw)
	if err != nil {
		c.Log.Debugf("denying access: path resolution failed for %q: %v", rawPath, err)
		return rawPath, errno.ENOENT
	}

	// /proc/self projection: the literal form is kept
	// for policy matching, the projected form (/proc/<tid>/...) is used for
	// the symlink/identity checks below, since /proc/self inside the tracee
	// refers to the traced thread, not to this process.
	projected := normalized
	if strings.HasPrefix(normalized, procSelfPrefix) {
		rel := strings.TrimPrefix(normalized, procSelfPrefix)
		projected = policy.Normalize(procTidPath(d.Tid()) + rel)
	}

	real, err := c.RealPath(projected)
	if err != nil {
		real = projected
	}
	real = policy.Normalize(real)

	if normalized != real {
		same, err := c.SameFile(projected, real)
		if err != nil {
			c.Log.Debugf("denying access due to inability to stat: normalized=%s real=%s: %v", normalized, real, err)
			return normalized, errno.ENOENT
		}
		if !same {
			c.Log.Warnf("denying access due to suspected symlink trickery: normalized=%s real=%s", normalized, real)
			return normalized, errno.EACCES
		}
	}

	jail := c.ReadPolicy
	if write {
		jail = c.WritePolicy
	}

	if !jail.Check(normalized) {
		return normalized, errno.EACCES
	}

	if normalized != real {
		deprojected := real
		if strings.HasPrefix(real, procTidPath(d.Tid())) {
			deprojected = policy.Normalize(procSelfPrefix + strings.TrimPrefix(real, procTidPath(d.Tid())))
		}
		if !jail.Check(deprojected) {
			return deprojected, errno.EACCES
		}
	}

	return normalized, nil
}

func procTidPath(tid uint32) string {
	return "/proc/" + strconv.FormatUint(uint64(tid), 10)
}
