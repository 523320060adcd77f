package access

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dmoj-sandbox/cptbox-go/domain"
	"github.com/dmoj-sandbox/cptbox-go/errno"
	"github.com/dmoj-sandbox/cptbox-go/internal/testutil"
	"github.com/dmoj-sandbox/cptbox-go/policy"
	"github.com/dmoj-sandbox/cptbox-go/resolve"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)
	return log
}

type cwdProcFS struct{ cwd string }

func (f cwdProcFS) ReadCwd(tid uint32) (string, error)        { return f.cwd, nil }
func (f cwdProcFS) ReadFd(tid uint32, fd int32) (string, error) { return "", os.ErrNotExist }

func newChecker(t *testing.T, readRules, writeRules []domain.Rule, cwd string) *Checker {
	t.Helper()
	c := NewChecker(policy.Compile(readRules), policy.Compile(writeRules), discardLogger())
	c.ProcFS = cwdProcFS{cwd: cwd}
	return c
}

// Symlink escape: jail allows /sandbox
// recursively; /sandbox/evil is a symlink to a file outside the jail.
func TestSymlinkEscapeIsDenied(t *testing.T) {
	tmp := t.TempDir()
	sandbox := filepath.Join(tmp, "sandbox")
	secret := filepath.Join(tmp, "secret")
	require.NoError(t, os.Mkdir(sandbox, 0o755))
	require.NoError(t, os.WriteFile(secret, []byte("hunter2"), 0o600))
	evil := filepath.Join(sandbox, "evil")
	require.NoError(t, os.Symlink(secret, evil))

	c := newChecker(t, []domain.Rule{domain.RecursiveDirRule(sandbox)}, nil, "/")
	dbg := testutil.NewFakeDebugger()

	_, deny := c.Check(dbg, evil, uint64(uint32(resolve.ATFDCWD)), false)
	require.NotNil(t, deny)
	require.Equal(t, errno.EACCES, deny)
}

// A symlink that stays within the jail on both ends is admitted.
func TestSymlinkWithinJailIsAdmitted(t *testing.T) {
	tmp := t.TempDir()
	sandbox := filepath.Join(tmp, "sandbox")
	require.NoError(t, os.Mkdir(sandbox, 0o755))
	target := filepath.Join(sandbox, "real.txt")
	require.NoError(t, os.WriteFile(target, nil, 0o600))
	link := filepath.Join(sandbox, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	c := newChecker(t, []domain.Rule{domain.RecursiveDirRule(sandbox)}, nil, "/")
	dbg := testutil.NewFakeDebugger()

	got, deny := c.Check(dbg, link, uint64(uint32(resolve.ATFDCWD)), false)
	require.Nil(t, deny)
	require.Equal(t, policy.Normalize(link), got)
}

// /proc/self projection: policy is checked against
// the literal /proc/self/exe; identity uses /proc/<tid>/exe.
func TestProcSelfProjectionUsesLiteralFormForPolicy(t *testing.T) {
	c := newChecker(t, []domain.Rule{domain.ExactFileRule("/proc/self/exe")}, nil, "/")
	c.RealPath = func(p string) (string, error) { return p, nil }
	c.SameFile = func(a, b string) (bool, error) { return true, nil }

	dbg := testutil.NewFakeDebugger()
	dbg.TidVal = 4711

	got, deny := c.Check(dbg, "/proc/self/exe", uint64(uint32(resolve.ATFDCWD)), false)
	require.Nil(t, deny)
	require.Equal(t, "/proc/self/exe", got)
}

func TestProcSelfNotInPolicyIsDenied(t *testing.T) {
	c := newChecker(t, nil, nil, "/")
	c.RealPath = func(p string) (string, error) { return p, nil }
	c.SameFile = func(a, b string) (bool, error) { return true, nil }

	dbg := testutil.NewFakeDebugger()
	dbg.TidVal = 4711

	_, deny := c.Check(dbg, "/proc/self/exe", uint64(uint32(resolve.ATFDCWD)), false)
	require.Equal(t, errno.EACCES, deny)
}

// openat write derivation via CWD.
func TestRelativePathResolvesAgainstCwdAndChecksWriteJail(t *testing.T) {
	c := newChecker(t, nil, []domain.Rule{domain.RecursiveDirRule("/work")}, "/work")
	c.RealPath = func(p string) (string, error) { return p, nil }
	c.SameFile = func(a, b string) (bool, error) { return true, nil }

	dbg := testutil.NewFakeDebugger()
	got, deny := c.Check(dbg, "out.txt", uint64(uint32(resolve.ATFDCWD)), true)
	require.Nil(t, deny)
	require.Equal(t, "/work/out.txt", got)
}

func TestReadPathDeniesNullPointer(t *testing.T) {
	c := newChecker(t, nil, nil, "/")
	dbg := testutil.NewFakeDebugger()
	_, deny := c.ReadPath("open", dbg, 0)
	require.Equal(t, errno.EFAULT, deny)
}

// Oversized path.
func TestReadPathDeniesOverlyLongPath(t *testing.T) {
	c := newChecker(t, nil, nil, "/")
	dbg := testutil.NewFakeDebugger()
	huge := make([]byte, MaxPathLength+2)
	for i := range huge {
		huge[i] = 'a'
	}
	dbg.Bytes[0x1000] = huge // no NUL within bound -> ENAMETOOLONG

	_, deny := c.ReadPath("open", dbg, 0x1000)
	require.Equal(t, errno.ENAMETOOLONG, deny)
}

func TestReadPathDeniesInvalidEncoding(t *testing.T) {
	c := newChecker(t, nil, nil, "/")
	dbg := testutil.NewFakeDebugger()
	dbg.Bytes[0x2000] = []byte{0xff, 0xfe, 0xfd, 0}

	_, deny := c.ReadPath("open", dbg, 0x2000)
	require.Equal(t, errno.ENOENT, deny)
}

func TestReadPathReturnsCleanString(t *testing.T) {
	c := newChecker(t, nil, nil, "/")
	dbg := testutil.NewFakeDebugger()
	dbg.SetPath(0x3000, "/tmp/a.txt")

	got, deny := c.ReadPath("open", dbg, 0x3000)
	require.Nil(t, deny)
	require.Equal(t, "/tmp/a.txt", got)
}

func TestDenyWhenOutsideJail(t *testing.T) {
	c := newChecker(t, []domain.Rule{domain.RecursiveDirRule("/allowed")}, nil, "/")
	c.RealPath = func(p string) (string, error) { return p, nil }
	c.SameFile = func(a, b string) (bool, error) { return true, nil }

	dbg := testutil.NewFakeDebugger()
	_, deny := c.Check(dbg, "/etc/shadow", uint64(uint32(resolve.ATFDCWD)), false)
	require.Equal(t, errno.EACCES, deny)
}

func TestSameFileErrorDeniesWithENOENT(t *testing.T) {
	c := newChecker(t, []domain.Rule{domain.RecursiveDirRule("/allowed")}, nil, "/")
	c.RealPath = func(p string) (string, error) { return "/elsewhere", nil }
	c.SameFile = func(a, b string) (bool, error) { return false, os.ErrNotExist }

	dbg := testutil.NewFakeDebugger()
	_, deny := c.Check(dbg, "/allowed/gone", uint64(uint32(resolve.ATFDCWD)), false)
	require.Equal(t, errno.ENOENT, deny)
}

func TestProcTidPathFormatsDecimal(t *testing.T) {
	require.Equal(t, "/proc/"+strconv.Itoa(4711), procTidPath(4711))
}
