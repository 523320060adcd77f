package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProcFS struct {
	cwd  string
	fds  map[int32]string
	err  error
}

func (f *fakeProcFS) ReadCwd(tid uint32) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.cwd, nil
}

func (f *fakeProcFS) ReadFd(tid uint32, fd int32) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	p, ok := f.fds[fd]
	if !ok {
		return "", errors.New("no such fd")
	}
	return p, nil
}

func TestResolveAbsolutePathIgnoresDirfd(t *testing.T) {
	got, err := Resolve(&fakeProcFS{}, 1, "/etc/passwd", uint64(uint32(ATFDCWD)))
	require.NoError(t, err)
	require.Equal(t, "/etc/passwd", got)
}

func TestResolveRelativeUsesCwdUnderATFDCWD(t *testing.T) {
	fs := &fakeProcFS{cwd: "/work"}
	got, err := Resolve(fs, 1, "out.txt", uint64(uint32(ATFDCWD)))
	require.NoError(t, err)
	require.Equal(t, "/work/out.txt", got)
}

func TestResolveRelativeUsesDirFdTable(t *testing.T) {
	fs := &fakeProcFS{fds: map[int32]string{3: "/home/user/project"}}
	got, err := Resolve(fs, 1, "src/main.go", uint64(3))
	require.NoError(t, err)
	require.Equal(t, "/home/user/project/src/main.go", got)
}

func TestResolveCollapsesDotDot(t *testing.T) {
	fs := &fakeProcFS{cwd: "/work/sub"}
	got, err := Resolve(fs, 1, "../out.txt", uint64(uint32(ATFDCWD)))
	require.NoError(t, err)
	require.Equal(t, "/work/out.txt", got)
}

func TestSignExtendFDRecoversNegativeSentinel(t *testing.T) {
	require.Equal(t, ATFDCWD, SignExtendFD(uint64(uint32(ATFDCWD))))
	require.Equal(t, int32(3), SignExtendFD(3))
}

func TestResolvePropagatesProcFSError(t *testing.T) {
	fs := &fakeProcFS{err: ErrNoSuchThread}
	_, err := Resolve(fs, 1, "x", uint64(uint32(ATFDCWD)))
	require.ErrorIs(t, err, ErrNoSuchThread)
}

func TestResolveIsAlwaysAbsolute(t *testing.T) {
	fs := &fakeProcFS{cwd: "/"}
	got, err := Resolve(fs, 1, "a/b/c", uint64(uint32(ATFDCWD)))
	require.NoError(t, err)
	require.True(t, len(got) > 0 && got[0] == '/')
}
