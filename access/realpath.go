package access

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/dmoj-sandbox/cptbox-go/policy"
)

// symlinkMax bounds how many symlink hops realpathNonStrict will follow,
// matching the kernel's own MAXSYMLINKS.
const symlinkMax = 40

// ErrTooManySymlinks is returned when resolution exceeds symlinkMax hops.
var ErrTooManySymlinks = errors.New("access: too many levels of symbolic links")

// realpathNonStrict resolves symlinks in path the way POSIX realpath(3)
// does without O_NOFOLLOW-on-last-component strictness: every existing
// component is followed, but a path whose final component does not exist
// (the common case for an O_CREAT open) is not an error, unlike
// filepath.EvalSymlinks, which requires the whole path to exist.
func realpathNonStrict(p string) (string, error) {
	return realpathNonStrictN(policy.Normalize(p), symlinkMax)
}

func realpathNonStrictN(p string, hopsLeft int) (string, error) {
	if p == "/" {
		return "/", nil
	}
	if hopsLeft <= 0 {
		return "", ErrTooManySymlinks
	}

	parentDir, base := filepath.Split(p)
	parentDir = policy.Normalize(parentDir)

	resolvedParent, err := realpathNonStrictN(parentDir, hopsLeft)
	if err != nil {
		return "", err
	}

	full := filepath.Join(resolvedParent, base)

	link, err := os.Readlink(full)
	if err != nil {
		// Not a symlink, or it (and possibly its parents) doesn't exist yet;
		// either way there is nothing further to resolve at this component.
		return full, nil
	}

	if filepath.IsAbs(link) {
		return realpathNonStrictN(policy.Normalize(link), hopsLeft-1)
	}
	return realpathNonStrictN(policy.Normalize(filepath.Join(resolvedParent, link)), hopsLeft-1)
}
