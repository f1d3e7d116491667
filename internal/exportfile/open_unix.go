//go:build !windows

package exportfile

import (
	stderrors "errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hpungsan/feedvault/internal/errors"
)

// openNoFollow opens path with O_NOFOLLOW so a symlink in the final component
// is refused. Directory components are covered by Validate.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := unix.Open(path, flag|unix.O_NOFOLLOW|unix.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, unix.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

func openNoFollowRead(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		if stderrors.Is(err, unix.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		}
		if stderrors.Is(err, unix.ENOENT) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
