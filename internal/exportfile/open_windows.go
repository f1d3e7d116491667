//go:build windows

package exportfile

import (
	"os"

	"github.com/hpungsan/feedvault/internal/errors"
)

// O_NOFOLLOW does not exist on Windows; Validate has already refused symlinks.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

func openNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
