//go:build unix

package permissions

import (
	"io/fs"
	"os"
)

func capture(_ string, info fs.FileInfo) uint32 {
	return uint32(info.Mode().Perm()) & 0o777
}

func apply(path string, mode uint32) error {
	return os.Chmod(path, fs.FileMode(mode&0o777))
}
