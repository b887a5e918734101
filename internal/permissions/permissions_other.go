//go:build !unix

package permissions

import (
	"io/fs"
	"os"
	"strings"
)

// capture synthesizes POSIX-shaped permission bits on non-POSIX hosts:
// 0o755 for a writable file with a recognized executable extension,
// 0o644 for any other writable file, 0o555/0o444 for read-only files
// (executable/non-executable respectively).
func capture(path string, info fs.FileInfo) uint32 {
	writable := info.Mode().Perm()&0o200 != 0
	ext := strings.TrimPrefix(strings.ToLower(extOf(path)), ".")
	executable := executableExtensions[ext]

	switch {
	case writable && executable:
		return 0o755
	case writable:
		return 0o644
	case executable:
		return 0o555
	default:
		return 0o444
	}
}

// apply sets the read-only flag derived from the stored mode's write
// bit; non-POSIX hosts have no richer permission model to restore.
func apply(path string, mode uint32) error {
	if mode&0o200 != 0 {
		return os.Chmod(path, 0o666)
	}
	return os.Chmod(path, 0o444)
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}
