// Package permissions captures and applies the POSIX permission bits a
// BackupObject records, synthesizing reasonable bits on hosts without a
// POSIX mode (see the platform-specific files in this package).
package permissions

import "io/fs"

// executableExtensions is consulted only by the non-POSIX capture path.
var executableExtensions = map[string]bool{
	"exe": true, "bat": true, "cmd": true, "com": true, "msi": true, "ps1": true,
}

// Capture derives the permission bits to store for a BackupObject from
// path and its fs.FileInfo.
func Capture(path string, info fs.FileInfo) uint32 {
	return capture(path, info)
}

// Apply sets the permission bits on the file at path after it has been
// written.
func Apply(path string, mode uint32) error {
	return apply(path, mode)
}
