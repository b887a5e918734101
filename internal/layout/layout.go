// Package layout implements the deterministic blob-path scheme every
// repository uses under its key prefix: chunks, backups, and the three
// index blobs (chunk index, summaries, pending journals).
package layout

import (
	"fmt"
	"strings"
)

const pendingPrefix = "pending_"

// ChunkPath returns the blob path for chunk hash h under key.
// Layout: key/chunks/<h[0:2]>/<h[2:]>.
func ChunkPath(key, h string) string {
	return fmt.Sprintf("%s/chunks/%s/%s", key, h[:2], h[2:])
}

// ChunksDir returns the listing prefix for every chunk blob under key.
func ChunksDir(key string) string {
	return key + "/chunks"
}

// BackupPath returns the blob path for a backup manifest identified by
// hash, under key.
func BackupPath(key, hash string) string {
	return key + "/backups/" + hash
}

// BackupsDir returns the listing prefix for every backup manifest blob
// under key.
func BackupsDir(key string) string {
	return key + "/backups"
}

// ChunkIndexPath returns the blob path of the chunk index under key.
func ChunkIndexPath(key string) string {
	return key + "/indexes/chunks"
}

// SummariesPath returns the blob path of the summaries list under key.
func SummariesPath(key string) string {
	return key + "/indexes/backups"
}

// IndexesDir returns the listing prefix for the indexes directory under
// key, used by prune to discover stray pending journals.
func IndexesDir(key string) string {
	return key + "/indexes"
}

// PendingPath returns the blob path of the pending journal for an
// in-progress backup identified by hash, under key.
func PendingPath(key, hash string) string {
	return key + "/indexes/" + pendingPrefix + hash
}

// IsPendingPath reports whether the final path segment begins with the
// pending-journal prefix.
func IsPendingPath(path string) bool {
	_, name := splitLast(path)
	return strings.HasPrefix(name, pendingPrefix)
}

// ChunkHashFromPath reconstructs a chunk's logical hash from a listed
// chunk blob path: the last two path segments concatenated
// (parent_last_segment || last_segment).
func ChunkHashFromPath(path string) (string, bool) {
	parent, last := splitLast(path)
	if parent == "" {
		return "", false
	}
	_, parentLast := splitLast(parent)
	if parentLast == "" || last == "" {
		return "", false
	}
	return parentLast + last, true
}

func splitLast(path string) (rest, last string) {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
