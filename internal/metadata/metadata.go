// Package metadata defines the persisted record types the repository
// engine reads and writes: backup manifests, the chunk index, the
// chronological summaries list, and the pending-backup journal. Every
// record is serialized with MessagePack; unknown fields on read are
// ignored, and optional fields tolerate absence, by construction of the
// struct tags below.
package metadata

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"gib/internal/codec"
)

// ContentType is the constant, reserved content-type string recorded for
// every BackupObject.
const ContentType = "application/octet-stream"

// BackupObject is a single file's entry in a backup manifest tree.
type BackupObject struct {
	Hash        string   `msgpack:"hash"`
	Size        int64    `msgpack:"size"`
	ContentType string   `msgpack:"content_type"`
	Permissions uint32   `msgpack:"permissions"`
	Chunks      []string `msgpack:"chunks"`
}

// Backup is an immutable snapshot manifest.
type Backup struct {
	Message   string                  `msgpack:"message"`
	Hash      string                  `msgpack:"hash"`
	Timestamp uint64                  `msgpack:"timestamp"`
	Author    string                  `msgpack:"author"`
	Tree      map[string]BackupObject `msgpack:"tree"`
}

// Summary is a chronological index entry for a backup. Timestamp and
// Size are optional: older entries may omit them, so they are pointers
// and a nil value means "absent", not zero.
type Summary struct {
	Message   string  `msgpack:"message"`
	Hash      string  `msgpack:"hash"`
	Timestamp *uint64 `msgpack:"timestamp,omitempty"`
	Size      *uint64 `msgpack:"size,omitempty"`
}

// Pending is the best-effort journal of an in-progress backup.
type Pending struct {
	Message         string   `msgpack:"message"`
	Compress        bool     `msgpack:"compress"`
	ChunkSize       uint64   `msgpack:"chunk_size"`
	Concurrency     uint32   `msgpack:"concurrency"`
	IgnorePatterns  []string `msgpack:"ignore_patterns"`
	ProcessedChunks []string `msgpack:"processed_chunks"`
}

// MarshalBackup encodes a Backup as MessagePack.
func MarshalBackup(b Backup) ([]byte, error) {
	return marshal(b)
}

// UnmarshalBackup decodes a Backup from MessagePack bytes.
func UnmarshalBackup(data []byte) (Backup, error) {
	var b Backup
	if err := unmarshal(data, &b); err != nil {
		return Backup{}, err
	}
	if b.Tree == nil {
		b.Tree = map[string]BackupObject{}
	}
	return b, nil
}

// MarshalSummaries encodes the chronological summaries list.
func MarshalSummaries(summaries []Summary) ([]byte, error) {
	return marshal(summaries)
}

// UnmarshalSummaries decodes the chronological summaries list. An empty
// blob decodes to an empty, non-nil slice.
func UnmarshalSummaries(data []byte) ([]Summary, error) {
	if len(data) == 0 {
		return []Summary{}, nil
	}
	var summaries []Summary
	if err := unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []Summary{}
	}
	return summaries, nil
}

// MarshalChunkIndex encodes a hash->refcount mapping.
func MarshalChunkIndex(entries map[string]uint32) ([]byte, error) {
	return marshal(entries)
}

// UnmarshalChunkIndex decodes a hash->refcount mapping. An empty blob
// decodes to an empty, non-nil map.
func UnmarshalChunkIndex(data []byte) (map[string]uint32, error) {
	if len(data) == 0 {
		return map[string]uint32{}, nil
	}
	var entries map[string]uint32
	if err := unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = map[string]uint32{}
	}
	return entries, nil
}

// MarshalPending encodes a Pending journal record.
func MarshalPending(p Pending) ([]byte, error) {
	return marshal(p)
}

// UnmarshalPending decodes a Pending journal record.
func UnmarshalPending(data []byte) (Pending, error) {
	var p Pending
	if err := unmarshal(data, &p); err != nil {
		return Pending{}, err
	}
	return p, nil
}

func marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal: %w: %w", codec.ErrSerialization, err)
	}
	return data, nil
}

func unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("metadata: unmarshal: %w: %w", codec.ErrSerialization, err)
	}
	return nil
}
