// Package summary implements the chronological backup-identity list
// (newest first), persisted as one codec-wrapped blob.
package summary

import (
	"context"
	"fmt"

	"gib/internal/codec"
	"gib/internal/layout"
	"gib/internal/metadata"
	"gib/internal/objectstore"
)

// Load reads and decodes the summaries list for key. A missing or empty
// blob yields an empty slice, not an error.
func Load(ctx context.Context, store objectstore.Store, key, password string) ([]metadata.Summary, error) {
	blob, err := store.Read(ctx, layout.SummariesPath(key))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return []metadata.Summary{}, nil
		}
		return nil, fmt.Errorf("summary: read: %w", err)
	}
	res, err := codec.Decode(blob, password)
	if err != nil {
		return nil, fmt.Errorf("summary: decode: %w", err)
	}
	list, err := metadata.UnmarshalSummaries(res.Plain)
	if err != nil {
		return nil, fmt.Errorf("summary: unmarshal: %w", err)
	}
	return list, nil
}

// Save serializes and writes the full summaries list back to store.
func Save(ctx context.Context, store objectstore.Store, key, password string, level codec.Level, list []metadata.Summary) error {
	data, err := metadata.MarshalSummaries(list)
	if err != nil {
		return fmt.Errorf("summary: marshal: %w", err)
	}
	blob, err := codec.Encode(data, level, password)
	if err != nil {
		return fmt.Errorf("summary: encode: %w", err)
	}
	if err := store.Write(ctx, layout.SummariesPath(key), blob); err != nil {
		return fmt.Errorf("summary: write: %w", err)
	}
	return nil
}

// Prepend returns a new list with entry inserted at position 0.
func Prepend(list []metadata.Summary, entry metadata.Summary) []metadata.Summary {
	out := make([]metadata.Summary, 0, len(list)+1)
	out = append(out, entry)
	out = append(out, list...)
	return out
}

// Remove returns a new list with every entry whose Hash equals hash
// filtered out.
func Remove(list []metadata.Summary, hash string) []metadata.Summary {
	out := make([]metadata.Summary, 0, len(list))
	for _, s := range list {
		if s.Hash == hash {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Resolve finds the summary selector names: a short hash (<=8 hex
// chars) matches the first entry whose hash starts with it, anything
// longer is taken as a full hash and matched exactly.
func Resolve(list []metadata.Summary, selector string) (metadata.Summary, bool) {
	const shortHashLen = 8
	for _, s := range list {
		if len(selector) <= shortHashLen {
			if len(s.Hash) >= len(selector) && s.Hash[:len(selector)] == selector {
				return s, true
			}
		} else if s.Hash == selector {
			return s, true
		}
	}
	return metadata.Summary{}, false
}
