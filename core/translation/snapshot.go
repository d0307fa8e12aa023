// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package translation

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

const snapshotFilePermissions = 0o600

// snapshotEntry is one cache entry as written to a snapshot.
type snapshotEntry struct {
	Key   string
	Entry cacheEntry
}

// SaveSnapshot writes the unexpired entries to w as zstd-compressed gob.
func (c *Cache) SaveSnapshot(w io.Writer) error {
	var entries []snapshotEntry

	c.entries.Range(func(key string, entry cacheEntry) bool {
		if c.valid(entry) {
			entries = append(entries, snapshotEntry{Key: key, Entry: entry})
		}

		return true
	})

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create snapshot encoder: %w", err)
	}

	if err := gob.NewEncoder(enc).Encode(entries); err != nil {
		_ = enc.Close()

		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot adds the entries written by SaveSnapshot. Entries keep their
// original timestamps; those that expired in the meantime are skipped.
// It returns the number of entries loaded.
func (c *Cache) LoadSnapshot(r io.Reader) (int, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot decoder: %w", err)
	}
	defer dec.Close()

	var entries []snapshotEntry
	if err := gob.NewDecoder(dec).Decode(&entries); err != nil {
		return 0, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	loaded := 0

	// Snapshots list entries oldest first, so adding in order keeps the LRU order.
	for _, e := range entries {
		if !c.valid(e.Entry) {
			continue
		}

		c.entries.Add(e.Key, e.Entry)

		loaded++
	}

	return loaded, nil
}

// LoadSnapshotFile loads a snapshot from path. A missing file is not an error.
func (c *Cache) LoadSnapshotFile(path string) error {
	file, err := os.Open(path) // #nosec G304 -- path comes from the configuration
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("No cache snapshot found, starting empty")

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to open cache snapshot %s: %w", path, err)
	}
	defer file.Close()

	loaded, err := c.LoadSnapshot(file)
	if err != nil {
		return fmt.Errorf("failed to load cache snapshot %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("entries", loaded).Msg("Loaded cache snapshot")

	return nil
}

// SaveSnapshotFile writes a snapshot to path, replacing any previous one.
func (c *Cache) SaveSnapshotFile(path string) error {
	tmp := path + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, snapshotFilePermissions) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create cache snapshot %s: %w", tmp, err)
	}

	if err := c.SaveSnapshot(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)

		return err
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to close cache snapshot %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace cache snapshot %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("Saved cache snapshot")

	return nil
}
