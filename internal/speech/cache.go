package speech

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Cache is the content-addressed audio artifact store. Artifacts are keyed
// by a hash of the synthesis input (voice + text), so identical requests
// hit the cache before any provider call; the profile segment keeps the
// tree browsable and sweepable per source.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Key derives the artifact key for a synthesis input.
func Key(voice Voice, text string) string {
	sum := blake2b.Sum256([]byte(voice.ID + "\n" + text))
	// 128 bits of a keyed-less BLAKE2b suffice for dedup; short names keep
	// the cache directory listable.
	return hex.EncodeToString(sum[:16])
}

// Path returns where an artifact lives, whether or not it exists.
func (c *Cache) Path(profileID, key, ext string) string {
	if ext == "" {
		ext = ".wav"
	}
	return filepath.Join(c.dir, profileID, key+ext)
}

// Get returns the artifact path when it is already cached.
func (c *Cache) Get(profileID, key, ext string) (string, bool) {
	path := c.Path(profileID, key, ext)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	return path, true
}

// Put stores audio bytes under the key and returns the artifact path.
// Written to a temp name and renamed, so readers never see a torn file.
func (c *Cache) Put(profileID, key, ext string, data []byte) (string, error) {
	path := c.Path(profileID, key, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write cache artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish cache artifact: %w", err)
	}
	return path, nil
}

// SweepOlderThan removes artifacts whose modification time is before the
// cutoff. Returns the number of files removed.
func (c *Cache) SweepOlderThan(cutoff int64) (int64, error) {
	var removed int64
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for _, profile := range entries {
		if !profile.IsDir() {
			continue
		}
		dir := filepath.Join(c.dir, profile.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || info.IsDir() {
				continue
			}
			if info.ModTime().UnixMilli() < cutoff {
				if os.Remove(filepath.Join(dir, f.Name())) == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}
