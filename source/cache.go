package source

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/types"
)

var safeKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Cache keeps one docker-save archive per image ID. An archive's presence is
// a hit; contents are not re-validated.
type Cache struct {
	baseDir string
	hits    int64
	misses  int64
}

// NewCache creates a cache rooted at baseDir
func NewCache(baseDir string) *Cache {
	return &Cache{baseDir: baseDir}
}

func (c *Cache) imagesDir() string {
	return filepath.Join(c.baseDir, "images")
}

// Path returns where the archive for id is stored
func (c *Cache) Path(id string) string {
	key := strings.ReplaceAll(id, ":", "-")
	if !safeKey.MatchString(key) {
		sum := sha256.Sum256([]byte(id))
		key = hex.EncodeToString(sum[:])
	}
	return filepath.Join(c.imagesDir(), key+".tar")
}

// Lookup returns the cached archive for id
func (c *Cache) Lookup(id string) (string, bool) {
	path := c.Path(id)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		atomic.AddInt64(&c.hits, 1)
		return path, true
	}
	atomic.AddInt64(&c.misses, 1)
	return "", false
}

// Store runs write against a temporary file and moves the result into place,
// so a failed or interrupted export never leaves a partial archive behind.
func (c *Cache) Store(id string, write func(path string) error) (string, error) {
	dir := c.imagesDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperrors.NewIOError("cache_store", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.tar")
	if err != nil {
		return "", apperrors.NewIOError("cache_store", dir, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	path := c.Path(id)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", apperrors.NewIOError("cache_store", path, err)
	}

	return path, nil
}

// Info summarizes the cached archives
func (c *Cache) Info() (*types.CacheInfo, error) {
	info := &types.CacheInfo{
		Dir:    c.baseDir,
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
	if total := info.Hits + info.Misses; total > 0 {
		info.HitRate = float64(info.Hits) / float64(total)
	}

	entries, err := c.entries()
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		info.TotalFiles++
		info.TotalSize += entry.Size()
		if info.Oldest.IsZero() || entry.ModTime().Before(info.Oldest) {
			info.Oldest = entry.ModTime()
		}
	}

	return info, nil
}

// Prune removes archives older than maxAge; zero removes everything. It
// returns the number of archives removed and the bytes freed.
func (c *Cache) Prune(maxAge time.Duration) (int, int64, error) {
	entries, err := c.entries()
	if err != nil {
		return 0, 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed, freed := 0, int64(0)

	for _, entry := range entries {
		if maxAge > 0 && entry.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(c.imagesDir(), entry.Name())
		if err := os.Remove(path); err != nil {
			return removed, freed, apperrors.NewIOError("cache_prune", path, err)
		}
		removed++
		freed += entry.Size()
	}

	return removed, freed, nil
}

// entries lists cached archives, including leftovers from interrupted stores
func (c *Cache) entries() ([]os.FileInfo, error) {
	dirEntries, err := os.ReadDir(c.imagesDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewIOError("cache_list", c.imagesDir(), err)
	}

	var infos []os.FileInfo
	for _, entry := range dirEntries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
