// Package extract drives the external clang extractor tools over a
// compilation database, caching per-TU fragments keyed by source mtime.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Cache subdirectory names under <out>/cache.
const (
	ipmDir = "ipm"
	icgDir = "icg"
	lmtDir = "lmt"
)

// fragmentExt is the extension of cached fragment files.
const fragmentExt = ".json"

// Cache mirrors source paths under <root>/cache/{ipm,icg,lmt}. The lmt file
// holds the source's decimal mtime; a TU with both fragments present and a
// matching lmt skips re-extraction. A changed source invalidates exactly its
// own three files.
type Cache struct {
	Root string
}

// NewCache creates the cache rooted at the output directory.
func NewCache(outputDir string) *Cache {
	return &Cache{Root: filepath.Join(outputDir, "cache")}
}

// mirror maps an absolute source path into a cache subtree.
func (c *Cache) mirror(kind, source string) string {
	rel := strings.TrimPrefix(filepath.ToSlash(source), "/")

	return filepath.Join(c.Root, kind, filepath.FromSlash(rel))
}

// IPMPath returns the cached polymorph fragment path for source.
func (c *Cache) IPMPath(source string) string {
	return c.mirror(ipmDir, source) + fragmentExt
}

// ICGPath returns the cached call-graph fragment path for source.
func (c *Cache) ICGPath(source string) string {
	return c.mirror(icgDir, source) + fragmentExt
}

// lmtPath returns the mtime stamp path for source.
func (c *Cache) lmtPath(source string) string {
	return c.mirror(lmtDir, source)
}

// IPMRoot returns the polymorph fragment tree root.
func (c *Cache) IPMRoot() string {
	return filepath.Join(c.Root, ipmDir)
}

// ICGRoot returns the call-graph fragment tree root.
func (c *Cache) ICGRoot() string {
	return filepath.Join(c.Root, icgDir)
}

// stamp returns the decimal mtime of the source file.
func stamp(source string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	return strconv.FormatInt(info.ModTime().UnixNano(), 10), nil
}

// Fresh reports whether both fragments exist for source and the recorded
// mtime still matches.
func (c *Cache) Fresh(source string) bool {
	want, err := stamp(source)
	if err != nil {
		return false
	}

	recorded, err := os.ReadFile(c.lmtPath(source))
	if err != nil || strings.TrimSpace(string(recorded)) != want {
		return false
	}

	for _, path := range []string{c.IPMPath(source), c.ICGPath(source)} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}

	return true
}

// Stamp records the source mtime. Called only after both fragments are in
// place, so an interrupt can never leave a stamp pointing at missing
// fragments.
func (c *Cache) Stamp(source string) error {
	value, err := stamp(source)
	if err != nil {
		return err
	}

	path := c.lmtPath(source)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lmt dir: %w", err)
	}

	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write lmt: %w", err)
	}

	return nil
}

// Invalidate removes the cached fragments and stamp for source. Missing
// files are not an error.
func (c *Cache) Invalidate(source string) error {
	for _, path := range []string{c.lmtPath(source), c.IPMPath(source), c.ICGPath(source)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("invalidate %s: %w", path, err)
		}
	}

	return nil
}
