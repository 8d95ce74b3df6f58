package storage

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// tempPrefix marks in-progress writes. Cleanup and readers never see them
// because they are renamed into place only once complete.
const tempPrefix = ".tmp-"

// LocalStorage persists files on disk under a base directory. It backs the
// "local" object store driver (served by a static mount) and the short lived
// export copies swept by the maintenance cron.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./static"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes data to key atomically.
func (s *LocalStorage) Save(key string, data []byte) (string, error) {
	return s.SaveStream(key, bytes.NewReader(data))
}

// SaveStream copies r into key. The file appears under its final name only
// after the copy succeeded, so a static mount never serves a partial slide.
func (s *LocalStorage) SaveStream(key string, r io.Reader) (string, error) {
	dst := s.resolve(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("commit %s: %w", key, err)
	}
	return key, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(key string) (*os.File, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return file, nil
}

// Delete removes a stored file if present, then prunes directories it leaves empty.
func (s *LocalStorage) Delete(key string) error {
	target := s.resolve(key)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.prune(filepath.Dir(target))
	return nil
}

// CleanupOlderThan removes files under prefix last modified before now-ttl and
// returns their keys in lexical order. Abandoned temp files are swept too.
func (s *LocalStorage) CleanupOlderThan(prefix string, ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	root := s.resolve(prefix)
	var deleted []string
	dirs := map[string]struct{}{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		dirs[filepath.Dir(p)] = struct{}{}
		if strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			rel = p
		}
		deleted = append(deleted, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup %s: %w", prefix, err)
	}
	for dir := range dirs {
		if dir != root {
			s.prune(dir)
		}
	}
	sort.Strings(deleted)
	return deleted, nil
}

// Path exposes the on-disk path for a key.
func (s *LocalStorage) Path(key string) string {
	return s.resolve(key)
}

// prune removes empty directories from dir upwards, stopping at the base.
func (s *LocalStorage) prune(dir string) {
	base := filepath.Clean(s.baseDir)
	for dir = filepath.Clean(dir); dir != base && strings.HasPrefix(dir, base); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// resolve maps a key to a path inside baseDir; ".." segments cannot escape it.
func (s *LocalStorage) resolve(key string) string {
	clean := filepath.Clean("/" + filepath.ToSlash(key))
	return filepath.Join(s.baseDir, clean)
}
