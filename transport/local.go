package transport

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"lukechampine.com/blake3"

	"github.com/gux928/fastsync/protocol"
)

// LocalScanner walks a directory on the local filesystem and produces a
// Manifest with forward-slash-normalized relative paths, regardless of
// host OS, so manifests from either side of a sync compare equal when the
// trees match.
type LocalScanner struct {
	Root string
}

// Scan implements Scanner.
func (s *LocalScanner) Scan(ctx context.Context, excludes []string, checksum bool) (*protocol.Manifest, error) {
	root := s.Root
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: stat root %q", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("transport: root %q is not a directory", root)
	}

	manifest := &protocol.Manifest{RootPath: root}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			return errors.Wrapf(walkErr, "transport: walking %q", path)
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrapf(err, "transport: computing relative path for %q", path)
		}
		rel = filepath.ToSlash(rel)

		if matchesAnyExclude(rel, d.Name(), excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "transport: statting %q", path)
		}

		mode, isDir := entryMode(fi)
		entry := protocol.FileEntry{
			Path:    rel,
			Size:    fi.Size(),
			ModTime: fi.ModTime().Unix(),
			Mode:    mode,
			IsDir:   isDir,
		}
		if checksum && !isDir {
			sum, err := fileContentHash(path)
			if err != nil {
				return errors.Wrapf(err, "transport: hashing %q", path)
			}
			entry.Checksum = sum
		}
		manifest.Entries = append(manifest.Entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return manifest, nil
}

// matchesAnyExclude reports whether rel (or its base name) matches one of
// the exclude patterns. Patterns are doublestar globs (supporting "**" for
// arbitrary depth, in addition to "*", "?" and "[...]" classes) and are
// matched both against the full relative path and the entry's base name,
// mirroring the common gitignore convention that a bare pattern like
// "*.tmp" matches at any depth while "build/output" anchors to a specific
// relative path.
func matchesAnyExclude(rel, base string, excludes []string) bool {
	for _, pattern := range excludes {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		pattern = filepath.ToSlash(pattern)
		if match, _ := doublestar.Match(pattern, base); match {
			return true
		}
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

// fileContentHash hashes the full content of the file at path, for
// --checksum mode comparisons where size and mtime aren't trusted.
func fileContentHash(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// entryMode reports the Unix-style permission bits and directory flag for
// fi, synthesizing conventional defaults (0755 for directories, 0644 for
// files) on platforms where the raw mode bits aren't meaningful the same
// way they are on Unix.
func entryMode(fi fs.FileInfo) (mode uint32, isDir bool) {
	isDir = fi.IsDir()
	perm := fi.Mode().Perm()
	if perm == 0 {
		if isDir {
			return 0o755, isDir
		}
		return 0o644, isDir
	}
	return uint32(perm), isDir
}
