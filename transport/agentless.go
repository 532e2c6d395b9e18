package transport

import (
	"context"
	"path"

	"github.com/gux928/fastsync/protocol"
)

// AgentlessScanner walks a remote tree without a fastsync agent process,
// using only the plain Transport capability set: repeated ListDir calls,
// recursing into every directory it discovers.
type AgentlessScanner struct {
	Transport Transport
	Root      string
}

// Scan implements Scanner. checksum is accepted for interface symmetry but
// has no effect here: a plain Transport has no way to read remote file
// content without an agent, so an agentless comparison always falls back to
// size/mtime regardless of the --checksum flag.
func (s *AgentlessScanner) Scan(ctx context.Context, excludes []string, checksum bool) (*protocol.Manifest, error) {
	manifest := &protocol.Manifest{RootPath: s.Root}
	if err := s.scanRecursive(ctx, "", excludes, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// scanRecursive lists relPath (relative to the root, "" meaning the root
// itself) and recurses into any directory entries it finds, accumulating
// results into manifest.
func (s *AgentlessScanner) scanRecursive(ctx context.Context, relPath string, excludes []string, manifest *protocol.Manifest) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	remotePath := path.Join(s.Root, relPath)
	entries, err := s.Transport.ListDir(ctx, remotePath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Path
		entry.Path = path.Join(relPath, name)
		if matchesAnyExclude(entry.Path, name, excludes) {
			continue
		}

		manifest.Entries = append(manifest.Entries, entry)
		if entry.IsDir {
			if err := s.scanRecursive(ctx, entry.Path, excludes, manifest); err != nil {
				return err
			}
		}
	}
	return nil
}
