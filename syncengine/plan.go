// Package syncengine computes the set of changes needed to bring a
// destination tree in line with a source tree, and executes that plan with
// a bounded pool of concurrent workers.
package syncengine

import (
	"bytes"
	"sort"
	"strings"

	"github.com/gux928/fastsync/protocol"
)

// ActionKind identifies what a SyncAction does.
type ActionKind int

const (
	// ActionMkDir creates a directory (and implicitly its parents) on the
	// destination.
	ActionMkDir ActionKind = iota
	// ActionUpload transfers a single file's content to the destination.
	ActionUpload
	// ActionDelete removes a path from the destination.
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionMkDir:
		return "MkDir"
	case ActionUpload:
		return "Upload"
	case ActionDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// SyncAction is one step of a sync plan. ModTime and Mode are only
// meaningful for ActionMkDir and ActionUpload: they carry the local
// entry's metadata so the executor can propagate it after the directory
// or file itself is created.
type SyncAction struct {
	Kind    ActionKind
	Path    string
	IsDir   bool
	ModTime int64
	Mode    uint32
}

// ComputeDiff compares local against remote and returns the ordered list
// of actions needed to make remote match local. When delete is true,
// destination entries absent from local are also scheduled for removal.
// When checksum is true and both sides carry a content hash for a path
// (see protocol.FileEntry.Checksum), a changed-file decision is made by
// comparing hashes instead of size/mtime; paths missing a hash on either
// side (directories, or a scan that couldn't produce one) still fall back
// to size/mtime.
//
// Delete actions are always ordered before MkDir/Upload actions, so a path
// that changes type between a file and a directory is torn down before its
// replacement is created (see the type-change resolution in the design
// notes). MkDir actions are ordered by path depth, shallowest first, so a
// parent directory always exists before any entry underneath it is
// created.
func ComputeDiff(local, remote *protocol.Manifest, delete, checksum bool) []SyncAction {
	remoteByPath := make(map[string]protocol.FileEntry, len(remote.Entries))
	for _, e := range remote.Entries {
		remoteByPath[e.Path] = e
	}
	localByPath := make(map[string]protocol.FileEntry, len(local.Entries))
	for _, e := range local.Entries {
		localByPath[e.Path] = e
	}

	var deletes []SyncAction
	var mkdirs []SyncAction
	var uploads []SyncAction

	for _, e := range local.Entries {
		remoteEntry, present := remoteByPath[e.Path]

		if !present {
			if e.IsDir {
				mkdirs = append(mkdirs, SyncAction{Kind: ActionMkDir, Path: e.Path, IsDir: true, ModTime: e.ModTime, Mode: e.Mode})
			} else {
				uploads = append(uploads, SyncAction{Kind: ActionUpload, Path: e.Path, ModTime: e.ModTime, Mode: e.Mode})
			}
			continue
		}

		if e.IsDir != remoteEntry.IsDir {
			// The path changed type between a file and a directory; tear
			// down the old entry before creating the replacement.
			deletes = append(deletes, SyncAction{Kind: ActionDelete, Path: e.Path, IsDir: remoteEntry.IsDir})
			if e.IsDir {
				mkdirs = append(mkdirs, SyncAction{Kind: ActionMkDir, Path: e.Path, IsDir: true, ModTime: e.ModTime, Mode: e.Mode})
			} else {
				uploads = append(uploads, SyncAction{Kind: ActionUpload, Path: e.Path, ModTime: e.ModTime, Mode: e.Mode})
			}
			continue
		}

		if e.IsDir {
			// Both sides already agree this path is a directory; nothing
			// to transfer.
			continue
		}

		if fileChanged(e, remoteEntry, checksum) {
			uploads = append(uploads, SyncAction{Kind: ActionUpload, Path: e.Path, ModTime: e.ModTime, Mode: e.Mode})
		}
	}

	if delete {
		for _, e := range remote.Entries {
			if _, present := localByPath[e.Path]; !present {
				deletes = append(deletes, SyncAction{Kind: ActionDelete, Path: e.Path, IsDir: e.IsDir})
			}
		}
	}

	sort.SliceStable(mkdirs, func(i, j int) bool {
		return depth(mkdirs[i].Path) < depth(mkdirs[j].Path)
	})

	actions := make([]SyncAction, 0, len(deletes)+len(mkdirs)+len(uploads))
	actions = append(actions, deletes...)
	actions = append(actions, mkdirs...)
	actions = append(actions, uploads...)
	return actions
}

// fileChanged decides whether local needs to be re-uploaded over remote.
func fileChanged(local, remote protocol.FileEntry, checksum bool) bool {
	if checksum && len(local.Checksum) > 0 && len(remote.Checksum) > 0 {
		return !bytes.Equal(local.Checksum, remote.Checksum)
	}
	return local.Size != remote.Size || local.ModTime > remote.ModTime
}

func depth(path string) int {
	return strings.Count(path, "/")
}
