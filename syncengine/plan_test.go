package syncengine

import (
	"testing"

	"github.com/gux928/fastsync/protocol"
)

func entry(path string, size, modTime int64, isDir bool) protocol.FileEntry {
	return protocol.FileEntry{Path: path, Size: size, ModTime: modTime, Mode: 0o644, IsDir: isDir}
}

func countKind(actions []SyncAction, kind ActionKind) int {
	n := 0
	for _, a := range actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// TestComputeDiff_S4 checks scenario S4: a changed file, a new file, and a
// stale remote file produce exactly the expected action counts with and
// without --delete.
func TestComputeDiff_S4(t *testing.T) {
	local := &protocol.Manifest{Entries: []protocol.FileEntry{
		entry("a.txt", 100, 2000, false), // changed (size differs from remote)
		entry("b.txt", 50, 1000, false),  // new
	}}
	remote := &protocol.Manifest{Entries: []protocol.FileEntry{
		entry("a.txt", 90, 1900, false),
		entry("c.txt", 10, 500, false), // stale, only removed with delete
	}}

	withoutDelete := ComputeDiff(local, remote, false, false)
	if got := len(withoutDelete); got != 2 {
		t.Fatalf("without delete: got %d actions, want 2: %+v", got, withoutDelete)
	}
	if countKind(withoutDelete, ActionUpload) != 2 {
		t.Fatalf("without delete: expected 2 uploads, got %+v", withoutDelete)
	}

	withDelete := ComputeDiff(local, remote, true, false)
	if got := len(withDelete); got != 3 {
		t.Fatalf("with delete: got %d actions, want 3: %+v", got, withDelete)
	}
	if countKind(withDelete, ActionDelete) != 1 {
		t.Fatalf("with delete: expected 1 delete, got %+v", withDelete)
	}

	// Deletes must precede uploads in the returned order.
	sawUpload := false
	for _, a := range withDelete {
		if a.Kind == ActionUpload {
			sawUpload = true
		}
		if a.Kind == ActionDelete && sawUpload {
			t.Fatalf("a Delete action appeared after an Upload action: %+v", withDelete)
		}
	}
}

// TestComputeDiff_UnchangedFileIsSkipped checks invariant 6: identical size
// and mtime (remote mtime >= local) means no action at all.
func TestComputeDiff_UnchangedFileIsSkipped(t *testing.T) {
	local := &protocol.Manifest{Entries: []protocol.FileEntry{entry("same.txt", 10, 1000, false)}}
	remote := &protocol.Manifest{Entries: []protocol.FileEntry{entry("same.txt", 10, 1000, false)}}

	actions := ComputeDiff(local, remote, false, false)
	if len(actions) != 0 {
		t.Fatalf("expected no actions for an unchanged file, got %+v", actions)
	}
}

// TestComputeDiff_TypeChangeDeletesBeforeCreating checks the type-change
// resolution: a path that was a directory remotely but is a file locally
// gets a Delete for the old directory before its MkDir/Upload replacement.
func TestComputeDiff_TypeChangeDeletesBeforeCreating(t *testing.T) {
	local := &protocol.Manifest{Entries: []protocol.FileEntry{entry("thing", 20, 1000, false)}}
	remote := &protocol.Manifest{Entries: []protocol.FileEntry{entry("thing", 0, 900, true)}}

	actions := ComputeDiff(local, remote, false, false)
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions (delete + upload), got %+v", actions)
	}
	if actions[0].Kind != ActionDelete || !actions[0].IsDir {
		t.Fatalf("first action = %+v, want Delete of the old directory", actions[0])
	}
	if actions[1].Kind != ActionUpload {
		t.Fatalf("second action = %+v, want Upload", actions[1])
	}
}

// TestComputeDiff_ChecksumCatchesContentChangeWithSameSizeAndMtime checks
// that --checksum mode notices a changed file even when size and mtime
// happen to match, and leaves a file with an identical hash alone.
func TestComputeDiff_ChecksumCatchesContentChangeWithSameSizeAndMtime(t *testing.T) {
	changed := entry("same-stat.txt", 10, 1000, false)
	changed.Checksum = []byte("hash-a")
	unchanged := entry("identical.txt", 10, 1000, false)
	unchanged.Checksum = []byte("hash-b")

	local := &protocol.Manifest{Entries: []protocol.FileEntry{changed, unchanged}}

	remoteChanged := changed
	remoteChanged.Checksum = []byte("hash-a-old")
	remoteUnchanged := unchanged
	remote := &protocol.Manifest{Entries: []protocol.FileEntry{remoteChanged, remoteUnchanged}}

	actions := ComputeDiff(local, remote, false, true)
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1: %+v", len(actions), actions)
	}
	if actions[0].Path != "same-stat.txt" {
		t.Fatalf("uploaded %q, want same-stat.txt", actions[0].Path)
	}
}

// TestComputeDiff_NewDirectoryOrdering checks that MkDir actions for nested
// new directories are ordered parent-before-child.
func TestComputeDiff_NewDirectoryOrdering(t *testing.T) {
	local := &protocol.Manifest{Entries: []protocol.FileEntry{
		entry("a/b/c", 0, 1000, true),
		entry("a", 0, 1000, true),
		entry("a/b", 0, 1000, true),
	}}
	remote := &protocol.Manifest{}

	actions := ComputeDiff(local, remote, false, false)
	if len(actions) != 3 {
		t.Fatalf("expected 3 MkDir actions, got %+v", actions)
	}
	for i := 1; i < len(actions); i++ {
		if depth(actions[i].Path) < depth(actions[i-1].Path) {
			t.Fatalf("MkDir actions not ordered shallowest-first: %+v", actions)
		}
	}
}
