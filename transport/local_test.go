package transport

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFixture(t *testing.T, root string, rel string, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for fixture %q: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %q: %v", rel, err)
	}
}

func TestLocalScannerListsEntriesWithForwardSlashPaths(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.txt", "hello")
	writeFixture(t, root, "sub/b.txt", "world")

	scanner := &LocalScanner{Root: root}
	manifest, err := scanner.Scan(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var paths []string
	for _, e := range manifest.Entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)

	want := []string{"a.txt", "sub", "sub/b.txt"}
	if len(paths) != len(want) {
		t.Fatalf("got paths %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("got paths %v, want %v", paths, want)
		}
	}
}

func TestLocalScannerChecksumModeHashesFilesNotDirectories(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.txt", "same content")
	writeFixture(t, root, "sub/b.txt", "same content")

	scanner := &LocalScanner{Root: root}
	manifest, err := scanner.Scan(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var aHash, bHash []byte
	for _, e := range manifest.Entries {
		switch e.Path {
		case "a.txt":
			aHash = e.Checksum
		case "sub/b.txt":
			bHash = e.Checksum
		case "sub":
			if e.Checksum != nil {
				t.Fatalf("directory entry %q got a non-nil checksum: %x", e.Path, e.Checksum)
			}
		}
	}
	if len(aHash) == 0 || len(bHash) == 0 {
		t.Fatalf("expected both files to carry a checksum, got a=%x b=%x", aHash, bHash)
	}
	if string(aHash) != string(bHash) {
		t.Fatalf("identical content hashed differently: %x vs %x", aHash, bHash)
	}
}

func TestLocalScannerHonorsExcludes(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "keep.txt", "x")
	writeFixture(t, root, "skip.tmp", "y")
	writeFixture(t, root, "vendor/dep.go", "z")

	scanner := &LocalScanner{Root: root}
	manifest, err := scanner.Scan(context.Background(), []string{"*.tmp", "vendor"}, false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for _, e := range manifest.Entries {
		if e.Path == "skip.tmp" || e.Path == "vendor" || e.Path == "vendor/dep.go" {
			t.Fatalf("excluded path %q present in manifest: %+v", e.Path, manifest.Entries)
		}
	}

	found := false
	for _, e := range manifest.Entries {
		if e.Path == "keep.txt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected keep.txt in manifest, got %+v", manifest.Entries)
	}
}

// TestLocalScannerHonorsDoublestarExcludes checks that "**" exclude
// patterns match at arbitrary depth, a capability filepath.Match alone
// cannot provide.
func TestLocalScannerHonorsDoublestarExcludes(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "keep.txt", "x")
	writeFixture(t, root, "a/b/c/build.log", "y")

	scanner := &LocalScanner{Root: root}
	manifest, err := scanner.Scan(context.Background(), []string{"**/*.log"}, false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for _, e := range manifest.Entries {
		if e.Path == "a/b/c/build.log" {
			t.Fatalf("excluded path %q present in manifest: %+v", e.Path, manifest.Entries)
		}
	}
}
