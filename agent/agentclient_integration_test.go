package agent_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gux928/fastsync/agent"
	"github.com/gux928/fastsync/blockengine"
	"github.com/gux928/fastsync/transport"
)

// duplexPipe wires two io.Pipe pairs into a single io.ReadWriteCloser pair
// so a client and an agent server can talk to each other in-process,
// standing in for the SSH-spawned channel transport.SSHTransport.OpenChannel
// would normally return.
type duplexPipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d *duplexPipe) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *duplexPipe) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d *duplexPipe) Close() error {
	_ = d.r.Close()
	return d.w.Close()
}

func newDuplexPair() (client, server *duplexPipe) {
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()
	client = &duplexPipe{r: serverToClientR, w: clientToServerW}
	server = &duplexPipe{r: clientToServerR, w: serverToClientW}
	return client, server
}

// TestAgentClientEndToEndSync drives a full GetManifest/GetSignature/
// ApplyDelta cycle through a real agent.Serve loop and a real AgentClient,
// checking that a locally edited file reaches the agent's root directory
// with exactly the edited content once applied.
func TestAgentClientEndToEndSync(t *testing.T) {
	remoteRoot := t.TempDir()
	oldContent := "the quick brown fox jumps over the lazy dog."
	if err := os.WriteFile(filepath.Join(remoteRoot, "file.txt"), []byte(oldContent), 0o644); err != nil {
		t.Fatalf("seeding remote file: %v", err)
	}

	clientConn, serverConn := newDuplexPair()
	go func() {
		_ = agent.Serve(remoteRoot, serverConn, serverConn, zerolog.Nop())
	}()

	client, err := transport.NewAgentClient(clientConn, remoteRoot)
	if err != nil {
		t.Fatalf("NewAgentClient: %v", err)
	}
	defer client.Close()

	manifest, err := client.Scan(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(manifest.Entries) != 1 || manifest.Entries[0].Path != "file.txt" {
		t.Fatalf("manifest = %+v, want a single file.txt entry", manifest.Entries)
	}

	sig, err := client.GetSignature(context.Background(), "file.txt", 10)
	if err != nil {
		t.Fatalf("GetSignature: %v", err)
	}

	newContent := make([]byte, len(oldContent))
	copy(newContent, oldContent)
	copy(newContent[4:9], []byte("slow!"))

	delta, err := blockengine.ComputeDelta(newContent, sig)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}

	if err := client.ApplyDelta(context.Background(), "file.txt", delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(remoteRoot, "file.txt"))
	if err != nil {
		t.Fatalf("reading applied file: %v", err)
	}
	if string(got) != string(newContent) {
		t.Fatalf("applied content = %q, want %q", got, newContent)
	}
}

// TestAgentClientUploadsBrandNewFile checks that requesting a signature
// for a path the agent has never seen yields an empty signature, and that
// applying a delta computed against it creates the file.
func TestAgentClientUploadsBrandNewFile(t *testing.T) {
	remoteRoot := t.TempDir()

	clientConn, serverConn := newDuplexPair()
	go func() {
		_ = agent.Serve(remoteRoot, serverConn, serverConn, zerolog.Nop())
	}()

	client, err := transport.NewAgentClient(clientConn, remoteRoot)
	if err != nil {
		t.Fatalf("NewAgentClient: %v", err)
	}
	defer client.Close()

	sig, err := client.GetSignature(context.Background(), "new.txt", 4096)
	if err != nil {
		t.Fatalf("GetSignature: %v", err)
	}
	if len(sig.Blocks) != 0 {
		t.Fatalf("expected an empty signature for a nonexistent file, got %+v", sig.Blocks)
	}

	content := []byte("brand new file content")
	delta, err := blockengine.ComputeDelta(content, sig)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}

	if err := client.ApplyDelta(context.Background(), "new.txt", delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(remoteRoot, "new.txt"))
	if err != nil {
		t.Fatalf("reading new file: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("content = %q, want %q", got, content)
	}
}
