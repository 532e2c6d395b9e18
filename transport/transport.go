// Package transport defines the capability sets fastsync needs from a
// remote endpoint, and the concrete implementations that satisfy them: a
// direct SSH-spawned transport for agentless operation, and an
// agent-mediated client that speaks the framed wire protocol over a
// spawned remote process.
package transport

import (
	"context"
	"io"

	"github.com/gux928/fastsync/protocol"
)

// Transport is the minimal set of remote operations fastsync needs when no
// agent process is available on the far side: running a command, copying a
// single file, listing a directory, and creating directories. It is
// implemented directly over SSH/SCP in ssh.go.
type Transport interface {
	// Exec runs command on the remote host and returns its standard output.
	Exec(ctx context.Context, command string) ([]byte, error)

	// UploadFile copies the local file at localPath to remotePath.
	UploadFile(ctx context.Context, localPath, remotePath string) error

	// ListDir lists the immediate entries of a remote directory.
	ListDir(ctx context.Context, remotePath string) ([]protocol.FileEntry, error)

	// CreateDirAll creates remotePath and any missing parents.
	CreateDirAll(ctx context.Context, remotePath string) error

	// OpenChannel opens a bidirectional byte stream to a freshly spawned
	// remote agent process (`fastsync --server`), for agent-mediated mode.
	OpenChannel(ctx context.Context) (io.ReadWriteCloser, error)
}

// Scanner produces a Manifest of a directory tree, whether local, behind an
// agent, or accessed agentlessly over a plain Transport. When checksum is
// true, implementations that can read file content populate FileEntry.
// Checksum so the planner can compare by content instead of size/mtime;
// implementations that cannot (AgentlessScanner) leave it nil.
type Scanner interface {
	Scan(ctx context.Context, excludes []string, checksum bool) (*protocol.Manifest, error)
}
