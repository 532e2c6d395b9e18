package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"

	"github.com/gux928/fastsync/protocol"
)

// SSHTransport drives a remote host by spawning the system ssh/scp
// binaries, the same way the teacher's own SSH integration works: no SSH
// client library is linked in, so whatever authentication, host-key
// checking, and agent-forwarding the user's local ssh config already does
// continues to apply unmodified.
type SSHTransport struct {
	Host       string
	Port       int
	User       string
	Identity   string
	RemoteRoot string

	// AgentBinary is the remote path to the fastsync executable, used when
	// spawning the agent process via OpenChannel. Empty means "fastsync",
	// resolved through the remote shell's PATH.
	AgentBinary string
}

func (t *SSHTransport) destination() string {
	if t.User != "" {
		return fmt.Sprintf("%s@%s", t.User, t.Host)
	}
	return t.Host
}

func (t *SSHTransport) sshArgs(extra ...string) []string {
	args := []string{}
	if t.Port != 0 {
		args = append(args, "-p", strconv.Itoa(t.Port))
	}
	if t.Identity != "" {
		args = append(args, "-i", t.Identity)
	}
	args = append(args, t.destination())
	args = append(args, extra...)
	return args
}

// Exec implements Transport.
func (t *SSHTransport) Exec(ctx context.Context, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ssh", t.sshArgs(command)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "transport: ssh exec %q failed: %s", command, stderr.String())
	}
	return stdout.Bytes(), nil
}

// UploadFile implements Transport by shelling out to scp.
func (t *SSHTransport) UploadFile(ctx context.Context, localPath, remotePath string) error {
	args := []string{}
	if t.Port != 0 {
		args = append(args, "-P", strconv.Itoa(t.Port))
	}
	if t.Identity != "" {
		args = append(args, "-i", t.Identity)
	}
	args = append(args, localPath, fmt.Sprintf("%s:%s", t.destination(), remotePath))

	cmd := exec.CommandContext(ctx, "scp", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "transport: scp %s -> %s failed: %s", localPath, remotePath, stderr.String())
	}
	return nil
}

// ListDir implements Transport by running a small `find`-based remote
// command and parsing its JSON-lines output. This is only used in
// agentless mode; agent-mediated mode uses the framed protocol instead.
func (t *SSHTransport) ListDir(ctx context.Context, remotePath string) ([]protocol.FileEntry, error) {
	command := fmt.Sprintf(
		`find %q -mindepth 1 -maxdepth 1 -printf '{"path":"%%P","size":%%s,"mtime":%%T@,"mode":"%%m","isdir":"%%y"}\n' 2>/dev/null`,
		remotePath,
	)
	out, err := t.Exec(ctx, command)
	if err != nil {
		return nil, err
	}

	var entries []protocol.FileEntry
	decoder := json.NewDecoder(bytes.NewReader(out))
	for decoder.More() {
		var raw struct {
			Path  string  `json:"path"`
			Size  int64   `json:"size"`
			MTime float64 `json:"mtime"`
			Mode  string  `json:"mode"`
			IsDir string  `json:"isdir"`
		}
		if err := decoder.Decode(&raw); err != nil {
			return nil, errors.Wrap(err, "transport: parsing remote listing")
		}
		mode, _ := strconv.ParseUint(raw.Mode, 8, 32)
		entries = append(entries, protocol.FileEntry{
			Path:    raw.Path,
			Size:    raw.Size,
			ModTime: int64(raw.MTime),
			Mode:    uint32(mode),
			IsDir:   raw.IsDir == "d",
		})
	}
	return entries, nil
}

// CreateDirAll implements Transport.
func (t *SSHTransport) CreateDirAll(ctx context.Context, remotePath string) error {
	_, err := t.Exec(ctx, fmt.Sprintf("mkdir -p %q", remotePath))
	return err
}

// OpenChannel implements Transport by spawning `fastsync --server` on the
// remote host and returning its stdin/stdout as a single duplex stream,
// mirroring how the teacher's SSH integration dials its own agent binary.
func (t *SSHTransport) OpenChannel(ctx context.Context) (io.ReadWriteCloser, error) {
	binary := t.AgentBinary
	if binary == "" {
		binary = "fastsync"
	}
	command := fmt.Sprintf("%s --server --root %q", binary, t.RemoteRoot)

	cmd := exec.CommandContext(ctx, "ssh", t.sshArgs(command)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transport: opening agent stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transport: opening agent stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "transport: spawning remote agent")
	}

	return &sshChannel{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// sshChannel adapts a spawned ssh process's stdin/stdout pipes plus its
// lifecycle into a single io.ReadWriteCloser.
type sshChannel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (c *sshChannel) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *sshChannel) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sshChannel) Close() error {
	stdinErr := c.stdin.Close()
	stdoutErr := c.stdout.Close()
	waitErr := c.cmd.Wait()
	if stdinErr != nil {
		return stdinErr
	}
	if stdoutErr != nil {
		return stdoutErr
	}
	return waitErr
}
