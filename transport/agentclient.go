package transport

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/gux928/fastsync/blockengine"
	"github.com/gux928/fastsync/protocol"
)

// protocolVersion is bumped whenever Request/Response gain a field that
// changes wire semantics for an older peer. Appending new, optional fields
// does not require a bump; the protocol is designed to stay additive.
const protocolVersion = 1

// AgentClient is a Scanner and mutation client that speaks the framed wire
// protocol to a remote fastsync agent process over a single duplex
// channel. Requests are issued strictly one at a time: the agent processes
// them in FIFO order on a single goroutine, so AgentClient serializes
// access with a mutex rather than pipelining.
type AgentClient struct {
	conn io.ReadWriteCloser
	enc  *protocol.Encoder
	dec  *protocol.Decoder
	root string

	mu sync.Mutex
}

// NewAgentClient wraps conn (typically returned by Transport.OpenChannel)
// and performs the initial Hello handshake.
func NewAgentClient(conn io.ReadWriteCloser, root string) (*AgentClient, error) {
	c := &AgentClient{
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		dec:  protocol.NewDecoder(conn),
		root: root,
	}

	resp, err := c.roundTrip(&protocol.Request{Kind: protocol.ReqHello, ClientVersion: protocolVersion})
	if err != nil {
		return nil, errors.Wrap(err, "transport: agent handshake failed")
	}
	if resp.Kind != protocol.RespHello {
		return nil, errors.Errorf("transport: expected Hello response, got %v", resp.Kind)
	}
	if resp.ServerVersion != protocolVersion {
		c.conn.Close()
		return nil, errors.Errorf("transport: agent speaks protocol version %d, want %d", resp.ServerVersion, protocolVersion)
	}
	return c, nil
}

// Close closes the underlying channel.
func (c *AgentClient) Close() error {
	return c.conn.Close()
}

// roundTrip sends req and waits for the matching response. The caller must
// hold c.mu for any call sequence that must not interleave with another.
func (c *AgentClient) roundTrip(req *protocol.Request) (*protocol.Response, error) {
	if err := c.enc.Encode(req); err != nil {
		return nil, errors.Wrapf(err, "transport: sending %v request", req.Kind)
	}
	var resp protocol.Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, errors.Wrapf(err, "transport: awaiting %v response", req.Kind)
	}
	if resp.IsError() {
		return nil, errors.Errorf("transport: agent returned error for %v: %s", req.Kind, resp.Error)
	}
	return &resp, nil
}

// Scan implements Scanner by issuing a GetManifest request.
func (c *AgentClient) Scan(ctx context.Context, excludes []string, checksum bool) (*protocol.Manifest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTrip(&protocol.Request{Kind: protocol.ReqGetManifest, Excludes: excludes, Checksum: checksum})
	if err != nil {
		return nil, err
	}
	if resp.Manifest == nil {
		return nil, errors.New("transport: agent returned no manifest")
	}
	return resp.Manifest, nil
}

// GetSignature fetches the block signature of the remote file at path,
// computed with the given block size.
func (c *AgentClient) GetSignature(ctx context.Context, path string, blockSize uint32) (*blockengine.FileSignature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTrip(&protocol.Request{Kind: protocol.ReqGetSignature, Path: path, BlockSize: blockSize})
	if err != nil {
		return nil, err
	}
	if resp.Signature == nil {
		return nil, errors.New("transport: agent returned no signature")
	}
	return resp.Signature, nil
}

// ApplyDelta sends delta to be applied against the remote file at path.
func (c *AgentClient) ApplyDelta(ctx context.Context, path string, delta *blockengine.FileDelta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.roundTrip(&protocol.Request{Kind: protocol.ReqApplyDelta, Path: path, Delta: delta})
	return err
}

// MkDir creates path (and parents) on the remote side.
func (c *AgentClient) MkDir(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.roundTrip(&protocol.Request{Kind: protocol.ReqMkDir, Path: path, IsDir: true})
	return err
}

// SetMetadata applies mtime/mode to the remote file at path.
func (c *AgentClient) SetMetadata(ctx context.Context, path string, modTime int64, mode uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.roundTrip(&protocol.Request{Kind: protocol.ReqSetMetadata, Path: path, ModTime: modTime, Mode: mode})
	return err
}

// Delete removes path on the remote side.
func (c *AgentClient) Delete(ctx context.Context, path string, isDir bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.roundTrip(&protocol.Request{Kind: protocol.ReqDelete, Path: path, IsDir: isDir})
	return err
}
