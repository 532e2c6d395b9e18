package transport

import (
	"io"
	"testing"

	"github.com/gux928/fastsync/protocol"
)

// fakeDuplex is a minimal in-memory io.ReadWriteCloser pair, letting a test
// stand in for an agent without speaking real handler logic.
type fakeDuplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d *fakeDuplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *fakeDuplex) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d *fakeDuplex) Close() error {
	_ = d.r.Close()
	return d.w.Close()
}

func newFakeDuplexPair() (client, server *fakeDuplex) {
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()
	client = &fakeDuplex{r: serverToClientR, w: clientToServerW}
	server = &fakeDuplex{r: clientToServerR, w: serverToClientW}
	return client, server
}

// TestNewAgentClientRejectsServerVersionMismatch checks that NewAgentClient
// treats a Hello response carrying a different ServerVersion as a fatal
// handshake failure, even though the response is otherwise well formed
// (Kind == RespHello, not RespError) — a peer speaking a protocol version
// fastsync doesn't share must never be treated as compatible.
func TestNewAgentClientRejectsServerVersionMismatch(t *testing.T) {
	clientConn, serverConn := newFakeDuplexPair()

	enc := protocol.NewEncoder(serverConn)
	dec := protocol.NewDecoder(serverConn)
	go func() {
		var req protocol.Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		_ = enc.Encode(&protocol.Response{Kind: protocol.RespHello, ServerVersion: protocolVersion + 1})
	}()

	_, err := NewAgentClient(clientConn, "/tmp")
	if err == nil {
		t.Fatalf("expected NewAgentClient to reject a mismatched server version")
	}
}
