// Package agent implements the remote half of fastsync's framed protocol:
// a single-threaded loop that reads one request at a time from its input,
// dispatches it against a rooted directory tree, and writes back exactly
// one response before reading the next request. It is what `fastsync
// --server` runs as, typically spawned over SSH by the client side.
package agent

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gux928/fastsync/protocol"
)

// protocolVersion mirrors transport.protocolVersion, which is unexported,
// so the agent keeps its own copy of the value.
const protocolVersion = 1

// Server runs the agent's read-dispatch-write loop over a single duplex
// connection, rooted at a directory on the local filesystem.
type Server struct {
	Root   string
	Logger zerolog.Logger

	dec *protocol.Decoder
	enc *protocol.Encoder
}

// Serve reads requests from r and writes responses to w until r is closed
// or a read/write error occurs. It never panics on malformed individual
// requests; those become RespError responses so the connection stays
// usable, matching the protocol's framing-level resilience requirement.
func Serve(root string, r io.Reader, w io.Writer, logger zerolog.Logger) error {
	s := &Server{
		Root:   root,
		Logger: logger,
		dec:    protocol.NewDecoder(r),
		enc:    protocol.NewEncoder(w),
	}
	return s.run()
}

func (s *Server) run() error {
	for {
		var req protocol.Request
		if err := s.dec.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "agent: reading request")
		}

		resp := s.dispatch(&req)

		if err := s.enc.Encode(resp); err != nil {
			return errors.Wrap(err, "agent: writing response")
		}
	}
}

// errorResponse builds a RespError response from err, logging it at debug
// level (stderr only — the agent's stdout carries the protocol stream and
// must never receive anything else).
func (s *Server) errorResponse(op protocol.RequestKind, err error) *protocol.Response {
	s.Logger.Debug().Err(err).Stringer("op", op).Msg("agent: request failed")
	return &protocol.Response{Kind: protocol.RespError, Error: err.Error()}
}
