package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gux928/fastsync/blockengine"
	"github.com/gux928/fastsync/protocol"
	"github.com/gux928/fastsync/transport"
)

// dispatch routes req to the handler for its Kind and always returns a
// Response, turning any handler error into a RespError rather than
// propagating it — a malformed or failing individual request must not
// tear down the connection.
func (s *Server) dispatch(req *protocol.Request) *protocol.Response {
	switch req.Kind {
	case protocol.ReqHello:
		if req.ClientVersion != protocolVersion {
			return s.errorResponse(req.Kind, errors.Errorf("agent: client speaks protocol version %d, want %d", req.ClientVersion, protocolVersion))
		}
		return &protocol.Response{Kind: protocol.RespHello, ServerVersion: protocolVersion}
	case protocol.ReqGetManifest:
		return s.handleGetManifest(req)
	case protocol.ReqGetSignature:
		return s.handleGetSignature(req)
	case protocol.ReqApplyDelta:
		return s.handleApplyDelta(req)
	case protocol.ReqMkDir:
		return s.handleMkDir(req)
	case protocol.ReqSetMetadata:
		return s.handleSetMetadata(req)
	case protocol.ReqDelete:
		return s.handleDelete(req)
	default:
		return s.errorResponse(req.Kind, errors.Errorf("agent: unknown request kind %d", req.Kind))
	}
}

// resolvePath maps a protocol-relative, forward-slash path onto an
// absolute path under s.Root, rejecting anything that would escape the
// root via ".." components or an absolute path of its own.
func (s *Server) resolvePath(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", errors.Errorf("agent: path %q escapes sync root", rel)
	}
	return filepath.Join(s.Root, clean), nil
}

func (s *Server) handleGetManifest(req *protocol.Request) *protocol.Response {
	scanner := &transport.LocalScanner{Root: s.Root}
	manifest, err := scanner.Scan(context.Background(), req.Excludes, req.Checksum)
	if err != nil {
		return s.errorResponse(req.Kind, err)
	}
	return &protocol.Response{Kind: protocol.RespManifest, Manifest: manifest}
}

func (s *Server) handleGetSignature(req *protocol.Request) *protocol.Response {
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return s.errorResponse(req.Kind, err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A file that doesn't exist yet has no blocks to match against;
			// the sender will see an empty signature and transfer its
			// content as one literal run.
			return &protocol.Response{
				Kind:      protocol.RespSignature,
				Signature: &blockengine.FileSignature{BlockSize: req.BlockSize},
			}
		}
		return s.errorResponse(req.Kind, errors.Wrapf(err, "agent: opening %q for signature", req.Path))
	}
	defer f.Close()

	sig, err := blockengine.ComputeSignature(f, req.BlockSize)
	if err != nil {
		return s.errorResponse(req.Kind, err)
	}
	return &protocol.Response{Kind: protocol.RespSignature, Signature: sig}
}

func (s *Server) handleApplyDelta(req *protocol.Request) *protocol.Response {
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return s.errorResponse(req.Kind, err)
	}
	if req.Delta == nil {
		return s.errorResponse(req.Kind, errors.New("agent: ApplyDelta request carried no delta"))
	}

	if err := applyDeltaAtomically(path, req.Delta); err != nil {
		return s.errorResponse(req.Kind, err)
	}
	return &protocol.Response{Kind: protocol.RespDone}
}

// applyDeltaAtomically reconstructs the new file content into a temporary
// file alongside path, then renames it into place, so a crash or failed
// apply never leaves a half-written file where the real one used to be.
func applyDeltaAtomically(path string, delta *blockengine.FileDelta) error {
	var old *os.File
	if existing, err := os.Open(path); err == nil {
		old = existing
		defer old.Close()
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "agent: opening existing %q", path)
	}

	tmpPath := path + ".tmp.rrsync"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "agent: creating temp file for %q", path)
	}

	var applyErr error
	if old != nil {
		applyErr = blockengine.ApplyDelta(old, delta, blockengine.DefaultBlockSize, tmp)
	} else {
		applyErr = blockengine.ApplyDelta(nil, delta, blockengine.DefaultBlockSize, tmp)
	}

	closeErr := tmp.Close()
	if applyErr != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(applyErr, "agent: applying delta to %q", path)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(closeErr, "agent: closing temp file for %q", path)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "agent: renaming temp file into place for %q", path)
	}
	return nil
}

func (s *Server) handleMkDir(req *protocol.Request) *protocol.Response {
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return s.errorResponse(req.Kind, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return s.errorResponse(req.Kind, errors.Wrapf(err, "agent: creating directory %q", req.Path))
	}
	return &protocol.Response{Kind: protocol.RespDone}
}

func (s *Server) handleSetMetadata(req *protocol.Request) *protocol.Response {
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return s.errorResponse(req.Kind, err)
	}
	mtime := time.Unix(req.ModTime, 0)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return s.errorResponse(req.Kind, errors.Wrapf(err, "agent: setting mtime on %q", req.Path))
	}
	if req.Mode != 0 {
		if err := os.Chmod(path, os.FileMode(req.Mode)); err != nil {
			return s.errorResponse(req.Kind, errors.Wrapf(err, "agent: setting mode on %q", req.Path))
		}
	}
	return &protocol.Response{Kind: protocol.RespDone}
}

func (s *Server) handleDelete(req *protocol.Request) *protocol.Response {
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return s.errorResponse(req.Kind, err)
	}

	var delErr error
	if req.IsDir {
		delErr = os.RemoveAll(path)
	} else {
		delErr = os.Remove(path)
	}
	if delErr != nil {
		return s.errorResponse(req.Kind, errors.Wrapf(delErr, "agent: deleting %q", req.Path))
	}
	return &protocol.Response{Kind: protocol.RespDone}
}
