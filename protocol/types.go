// Package protocol defines the wire types exchanged between a fastsync
// client and an agent, and the framing used to send them over a byte
// stream (an SSH-spawned process's stdin/stdout, typically).
package protocol

import "github.com/gux928/fastsync/blockengine"

// FileEntry describes one file or directory as seen by a directory scan.
// Checksum is only populated when the scan was asked to hash content (the
// --checksum comparison mode); it is nil for directories and for scans that
// compare by size/mtime instead.
type FileEntry struct {
	Path     string
	Size     int64
	ModTime  int64 // Unix seconds
	Mode     uint32
	IsDir    bool
	Checksum []byte
}

// Manifest is the full listing of a directory tree at a point in time.
type Manifest struct {
	GeneratedAt int64
	RootPath    string
	Entries     []FileEntry
}

// RequestKind tags which operation a Request carries.
type RequestKind uint8

const (
	ReqHello RequestKind = iota
	ReqGetManifest
	ReqGetSignature
	ReqApplyDelta
	ReqMkDir
	ReqSetMetadata
	ReqDelete
)

func (k RequestKind) String() string {
	switch k {
	case ReqHello:
		return "Hello"
	case ReqGetManifest:
		return "GetManifest"
	case ReqGetSignature:
		return "GetSignature"
	case ReqApplyDelta:
		return "ApplyDelta"
	case ReqMkDir:
		return "MkDir"
	case ReqSetMetadata:
		return "SetMetadata"
	case ReqDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Request is a flattened tagged union over every operation the agent
// understands. Only the fields relevant to Kind are populated; this mirrors
// the teacher's own flattened request/response shape rather than a Go
// sum-type emulation, since every variant here is small and the protocol is
// meant to stay append-only across versions.
type Request struct {
	Kind RequestKind

	// ReqHello
	ClientVersion uint32

	// ReqGetManifest
	Excludes []string
	Checksum bool

	// ReqGetSignature, ReqApplyDelta, ReqMkDir, ReqSetMetadata, ReqDelete
	Path string

	// ReqGetSignature
	BlockSize uint32

	// ReqApplyDelta
	Delta *blockengine.FileDelta

	// ReqSetMetadata
	ModTime int64
	Mode    uint32

	// ReqMkDir, ReqDelete
	IsDir bool
}

// ResponseKind tags which result a Response carries.
type ResponseKind uint8

const (
	RespHello ResponseKind = iota
	RespManifest
	RespSignature
	RespDone
	RespError
)

// Response is the flattened counterpart to Request. RespHello carries only
// ServerVersion; RespManifest, RespSignature and RespError carry Manifest,
// Signature and Error respectively; RespDone carries no payload beyond the
// Kind itself.
type Response struct {
	Kind ResponseKind

	ServerVersion uint32
	Manifest      *Manifest
	Signature     *blockengine.FileSignature
	Error         string
}

// IsError reports whether this response represents a failed operation.
func (r *Response) IsError() bool {
	return r.Kind == RespError
}
