package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

// maxMessageSize bounds a single frame's payload, guarding against a
// corrupted or hostile length prefix causing an unbounded allocation.
const maxMessageSize = 256 << 20 // 256 MiB

// Encoder writes length-prefixed, gob-encoded messages to an underlying
// writer. It reuses its internal buffer across calls, so a single Encoder
// must not be used concurrently.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder wraps w for framed writes.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode gob-encodes v and writes it as a single length-prefixed frame,
// flushing immediately so the peer can observe it without buffering delay.
func (e *Encoder) Encode(v interface{}) error {
	var payload buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return errors.Wrap(err, "protocol: encoding frame payload")
	}
	if len(payload.data) > maxMessageSize {
		return errors.Errorf("protocol: encoded frame of %d bytes exceeds maximum of %d", len(payload.data), maxMessageSize)
	}

	if cap(e.buf) < 4 {
		e.buf = make([]byte, 4)
	}
	e.buf = e.buf[:4]
	binary.BigEndian.PutUint32(e.buf, uint32(len(payload.data)))

	if _, err := e.w.Write(e.buf); err != nil {
		return errors.Wrap(err, "protocol: writing frame length")
	}
	if _, err := e.w.Write(payload.data); err != nil {
		return errors.Wrap(err, "protocol: writing frame payload")
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, "protocol: flushing frame")
		}
	}
	return nil
}

// Decoder reads length-prefixed, gob-encoded messages from an underlying
// reader. It reuses its internal buffer across calls, so a single Decoder
// must not be used concurrently.
type Decoder struct {
	r   *bufio.Reader
	buf []byte
}

// NewDecoder wraps r for framed reads.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next frame and gob-decodes it into v, which must be a
// pointer. It returns io.EOF only when the stream ends cleanly between
// frames (no bytes of a new frame have been read yet).
func (d *Decoder) Decode(v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.Wrap(err, "protocol: reading frame length")
	}

	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxMessageSize {
		return errors.Errorf("protocol: frame of %d bytes exceeds maximum of %d", size, maxMessageSize)
	}

	if cap(d.buf) < int(size) {
		d.buf = make([]byte, size)
	}
	d.buf = d.buf[:size]
	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		return errors.Wrap(err, "protocol: reading frame payload")
	}

	if err := gob.NewDecoder(&bytesReader{data: d.buf}).Decode(v); err != nil {
		return errors.Wrap(err, "protocol: decoding frame payload")
	}
	return nil
}

// buffer is a minimal io.Writer sink used to size a gob payload before
// framing it, avoiding an extra bytes.Buffer import-cycle concern in this
// small file.
type buffer struct {
	data []byte
}

func (b *buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// bytesReader adapts a byte slice to io.Reader without retaining a pointer
// back into the Decoder's reusable buffer across calls.
type bytesReader struct {
	data []byte
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
