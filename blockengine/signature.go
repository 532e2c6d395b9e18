// Package blockengine implements the block-level signature/delta/apply
// algorithm used to synchronize a single file incrementally: split the
// destination's existing content into fixed-size blocks, hash each block
// weakly and strongly, then let the source side find which of its own bytes
// already match one of those blocks before sending the rest as literal data.
package blockengine

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
	"lukechampine.com/blake3"

	"github.com/gux928/fastsync/checksum"
)

// DefaultBlockSize is used when a caller does not have a reason to pick a
// different block size.
const DefaultBlockSize = 4096

// strongHashSize is the number of leading bytes kept from the BLAKE3 digest
// of a block. 16 bytes of BLAKE3 output make an accidental collision
// vanishingly unlikely for the block counts fastsync deals with, while
// keeping signatures small to transmit.
const strongHashSize = 16

// BlockSignature identifies one block of a file: its position, a cheap
// rolling checksum, and a strong hash used to confirm any weak match.
type BlockSignature struct {
	Index  uint32
	Weak   uint32
	Strong [strongHashSize]byte
}

// FileSignature is the ordered set of block signatures covering a file, plus
// the parameters needed to reconstruct block boundaries.
type FileSignature struct {
	Blocks    []BlockSignature
	BlockSize uint32
	FileSize  int64
}

// ComputeSignature reads r fully and returns a FileSignature using the given
// block size. The final block may be shorter than blockSize.
func ComputeSignature(r io.Reader, blockSize uint32) (*FileSignature, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	br := bufio.NewReaderSize(r, int(blockSize))
	buf := make([]byte, blockSize)

	sig := &FileSignature{BlockSize: blockSize}
	var index uint32
	for {
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			block := buf[:n]
			sig.Blocks = append(sig.Blocks, BlockSignature{
				Index:  index,
				Weak:   weakHash(block),
				Strong: strongHash(block),
			})
			sig.FileSize += int64(n)
			index++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "blockengine: reading block for signature")
		}
	}
	return sig, nil
}

func weakHash(block []byte) uint32 {
	c := checksum.New()
	c.Update(block)
	return c.Digest()
}

func strongHash(block []byte) [strongHashSize]byte {
	h := blake3.New(strongHashSize, nil)
	h.Write(block)
	var out [strongHashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
