package blockengine

import "github.com/gux928/fastsync/checksum"

// DeltaOpKind distinguishes the two kinds of delta operation.
type DeltaOpKind uint8

const (
	// OpCopy references a block already present on the receiving side.
	OpCopy DeltaOpKind = iota
	// OpData carries literal bytes the receiving side does not have.
	OpData
)

// DeltaOp is one instruction in a FileDelta: either copy block Index from
// the receiver's existing file, or write Data verbatim.
type DeltaOp struct {
	Kind  DeltaOpKind
	Index uint32
	Data  []byte
}

// FileDelta is the ordered sequence of operations that reconstruct a file's
// new content on top of its old content, plus the resulting file size.
type FileDelta struct {
	Ops       []DeltaOp
	FinalSize int64
}

// ComputeDelta compares data (the sender's current content) against sig (the
// receiver's existing block signatures) and produces the minimal set of
// operations needed to turn the receiver's file into data.
//
// Candidate blocks are matched in ascending index order: when more than one
// block shares a weak checksum, the first one (by index) whose strong hash
// also matches wins, keeping the result deterministic.
func ComputeDelta(data []byte, sig *FileSignature) (*FileDelta, error) {
	blockSize := int(sig.BlockSize)
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	buckets := make(map[uint32][]*BlockSignature, len(sig.Blocks))
	for i := range sig.Blocks {
		b := &sig.Blocks[i]
		buckets[b.Weak] = append(buckets[b.Weak], b)
	}

	n := len(data)
	var ops []DeltaOp
	literalStart := 0
	i := 0
	var rc *checksum.RollingChecksum

	flushLiteral := func(end int) {
		if end <= literalStart {
			return
		}
		buf := make([]byte, end-literalStart)
		copy(buf, data[literalStart:end])
		ops = append(ops, DeltaOp{Kind: OpData, Data: buf})
	}

	for i+blockSize <= n {
		if rc == nil {
			rc = checksum.New()
			rc.Update(data[i : i+blockSize])
		}

		weak := rc.Digest()
		var matched *BlockSignature
		if candidates, ok := buckets[weak]; ok {
			window := data[i : i+blockSize]
			strong := strongHash(window)
			for _, c := range candidates {
				if c.Strong == strong {
					matched = c
					break
				}
			}
		}

		if matched != nil {
			flushLiteral(i)
			ops = append(ops, DeltaOp{Kind: OpCopy, Index: matched.Index})
			i += blockSize
			literalStart = i
			rc = nil
			continue
		}

		if i+blockSize < n {
			rc.Roll(data[i], data[i+blockSize])
			i++
		} else {
			i++
			rc = nil
		}
	}

	flushLiteral(n)
	return &FileDelta{Ops: ops, FinalSize: int64(n)}, nil
}
