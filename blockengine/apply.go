package blockengine

import (
	"io"

	"github.com/pkg/errors"
)

// ApplyDelta reconstructs the new file content by writing it to w, pulling
// Copy operations from old (seeking to each referenced block) and Data
// operations verbatim. old may be nil if delta contains no Copy ops (e.g.
// the destination file did not previously exist).
func ApplyDelta(old io.ReaderAt, delta *FileDelta, blockSize uint32, w io.Writer) error {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	buf := make([]byte, blockSize)
	for _, op := range delta.Ops {
		switch op.Kind {
		case OpCopy:
			if old == nil {
				return errors.Errorf("blockengine: delta references block %d but no prior file content was supplied", op.Index)
			}
			off := int64(op.Index) * int64(blockSize)
			n, err := old.ReadAt(buf, off)
			if err != nil && err != io.EOF {
				return errors.Wrapf(err, "blockengine: reading block %d at offset %d", op.Index, off)
			}
			if n == 0 {
				return errors.Errorf("blockengine: delta references block %d past end of prior file", op.Index)
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return errors.Wrap(err, "blockengine: writing copied block")
			}
		case OpData:
			if _, err := w.Write(op.Data); err != nil {
				return errors.Wrap(err, "blockengine: writing literal data")
			}
		default:
			return errors.Errorf("blockengine: unknown delta op kind %d", op.Kind)
		}
	}
	return nil
}
