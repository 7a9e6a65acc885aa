package deltaengine

import (
	"fmt"
	"io"
)

// Applier applies a delta op stream against an open "original" file to an
// open staging file. Per spec 4.3 the original handle is opened once per
// path and held for the entire delta application; callers construct one
// Applier per file and reuse its copy buffer across every Data frame that
// belongs to that file.
type Applier struct {
	original io.ReaderAt
	staging  io.Writer
	copyBuf  []byte
	written  uint64
}

func NewApplier(original io.ReaderAt, staging io.Writer, blockSize uint32) *Applier {
	return &Applier{
		original: original,
		staging:  staging,
		copyBuf:  make([]byte, blockSize),
	}
}

// Apply runs one decoded op against the applier's original/staging pair.
func (a *Applier) Apply(op Op) error {
	switch op.Kind {
	case OpCopy:
		return a.applyCopy(op)
	case OpLiteral:
		return a.applyLiteral(op)
	default:
		return fmt.Errorf("deltaengine: unknown op kind 0x%02x", byte(op.Kind))
	}
}

func (a *Applier) applyCopy(op Op) error {
	remaining := op.Length
	offset := int64(op.Offset)
	for remaining > 0 {
		want := uint32(len(a.copyBuf))
		if want > remaining {
			want = remaining
		}
		buf := a.copyBuf[:want]
		n, err := a.original.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return fmt.Errorf("deltaengine: copy read at %d: %w", offset, err)
		}
		// A short read means the original file is no longer as long as the
		// checksums this op was generated against promised (spec 7: an
		// out-of-range delta offset is a fatal per-file protocol error, not
		// a gap to be padded in). Writing less than the op asked for would
		// silently splice stale copyBuf bytes into staging.
		if uint32(n) != want {
			return fmt.Errorf("deltaengine: copy read at %d: got %d of %d bytes, original file changed underneath the transfer", offset, n, want)
		}
		if _, err := a.staging.Write(buf[:n]); err != nil {
			return fmt.Errorf("deltaengine: copy write: %w", err)
		}
		offset += int64(n)
		remaining -= uint32(n)
		a.written += uint64(n)
	}
	return nil
}

func (a *Applier) applyLiteral(op Op) error {
	if _, err := a.staging.Write(op.Literal); err != nil {
		return fmt.Errorf("deltaengine: literal write: %w", err)
	}
	a.written += uint64(len(op.Literal))
	return nil
}

// BytesWritten returns the total number of staging-file bytes produced so
// far, used to populate SyncStats.BytesTransferred alongside literal/copy
// accounting done by the caller.
func (a *Applier) BytesWritten() uint64 { return a.written }
