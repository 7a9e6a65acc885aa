// Package checksum implements the rolling weak checksum and the strong
// content hash used by the delta engine, grounded on the classic rsync
// algorithm (cmars-replican-sync/replican's WeakChecksum) and on the
// teacher's xxhash/v2 dependency for the strong side.
package checksum

// Weak is the rsync-style rolling checksum: two accumulators (a, b) that
// can be advanced by one byte in O(1) without rescanning the window.
type Weak struct {
	a, b uint32
}

// NewWeak computes the weak checksum of buf from scratch.
func NewWeak(buf []byte) Weak {
	var w Weak
	w.Write(buf)
	return w
}

// Write folds buf into the checksum as if it were the whole initial window.
// The b weights are taken from len(buf) alone, so two Writes do not give
// the same result as one Write of the concatenated bytes.
func (w *Weak) Write(buf []byte) {
	n := len(buf)
	for i, c := range buf {
		w.a += uint32(c)
		w.b += uint32(n-i) * uint32(c)
	}
}

// Value returns the combined 32-bit weak hash.
func (w Weak) Value() uint32 {
	return w.b<<16 | (w.a & 0xffff)
}

// Roll advances the window by one byte: removed falls out of the front of
// the window, added enters at the back. windowSize is the fixed window
// length (the delta engine's block size). This is the O(1) incremental
// update spec §4.3 requires.
func (w *Weak) Roll(removed, added byte, windowSize uint32) {
	w.a = w.a - uint32(removed) + uint32(added)
	w.b = w.b - windowSize*uint32(removed) + w.a
}
