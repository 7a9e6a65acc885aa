package deltaengine

import (
	"bufio"
	"io"

	"github.com/Xiechengqi/sy/internal/checksum"
	"github.com/Xiechengqi/sy/internal/wire"
)

// maxLiteralChunk bounds how many consecutive literal bytes are packed
// into a single Literal op before it is flushed, per spec 4.3's "literal
// flushing discipline".
const maxLiteralChunk = 64 * 1024

type hashEntry struct {
	offset uint64
	strong wire.StrongHash
}

func buildHashTable(checksums []wire.BlockChecksum) map[uint32][]hashEntry {
	t := make(map[uint32][]hashEntry, len(checksums))
	for _, c := range checksums {
		t[c.Weak] = append(t[c.Weak], hashEntry{offset: c.Offset, strong: c.Strong})
	}
	return t
}

func matchStrong(entries []hashEntry, strong wire.StrongHash) (uint64, bool) {
	for _, e := range entries {
		if e.strong == strong {
			return e.offset, true
		}
	}
	return 0, false
}

// ring is a fixed-capacity byte window used to hold the current sliding
// window's contents, needed only to re-hash with a strong digest on a
// weak-hash hit. Push/evict are O(1); this is the "one window buffer" of
// bounded memory the algorithm is allowed.
type ring struct {
	buf   []byte
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]byte, capacity)}
}

func (r *ring) push(b byte) (evicted byte, wasFull bool) {
	if r.size == len(r.buf) {
		evicted = r.buf[r.start]
		r.buf[r.start] = b
		r.start = (r.start + 1) % len(r.buf)
		return evicted, true
	}
	idx := (r.start + r.size) % len(r.buf)
	r.buf[idx] = b
	r.size++
	return 0, false
}

func (r *ring) full() bool { return r.size == len(r.buf) }

func (r *ring) bytes() []byte {
	out := make([]byte, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) reset() { r.start, r.size = 0, 0 }

// fillFreshWindow reads up to len(rg.buf) bytes from br into a freshly
// reset window, returning the weak hash computed over it. Used both for
// the initial window and after every confirmed block match, where the
// algorithm advances by a whole block rather than one byte.
func fillFreshWindow(br *bufio.Reader, rg *ring) (checksum.Weak, error) {
	rg.reset()
	buf := make([]byte, len(rg.buf))
	n, err := io.ReadFull(br, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return checksum.Weak{}, err
	}
	for i := 0; i < n; i++ {
		rg.push(buf[i])
	}
	return checksum.NewWeak(buf[:n]), nil
}

// GenerateDelta computes the op stream that reconstructs the content read
// from r, given the block checksums of a prior copy, per the sliding-window
// algorithm in spec 4.3. The weak hash is maintained incrementally
// (O(1) per byte) via checksum.Weak.Roll; a strong hash is only recomputed
// on a weak-hash hit.
func GenerateDelta(r io.Reader, checksums []wire.BlockChecksum, blockSize uint32) ([]Op, error) {
	table := buildHashTable(checksums)
	br := bufio.NewReaderSize(r, int(blockSize)*4)

	window := newRing(int(blockSize))
	var literal []byte
	var ops []Op

	flushLiteral := func() {
		for len(literal) > 0 {
			n := len(literal)
			if n > maxLiteralChunk {
				n = maxLiteralChunk
			}
			ops = append(ops, LiteralOp(append([]byte(nil), literal[:n]...)))
			literal = literal[n:]
		}
		literal = nil
	}

	weak, err := fillFreshWindow(br, window)
	if err != nil {
		return nil, err
	}

	for window.full() {
		if entries, ok := table[weak.Value()]; ok {
			strong := checksum.Sum(window.bytes())
			if offset, matched := matchStrong(entries, wire.StrongHash(strong)); matched {
				flushLiteral()
				ops = append(ops, CopyOp(offset, blockSize))
				weak, err = fillFreshWindow(br, window)
				if err != nil {
					return nil, err
				}
				continue
			}
		}

		added, err := br.ReadByte()
		atEOF := err == io.EOF
		if err != nil && !atEOF {
			return nil, err
		}
		removed, _ := window.push(added)
		literal = append(literal, removed)
		if atEOF {
			// No new byte entered the window; it now holds one fewer
			// byte than blockSize and the loop below drains it as tail.
			window.size--
			break
		}
		weak.Roll(removed, added, blockSize)
	}

	literal = append(literal, window.bytes()...)
	flushLiteral()
	return ops, nil
}
