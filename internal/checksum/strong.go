package checksum

import "github.com/cespare/xxhash/v2"

// strongSeedB is an arbitrary fixed constant used to derive the second half
// of the 128-bit strong hash from a second, differently-seeded xxhash pass
// over the same bytes. xxhash/v2 only exposes a 64-bit digest (as the
// teacher uses it in server.go's ChecksumChunk); concatenating two
// independent digests gets the "128+ bits preferred" collision resistance
// spec §3 asks for without adding a second hash-function dependency.
const strongSeedB = 0x9e3779b97f4a7c15

// Strong is the block/file content hash used for delta matching and
// optional whole-file verification. 16 bytes: two xxhash64 digests.
type Strong [16]byte

// Sum computes the strong hash of buf.
func Sum(buf []byte) Strong {
	var s Strong
	put64(s[0:8], xxhash.Sum64(buf))
	put64(s[8:16], xxhash.Sum64(seeded(buf)))
	return s
}

// seeded derives a differently-distributed input for the second digest
// without mutating buf: it returns a fresh copy of buf prefixed with the
// 8-byte seed.
func seeded(buf []byte) []byte {
	out := make([]byte, len(buf)+8)
	put64(out[:8], strongSeedB)
	copy(out[8:], buf)
	return out
}

func put64(dst []byte, v uint64) {
	dst[0] = byte(v >> 56)
	dst[1] = byte(v >> 48)
	dst[2] = byte(v >> 40)
	dst[3] = byte(v >> 32)
	dst[4] = byte(v >> 24)
	dst[5] = byte(v >> 16)
	dst[6] = byte(v >> 8)
	dst[7] = byte(v)
}

// BlockHasher accumulates a strong hash incrementally for streaming use,
// producing the same value as Sum over the concatenated writes. The
// initial-exchange checksum pass (deltaengine.ComputeChecksums) does not
// use it; it reads each block into a buffer and calls Sum.
type BlockHasher struct {
	h1, h2 *xxhash.Digest
}

func NewBlockHasher() *BlockHasher {
	h2 := xxhash.New()
	var seed [8]byte
	put64(seed[:], strongSeedB)
	h2.Write(seed[:])
	return &BlockHasher{h1: xxhash.New(), h2: h2}
}

func (bh *BlockHasher) Write(p []byte) (int, error) {
	bh.h1.Write(p)
	bh.h2.Write(p)
	return len(p), nil
}

func (bh *BlockHasher) Sum() Strong {
	var s Strong
	put64(s[0:8], bh.h1.Sum64())
	put64(s[8:16], bh.h2.Sum64())
	return s
}

func (bh *BlockHasher) Reset() {
	bh.h1.Reset()
	bh.h2.Reset()
	var seed [8]byte
	put64(seed[:], strongSeedB)
	bh.h2.Write(seed[:])
}
