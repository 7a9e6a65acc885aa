// Package destindex holds the in-memory mapping from relative path to
// destination file state, populated during the initial-exchange phase
// (spec §4.4). It is backed by gonk.Gonk, the teacher's generic ordered
// concurrent set (see client.go's inodeinfo/dirinfo usage). The source side
// fills it from a single goroutine reading DestFileEntry frames
// (pipeline.receiveInitialExchange), and the generator later drains it
// from a different goroutine.
package destindex

import (
	"strings"

	"github.com/lkarlslund/gonk"

	"github.com/Xiechengqi/sy/internal/wire"
)

// DeltaInfo is the destination row's optional block-checksum payload.
type DeltaInfo struct {
	BlockSize uint32
	FileSize  uint64
	Checksums []wire.BlockChecksum
}

// State mirrors a DestFileEntry, kept until taken by the generator or left
// over as a deletion candidate. Path is the gonk ordering key; the rest of
// the fields ride along with it.
type State struct {
	Path      string
	Size      uint64
	Mtime     int64
	Mode      uint32
	IsDir     bool
	DeltaInfo *DeltaInfo
}

// Compare orders States by Path, which is all gonk needs to place, find and
// remove entries in its tree.
func (s State) Compare(other State) int {
	return strings.Compare(s.Path, other.Path)
}

// LessThan satisfies gonk.Evaluable, ordering States by Path.
func (s State) LessThan(other State) bool {
	return s.Compare(other) < 0
}

// Index is the destination index: insert during initial exchange, Take
// during the streaming-source scan, Remaining after the scan for deletion
// candidates.
type Index struct {
	m gonk.Gonk[State]
}

func New() *Index {
	return &Index{}
}

// Insert records one destination row. Called only during initial exchange.
func (idx *Index) Insert(state State) {
	idx.m.Store(state)
}

// Take returns and removes the row for path, if present. O(1) amortized,
// as required by spec §4.4.
func (idx *Index) Take(path string) (State, bool) {
	v, found := idx.m.Load(State{Path: path})
	if found {
		idx.m.Delete(v)
	}
	return v, found
}

// Len reports how many rows remain.
func (idx *Index) Len() int {
	return idx.m.Len()
}

// Remaining calls fn for every row still present (the deletion candidates
// once the source scan has completed). fn must not mutate the index.
func (idx *Index) Remaining(fn func(state State)) {
	idx.m.Range(func(item State) bool {
		fn(item)
		return true
	})
}
