// Package faststore implements the fast-skip hash cache: a persisted
// key/value store mapping (absolute_source_path, mtime, size) to the
// strong hash of that file's content at the time it was last hashed, per
// spec 6. The sender's whole-file hash (want_checksum) is its only user. It is grounded on the teacher's own use of
// ugorji/go/codec's msgpack handle (main.go's codec.MsgpackHandle), here
// repurposed from RPC wire encoding to an on-disk batched record log.
package faststore

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/ugorji/go/codec"

	"github.com/Xiechengqi/sy/internal/wire"
)

// Record is one logged fast-skip entry, msgpack-encoded as part of a
// batch.
type Record struct {
	Path   string
	Mtime  int64
	Size   uint64
	Strong []byte
}

type key struct {
	path  string
	mtime int64
	size  uint64
}

// Store is a crash-safe, append-only log of Records, indexed in memory
// for O(1) lookup. Writes are buffered until Flush, which appends one
// length-prefixed msgpack batch in a single write+fsync, so a batch is
// either fully present or fully absent after a crash.
type Store struct {
	mu      sync.Mutex
	f       *os.File
	h       codec.MsgpackHandle
	cache   map[key]wire.StrongHash
	pending []Record
}

// Open loads an existing store (discarding any trailing partially
// written batch) or creates a new one at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	s := &Store{f: f, cache: map[key]wire.StrongHash{}}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	br := bufio.NewReader(s.f)

	var validEnd int64
	for {
		var lenBuf [4]byte
		n, err := io.ReadFull(br, lenBuf[:])
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil {
			// A truncated length header: the tail of an interrupted
			// write. Discard it and stop.
			break
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		body := make([]byte, length)
		if _, err := io.ReadFull(br, body); err != nil {
			// A truncated batch body: same treatment.
			break
		}

		var records []Record
		dec := codec.NewDecoderBytes(body, &s.h)
		if err := dec.Decode(&records); err != nil {
			break
		}
		for _, r := range records {
			var sh wire.StrongHash
			copy(sh[:], r.Strong)
			s.cache[key{r.Path, r.Mtime, r.Size}] = sh
		}
		validEnd += 4 + int64(length)
	}

	return s.f.Truncate(validEnd)
}

// Lookup returns the cached strong hash for (path, mtime, size) if
// present. A miss is not an error; callers fall back to computing the
// hash normally.
func (s *Store) Lookup(path string, mtime int64, size uint64) (wire.StrongHash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.cache[key{path, mtime, size}]
	return sh, ok
}

// Put records a freshly computed strong hash. It is buffered until
// Flush; repeated Puts for the same key are idempotent.
func (s *Store) Put(path string, mtime int64, size uint64, strong wire.StrongHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key{path, mtime, size}] = strong
	s.pending = append(s.pending, Record{Path: path, Mtime: mtime, Size: size, Strong: append([]byte(nil), strong[:]...)})
}

// Flush appends all buffered records as one atomic batch. A no-op if
// nothing is pending.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}

	var body []byte
	enc := codec.NewEncoderBytes(&body, &s.h)
	if err := enc.Encode(s.pending); err != nil {
		return err
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))

	if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if _, err := s.f.Write(append(header, body...)); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

// Close flushes any pending batch and closes the underlying file.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}
