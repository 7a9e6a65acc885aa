package faststore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Xiechengqi/sy/internal/wire"
)

func TestPutLookupFlushReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faststore.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var strong wire.StrongHash
	strong[0] = 0xAB

	if _, ok := s.Lookup("/a/b", 100, 10); ok {
		t.Fatal("expected miss before Put")
	}
	s.Put("/a/b", 100, 10, strong)
	if got, ok := s.Lookup("/a/b", 100, 10); !ok || got != strong {
		t.Fatalf("Lookup after Put = %v, %v", got, ok)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got, ok := reopened.Lookup("/a/b", 100, 10); !ok || got != strong {
		t.Fatalf("Lookup after reopen = %v, %v", got, ok)
	}
}

func TestTruncatedTrailingBatchDiscarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faststore.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var strong wire.StrongHash
	s.Put("/ok", 1, 1, strong)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	s.Put("/partial", 2, 2, strong)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a crash mid-write by truncating the file to lose the
	// second batch's tail.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, info.Size()-3); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen after truncation: %v", err)
	}
	defer reopened.Close()
	if _, ok := reopened.Lookup("/ok", 1, 1); !ok {
		t.Error("expected the first, fully written batch to survive")
	}
	if _, ok := reopened.Lookup("/partial", 2, 2); ok {
		t.Error("expected the truncated trailing batch to be discarded")
	}
}
