package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Xiechengqi/sy/internal/checksum"
	"github.com/Xiechengqi/sy/internal/localfs"
	"github.com/Xiechengqi/sy/internal/syncstats"
	"github.com/Xiechengqi/sy/internal/wire"
)

func fullTransferFrames(entry wire.FileEntry, content []byte) []byte {
	var out []byte
	out = append(out, entry.Encode()...)
	out = append(out, wire.Data{Path: entry.Path, Offset: 0, Flags: wire.DataFlagFinal, Bytes: content}.Encode()...)
	out = append(out, wire.DataEnd{Path: entry.Path, Status: wire.StatusOK}.Encode()...)
	return out
}

func TestReceiverAppliesMetadataBeforeCommit(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now().Add(-time.Hour).Unix()
	entry := wire.FileEntry{Path: "a.txt", Size: 5, Mtime: mtime, Mode: 0o640}
	frames := fullTransferFrames(entry, []byte("hello"))

	stats, err := RunReceiver(ReceiverConfig{Root: root}, bytes.NewReader(frames), false)
	if err != nil {
		t.Fatalf("RunReceiver: %v", err)
	}
	if stats.Get(syncstats.FilesOK) != 1 {
		t.Fatalf("FilesOK = %d, want 1", stats.Get(syncstats.FilesOK))
	}

	fullPath := filepath.Join(root, "a.txt")
	fi, err := os.Stat(fullPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode().Perm() != 0o640 {
		t.Fatalf("mode = %v, want 0640", fi.Mode().Perm())
	}
	if fi.ModTime().Unix() != mtime {
		t.Fatalf("mtime = %d, want %d", fi.ModTime().Unix(), mtime)
	}

	if _, err := os.Stat(localfs.StagingPath(fullPath)); !os.IsNotExist(err) {
		t.Fatalf("expected no leftover staging file, got err=%v", err)
	}
}

func TestReceiverWholeHashMismatchDiscardsFile(t *testing.T) {
	root := t.TempDir()
	content := []byte("hello world")
	entry := wire.FileEntry{
		Path: "b.txt", Size: uint64(len(content)), Mode: 0o644,
		Flags:     wire.FileFlagWholeHash,
		WholeHash: wire.StrongHash(checksum.Sum([]byte("not the real content"))),
	}
	frames := fullTransferFrames(entry, content)

	stats, err := RunReceiver(ReceiverConfig{Root: root}, bytes.NewReader(frames), false)
	if err != nil {
		t.Fatalf("RunReceiver: %v", err)
	}
	if stats.Get(syncstats.FilesErr) != 1 {
		t.Fatalf("FilesErr = %d, want 1", stats.Get(syncstats.FilesErr))
	}
	if stats.Get(syncstats.FilesOK) != 0 {
		t.Fatalf("FilesOK = %d, want 0", stats.Get(syncstats.FilesOK))
	}
	if _, err := os.Stat(filepath.Join(root, "b.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected b.txt to not exist, got err=%v", err)
	}
}

func TestReceiverWholeHashMatchCommits(t *testing.T) {
	root := t.TempDir()
	content := []byte("hello world")
	entry := wire.FileEntry{
		Path: "c.txt", Size: uint64(len(content)), Mode: 0o644,
		Flags:     wire.FileFlagWholeHash,
		WholeHash: wire.StrongHash(checksum.Sum(content)),
	}
	frames := fullTransferFrames(entry, content)

	stats, err := RunReceiver(ReceiverConfig{Root: root}, bytes.NewReader(frames), false)
	if err != nil {
		t.Fatalf("RunReceiver: %v", err)
	}
	if stats.Get(syncstats.FilesOK) != 1 {
		t.Fatalf("FilesOK = %d, want 1", stats.Get(syncstats.FilesOK))
	}
	got, err := os.ReadFile(filepath.Join(root, "c.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content = %q, want %q", got, content)
	}
}
