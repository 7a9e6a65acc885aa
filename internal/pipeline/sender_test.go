package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Xiechengqi/sy/internal/wire"
)

func TestStreamFullFilePropagatesReadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close() // every subsequent Read now fails, instead of hitting EOF

	var out bytes.Buffer
	fw := wire.NewFrameWriter(&out)
	if err := streamFullFile(fw, "src", f, make([]byte, 4), false); err == nil {
		t.Fatal("expected streamFullFile to propagate the read error, got nil")
	}
}

func TestStreamFullFileEmitsFinalFrameOnEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src")
	content := []byte("hello world")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var out bytes.Buffer
	fw := wire.NewFrameWriter(&out)
	if err := streamFullFile(fw, "src", f, make([]byte, 4), false); err != nil {
		t.Fatalf("streamFullFile: %v", err)
	}
	if err := fw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var reassembled []byte
	var sawFinal bool
	r := bytes.NewReader(out.Bytes())
	for {
		msgType, payload, err := wire.ReadFrame(r)
		if err != nil {
			break
		}
		if msgType != wire.TypeData {
			t.Fatalf("unexpected frame type %v", msgType)
		}
		d, err := wire.DecodeData(payload)
		if err != nil {
			t.Fatalf("DecodeData: %v", err)
		}
		reassembled = append(reassembled, d.Bytes...)
		if d.Flags&wire.DataFlagFinal != 0 {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Fatal("expected a final Data frame")
	}
	if !bytes.Equal(reassembled, content) {
		t.Fatalf("reassembled content %q, want %q", reassembled, content)
	}
}
