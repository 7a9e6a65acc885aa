package pipeline

import (
	"bytes"
	"testing"
)

func TestCompressibleExtension(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"report.txt", true},
		{"archive.zip", false},
		{"photo.JPG", false},
		{"data.bin", true},
	}
	for _, c := range cases {
		if got := compressibleExtension(c.path); got != c.want {
			t.Errorf("compressibleExtension(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestCompressPayloadRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)
	compressed := compressPayload(payload)
	if len(compressed) >= len(payload) {
		t.Fatalf("expected repetitive payload to shrink, got %d from %d", len(compressed), len(payload))
	}
	decoded, err := decompressPayload(compressed)
	if err != nil {
		t.Fatalf("decompressPayload: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatal("decompressed payload does not match original")
	}
}
