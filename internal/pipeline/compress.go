package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/s2"
)

// incompressibleExt lists extensions spec 4.6's content sniff skips
// outright: formats that are already compressed, so spending CPU on s2
// only adds framing overhead.
var incompressibleExt = map[string]bool{
	".zip": true, ".gz": true, ".bz2": true, ".xz": true, ".zst": true, ".7z": true, ".rar": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp3": true, ".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".flac": true,
	".woff": true, ".woff2": true, ".pdf": true,
}

// compressibleExtension is the by-extension half of spec 4.6's content
// sniff. The by-sample half lives in queueDataChunks/streamFullFile, which
// only keep a chunk's compressed form when it actually shrank.
func compressibleExtension(path string) bool {
	return !incompressibleExt[strings.ToLower(filepath.Ext(path))]
}

func compressPayload(payload []byte) []byte {
	return s2.Encode(nil, payload)
}

func decompressPayload(payload []byte) ([]byte, error) {
	return s2.Decode(nil, payload)
}
