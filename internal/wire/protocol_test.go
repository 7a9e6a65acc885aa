package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  interface{ Encode() []byte }
	}{
		{"Hello", NewHello(HelloWantDelete|HelloWantCompression, "/srv/data")},
		{"FileEntry", FileEntry{Path: "a/b.txt", Size: 5, Mtime: 1700000000, Mode: 0o644, Inode: 42}},
		{"FileEntryHardlink", FileEntry{Path: "a/c.txt", Flags: FileFlagHardlink, LinkTarget: "a/b.txt"}},
		{"FileEntryWholeHash", FileEntry{
			Path: "a/d.txt", Size: 9, Mode: 0o644,
			Flags: FileFlagWholeHash, WholeHash: StrongHash{9, 8, 7, 6},
		}},
		{"FileEnd", FileEnd{TotalFiles: 2, TotalBytes: 10}},
		{"DestFileEntryPlain", DestFileEntry{Path: "x", Size: 3, Mtime: 1, Mode: 0o644}},
		{"DestFileEntryChecksums", DestFileEntry{
			Path: "big.bin", Size: 1 << 20, Mtime: 5, Mode: 0o644,
			Flags: DestFlagHasChecksums, BlockSize: 1024,
			Checksums: []BlockChecksum{{Offset: 0, Weak: 7, Strong: StrongHash{1, 2, 3}}},
		}},
		{"DestFileEnd", DestFileEnd{TotalFiles: 1, TotalBytes: 1 << 20}},
		{"Data", Data{Path: "a/b.txt", Offset: 0, Flags: DataFlagCompressed, Bytes: []byte("hello")}},
		{"DataEnd", DataEnd{Path: "a/b.txt", Status: StatusOK}},
		{"Delete", Delete{Path: "old", IsDir: true}},
		{"DeleteEnd", DeleteEnd{Count: 3}},
		{"Mkdir", Mkdir{Path: "sub", Mode: 0o755}},
		{"Symlink", Symlink{Path: "link", Target: "target"}},
		{"Xattr", Xattr{Path: "a/b.txt", Entries: []XattrEntry{{Name: "user.x", Value: []byte{0xde, 0xad}}}}},
		{"Error", Error{Path: "a/b.txt", Code: ErrCodeIO, Message: "boom"}},
		{"Fatal", Fatal{Code: ErrCodeProtocol, Message: "unknown type"}},
		{"Done", Done{FilesOK: 1, FilesErr: 0, Bytes: 5, DurationMs: 12}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := tc.msg.Encode()
			msgType, payload, err := ReadFrame(bytes.NewReader(frame))
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			decoded, err := Decode(msgType, payload)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			reencoded := decoded.(interface{ Encode() []byte }).Encode()
			if !bytes.Equal(frame, reencoded) {
				t.Fatalf("round trip mismatch:\n  original: % x\n  reencode: % x", frame, reencoded)
			}
		})
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	// Claim an 80 MiB payload without actually providing it.
	lenbuf := []byte{0x05, 0x00, 0x00, 0x00}
	buf.Write(lenbuf)
	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for oversize frame")
	}
}

func TestHelloRejectsUnknownFlags(t *testing.T) {
	h := NewHello(HelloWantDelete, "/x")
	frame := h.Encode()
	msgType, payload, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatal(err)
	}
	if msgType != TypeHello {
		t.Fatalf("wrong type %v", msgType)
	}
	// Flip a reserved bit (bit 31) directly in the encoded payload.
	payload[2] |= 0x80
	if _, err := DecodeHello(payload); err == nil {
		t.Fatal("expected reserved-flag rejection")
	}
}

func TestDecodeUnknownMessageTypeIsFatal(t *testing.T) {
	_, err := Decode(MessageType(0xEE), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *ProtocolError
	if pe, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T", err)
	} else {
		perr = pe
	}
	if perr.Code != ErrCodeProtocol {
		t.Fatalf("expected ErrCodeProtocol, got %v", perr.Code)
	}
}

func TestPathWithNonASCIIUTF8RoundTrips(t *testing.T) {
	entry := FileEntry{Path: "dossier/café-été.txt", Size: 1, Mode: 0o644}
	frame := entry.Encode()
	_, payload, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeFileEntry(payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Path != entry.Path {
		t.Fatalf("path mismatch: got %q want %q", decoded.Path, entry.Path)
	}
}
