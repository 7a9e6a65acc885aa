package wire

import (
	"encoding/binary"
	"unicode/utf8"
)

// ErrorCode distinguishes Error/Fatal causes, per spec §7's taxonomy.
type ErrorCode uint16

const (
	ErrCodeUnspecified      ErrorCode = 0
	ErrCodeIO               ErrorCode = 1
	ErrCodeChecksumMismatch ErrorCode = 2
	ErrCodeProtocol         ErrorCode = 3
	ErrCodeVersion          ErrorCode = 4
	ErrCodeTimeout          ErrorCode = 5
	ErrCodeCancelled        ErrorCode = 6
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeIO:
		return "io"
	case ErrCodeChecksumMismatch:
		return "checksum_mismatch"
	case ErrCodeProtocol:
		return "protocol"
	case ErrCodeVersion:
		return "version"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeCancelled:
		return "cancelled"
	default:
		return "unspecified"
	}
}

// ProtocolVersion is the only version this implementation speaks. Spec §6:
// "version 1 is not supported by this specification."
const ProtocolVersion uint16 = 2

// HelloFlags is a bit field negotiated in the Hello handshake.
type HelloFlags uint32

const (
	HelloIsPull          HelloFlags = 1 << 0
	HelloWantDelete      HelloFlags = 1 << 1
	HelloWantChecksum    HelloFlags = 1 << 2
	HelloWantCompression HelloFlags = 1 << 3
	HelloWantXattrs      HelloFlags = 1 << 4
	HelloWantACLs        HelloFlags = 1 << 5
	helloKnownFlagsMask  HelloFlags = HelloIsPull | HelloWantDelete | HelloWantChecksum |
		HelloWantCompression | HelloWantXattrs | HelloWantACLs
)

func (f HelloFlags) Has(bit HelloFlags) bool { return f&bit != 0 }

// FileFlags marks how a FileEntry's path was already seen in this scan.
type FileFlags uint8

const (
	FileFlagHardlink  FileFlags = 1 << 0
	FileFlagSymlink   FileFlags = 1 << 1
	FileFlagWholeHash FileFlags = 1 << 2
)

// DestFileFlags marks destination-index row shape during initial exchange.
type DestFileFlags uint8

const (
	DestFlagDir           DestFileFlags = 1 << 0
	DestFlagHasChecksums  DestFileFlags = 1 << 1
)

// DataFlags marks how to interpret a Data frame's payload.
type DataFlags uint8

const (
	DataFlagCompressed DataFlags = 1 << 0
	DataFlagDelta      DataFlags = 1 << 1
	DataFlagFinal      DataFlags = 1 << 2
)

// DataEnd status codes.
const (
	StatusOK    uint8 = 0
	StatusError uint8 = 1
)

// ---------------------------------------------------------------------------
// string/byte helpers
// ---------------------------------------------------------------------------

type decoder struct {
	b   []byte
	off int
}

func (d *decoder) remaining() int { return len(d.b) - d.off }

func (d *decoder) u8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, NewProtocolError(ErrCodeProtocol, "truncated payload reading u8")
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *decoder) u16() (uint16, error) {
	if d.remaining() < 2 {
		return 0, NewProtocolError(ErrCodeProtocol, "truncated payload reading u16")
	}
	v := binary.BigEndian.Uint16(d.b[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, NewProtocolError(ErrCodeProtocol, "truncated payload reading u32")
	}
	v := binary.BigEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, NewProtocolError(ErrCodeProtocol, "truncated payload reading u64")
	}
	v := binary.BigEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) i64() (int64, error) {
	v, err := d.u64()
	return int64(v), err
}

func (d *decoder) bytesN(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, NewProtocolError(ErrCodeProtocol, "truncated payload reading %d bytes", n)
	}
	v := d.b[d.off : d.off+n]
	d.off += n
	return v, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	raw, err := d.bytesN(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", NewProtocolError(ErrCodeProtocol, "invalid UTF-8 in string field")
	}
	return string(raw), nil
}

// blob is a u32-length-prefixed opaque byte string (used for xattr values,
// which are not necessarily valid UTF-8).
func (d *decoder) blob() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	raw, err := d.bytesN(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (d *decoder) finish() error {
	if d.remaining() != 0 {
		return NewProtocolError(ErrCodeProtocol, "%d trailing bytes in payload", d.remaining())
	}
	return nil
}

type encoder struct{ b []byte }

func (e *encoder) u8(v uint8)   { e.b = append(e.b, v) }
func (e *encoder) u16(v uint16) { e.b = append(e.b, byte(v>>8), byte(v)) }
func (e *encoder) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.b = append(e.b, tmp[:]...)
}
func (e *encoder) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.b = append(e.b, tmp[:]...)
}
func (e *encoder) i64(v int64) { e.u64(uint64(v)) }
func (e *encoder) raw(v []byte) { e.b = append(e.b, v...) }

func (e *encoder) str(s string) {
	e.u16(uint16(len(s)))
	e.b = append(e.b, s...)
}

func (e *encoder) blob(v []byte) {
	e.u32(uint32(len(v)))
	e.b = append(e.b, v...)
}

// ---------------------------------------------------------------------------
// Hello
// ---------------------------------------------------------------------------

type Hello struct {
	Version  uint16
	Flags    HelloFlags
	RootPath string
}

func NewHello(flags HelloFlags, rootPath string) Hello {
	return Hello{Version: ProtocolVersion, Flags: flags, RootPath: rootPath}
}

func (h Hello) Encode() []byte {
	e := encoder{}
	e.u16(h.Version)
	e.u32(uint32(h.Flags))
	e.str(h.RootPath)
	return WriteFrame(TypeHello, e.b)
}

func DecodeHello(payload []byte) (Hello, error) {
	d := decoder{b: payload}
	var h Hello
	var err error
	if h.Version, err = d.u16(); err != nil {
		return h, err
	}
	var rawFlags uint32
	if rawFlags, err = d.u32(); err != nil {
		return h, err
	}
	h.Flags = HelloFlags(rawFlags)
	if h.Flags&^helloKnownFlagsMask != 0 {
		return h, NewProtocolError(ErrCodeProtocol, "Hello reserved flag bits set: %#x", h.Flags)
	}
	if h.RootPath, err = d.str(); err != nil {
		return h, err
	}
	return h, d.finish()
}

// ---------------------------------------------------------------------------
// FileEntry
// ---------------------------------------------------------------------------

// FileEntry is emitted by the sender ahead of a file's Data/DataEnd frames.
// Symlinks and directories are normally announced via the dedicated Symlink
// and Mkdir messages instead, but the FileFlagSymlink bit and
// SymlinkTarget field exist so the wire format can also represent a symlink
// inline, matching the message table in full.
type FileEntry struct {
	Path          string
	Size          uint64
	Mtime         int64
	Mode          uint32
	Inode         uint64
	Flags         FileFlags
	SymlinkTarget string     // present iff Flags&FileFlagSymlink != 0
	LinkTarget    string     // present iff Flags&FileFlagHardlink != 0
	WholeHash     StrongHash // present iff Flags&FileFlagWholeHash != 0
}

func (f FileEntry) Encode() []byte {
	e := encoder{}
	e.str(f.Path)
	e.u64(f.Size)
	e.i64(f.Mtime)
	e.u32(f.Mode)
	e.u64(f.Inode)
	e.u8(uint8(f.Flags))
	if f.Flags&FileFlagSymlink != 0 {
		e.str(f.SymlinkTarget)
	}
	if f.Flags&FileFlagHardlink != 0 {
		e.str(f.LinkTarget)
	}
	if f.Flags&FileFlagWholeHash != 0 {
		e.raw(f.WholeHash[:])
	}
	return WriteFrame(TypeFileEntry, e.b)
}

func DecodeFileEntry(payload []byte) (FileEntry, error) {
	d := decoder{b: payload}
	var f FileEntry
	var err error
	if f.Path, err = d.str(); err != nil {
		return f, err
	}
	if f.Size, err = d.u64(); err != nil {
		return f, err
	}
	if f.Mtime, err = d.i64(); err != nil {
		return f, err
	}
	if f.Mode, err = d.u32(); err != nil {
		return f, err
	}
	if f.Inode, err = d.u64(); err != nil {
		return f, err
	}
	rawFlags, err := d.u8()
	if err != nil {
		return f, err
	}
	f.Flags = FileFlags(rawFlags)
	if f.Flags&FileFlagSymlink != 0 {
		if f.SymlinkTarget, err = d.str(); err != nil {
			return f, err
		}
	}
	if f.Flags&FileFlagHardlink != 0 {
		if f.LinkTarget, err = d.str(); err != nil {
			return f, err
		}
	}
	if f.Flags&FileFlagWholeHash != 0 {
		raw, err := d.bytesN(16)
		if err != nil {
			return f, err
		}
		copy(f.WholeHash[:], raw)
	}
	return f, d.finish()
}

// ---------------------------------------------------------------------------
// FileEnd
// ---------------------------------------------------------------------------

type FileEnd struct {
	TotalFiles uint64
	TotalBytes uint64
}

func (m FileEnd) Encode() []byte {
	e := encoder{}
	e.u64(m.TotalFiles)
	e.u64(m.TotalBytes)
	return WriteFrame(TypeFileEnd, e.b)
}

func DecodeFileEnd(payload []byte) (FileEnd, error) {
	d := decoder{b: payload}
	var m FileEnd
	var err error
	if m.TotalFiles, err = d.u64(); err != nil {
		return m, err
	}
	if m.TotalBytes, err = d.u64(); err != nil {
		return m, err
	}
	return m, d.finish()
}

// ---------------------------------------------------------------------------
// BlockChecksum + DestFileEntry
// ---------------------------------------------------------------------------

// StrongHash is at least 64 bits; this implementation uses 128 (spec §3:
// "at least 64 bits (128+ preferred)").
type StrongHash [16]byte

type BlockChecksum struct {
	Offset uint64
	Weak   uint32
	Strong StrongHash
}

type DestFileEntry struct {
	Path      string
	Size      uint64
	Mtime     int64
	Mode      uint32
	Flags     DestFileFlags
	BlockSize uint32
	Checksums []BlockChecksum
}

func (m DestFileEntry) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	e.u64(m.Size)
	e.i64(m.Mtime)
	e.u32(m.Mode)
	e.u8(uint8(m.Flags))
	if m.Flags&DestFlagHasChecksums != 0 {
		e.u32(m.BlockSize)
		e.u32(uint32(len(m.Checksums)))
		for _, c := range m.Checksums {
			e.u64(c.Offset)
			e.u32(c.Weak)
			e.raw(c.Strong[:])
		}
	}
	return WriteFrame(TypeDestFileEntry, e.b)
}

func DecodeDestFileEntry(payload []byte) (DestFileEntry, error) {
	d := decoder{b: payload}
	var m DestFileEntry
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	if m.Size, err = d.u64(); err != nil {
		return m, err
	}
	if m.Mtime, err = d.i64(); err != nil {
		return m, err
	}
	if m.Mode, err = d.u32(); err != nil {
		return m, err
	}
	rawFlags, err := d.u8()
	if err != nil {
		return m, err
	}
	m.Flags = DestFileFlags(rawFlags)
	if m.Flags&DestFlagHasChecksums != 0 {
		if m.BlockSize, err = d.u32(); err != nil {
			return m, err
		}
		count, err := d.u32()
		if err != nil {
			return m, err
		}
		m.Checksums = make([]BlockChecksum, count)
		for i := range m.Checksums {
			if m.Checksums[i].Offset, err = d.u64(); err != nil {
				return m, err
			}
			if m.Checksums[i].Weak, err = d.u32(); err != nil {
				return m, err
			}
			strong, err := d.bytesN(16)
			if err != nil {
				return m, err
			}
			copy(m.Checksums[i].Strong[:], strong)
		}
	}
	return m, d.finish()
}

type DestFileEnd struct {
	TotalFiles uint64
	TotalBytes uint64
}

func (m DestFileEnd) Encode() []byte {
	e := encoder{}
	e.u64(m.TotalFiles)
	e.u64(m.TotalBytes)
	return WriteFrame(TypeDestFileEnd, e.b)
}

func DecodeDestFileEnd(payload []byte) (DestFileEnd, error) {
	d := decoder{b: payload}
	var m DestFileEnd
	var err error
	if m.TotalFiles, err = d.u64(); err != nil {
		return m, err
	}
	if m.TotalBytes, err = d.u64(); err != nil {
		return m, err
	}
	return m, d.finish()
}

// ---------------------------------------------------------------------------
// Data / DataEnd
// ---------------------------------------------------------------------------

type Data struct {
	Path   string
	Offset uint64
	Flags  DataFlags
	Bytes  []byte
}

func (m Data) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	e.u64(m.Offset)
	e.u8(uint8(m.Flags))
	e.raw(m.Bytes)
	return WriteFrame(TypeData, e.b)
}

func DecodeData(payload []byte) (Data, error) {
	d := decoder{b: payload}
	var m Data
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	if m.Offset, err = d.u64(); err != nil {
		return m, err
	}
	rawFlags, err := d.u8()
	if err != nil {
		return m, err
	}
	m.Flags = DataFlags(rawFlags)
	rest, err := d.bytesN(d.remaining())
	if err != nil {
		return m, err
	}
	m.Bytes = make([]byte, len(rest))
	copy(m.Bytes, rest)
	return m, d.finish()
}

type DataEnd struct {
	Path   string
	Status uint8
}

func (m DataEnd) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	e.u8(m.Status)
	return WriteFrame(TypeDataEnd, e.b)
}

func DecodeDataEnd(payload []byte) (DataEnd, error) {
	d := decoder{b: payload}
	var m DataEnd
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	if m.Status, err = d.u8(); err != nil {
		return m, err
	}
	return m, d.finish()
}

// ---------------------------------------------------------------------------
// Delete / DeleteEnd
// ---------------------------------------------------------------------------

type Delete struct {
	Path  string
	IsDir bool
}

func (m Delete) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	if m.IsDir {
		e.u8(1)
	} else {
		e.u8(0)
	}
	return WriteFrame(TypeDelete, e.b)
}

func DecodeDelete(payload []byte) (Delete, error) {
	d := decoder{b: payload}
	var m Delete
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	isDir, err := d.u8()
	if err != nil {
		return m, err
	}
	m.IsDir = isDir != 0
	return m, d.finish()
}

type DeleteEnd struct {
	Count uint64
}

func (m DeleteEnd) Encode() []byte {
	e := encoder{}
	e.u64(m.Count)
	return WriteFrame(TypeDeleteEnd, e.b)
}

func DecodeDeleteEnd(payload []byte) (DeleteEnd, error) {
	d := decoder{b: payload}
	var m DeleteEnd
	var err error
	if m.Count, err = d.u64(); err != nil {
		return m, err
	}
	return m, d.finish()
}

// ---------------------------------------------------------------------------
// Mkdir / Symlink
// ---------------------------------------------------------------------------

type Mkdir struct {
	Path string
	Mode uint32
}

func (m Mkdir) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	e.u32(m.Mode)
	return WriteFrame(TypeMkdir, e.b)
}

func DecodeMkdir(payload []byte) (Mkdir, error) {
	d := decoder{b: payload}
	var m Mkdir
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	if m.Mode, err = d.u32(); err != nil {
		return m, err
	}
	return m, d.finish()
}

type Symlink struct {
	Path   string
	Target string
}

func (m Symlink) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	e.str(m.Target)
	return WriteFrame(TypeSymlink, e.b)
}

func DecodeSymlink(payload []byte) (Symlink, error) {
	d := decoder{b: payload}
	var m Symlink
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	if m.Target, err = d.str(); err != nil {
		return m, err
	}
	return m, d.finish()
}

// ---------------------------------------------------------------------------
// Xattr
// ---------------------------------------------------------------------------

type XattrEntry struct {
	Name  string
	Value []byte
}

type Xattr struct {
	Path    string
	Entries []XattrEntry
}

func (m Xattr) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	e.u16(uint16(len(m.Entries)))
	for _, ent := range m.Entries {
		e.str(ent.Name)
		e.blob(ent.Value)
	}
	return WriteFrame(TypeXattr, e.b)
}

func DecodeXattr(payload []byte) (Xattr, error) {
	d := decoder{b: payload}
	var m Xattr
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	count, err := d.u16()
	if err != nil {
		return m, err
	}
	m.Entries = make([]XattrEntry, count)
	for i := range m.Entries {
		if m.Entries[i].Name, err = d.str(); err != nil {
			return m, err
		}
		if m.Entries[i].Value, err = d.blob(); err != nil {
			return m, err
		}
	}
	return m, d.finish()
}

// ---------------------------------------------------------------------------
// Error / Fatal / Done
// ---------------------------------------------------------------------------

type Error struct {
	Path    string
	Code    ErrorCode
	Message string
}

func (m Error) Encode() []byte {
	e := encoder{}
	e.str(m.Path)
	e.u16(uint16(m.Code))
	e.str(m.Message)
	return WriteFrame(TypeError, e.b)
}

func DecodeError(payload []byte) (Error, error) {
	d := decoder{b: payload}
	var m Error
	var err error
	if m.Path, err = d.str(); err != nil {
		return m, err
	}
	var rawCode uint16
	if rawCode, err = d.u16(); err != nil {
		return m, err
	}
	m.Code = ErrorCode(rawCode)
	if m.Message, err = d.str(); err != nil {
		return m, err
	}
	return m, d.finish()
}

type Fatal struct {
	Code    ErrorCode
	Message string
}

func (m Fatal) Encode() []byte {
	e := encoder{}
	e.u16(uint16(m.Code))
	e.str(m.Message)
	return WriteFrame(TypeFatal, e.b)
}

func DecodeFatal(payload []byte) (Fatal, error) {
	d := decoder{b: payload}
	var m Fatal
	var err error
	var rawCode uint16
	if rawCode, err = d.u16(); err != nil {
		return m, err
	}
	m.Code = ErrorCode(rawCode)
	if m.Message, err = d.str(); err != nil {
		return m, err
	}
	return m, d.finish()
}

type Done struct {
	FilesOK    uint64
	FilesErr   uint64
	Bytes      uint64
	DurationMs uint64
}

func (m Done) Encode() []byte {
	e := encoder{}
	e.u64(m.FilesOK)
	e.u64(m.FilesErr)
	e.u64(m.Bytes)
	e.u64(m.DurationMs)
	return WriteFrame(TypeDone, e.b)
}

func DecodeDone(payload []byte) (Done, error) {
	d := decoder{b: payload}
	var m Done
	var err error
	if m.FilesOK, err = d.u64(); err != nil {
		return m, err
	}
	if m.FilesErr, err = d.u64(); err != nil {
		return m, err
	}
	if m.Bytes, err = d.u64(); err != nil {
		return m, err
	}
	if m.DurationMs, err = d.u64(); err != nil {
		return m, err
	}
	return m, d.finish()
}

