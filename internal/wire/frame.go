// Package wire implements the binary frame protocol that the generator,
// sender and receiver use to talk to each other across the sync transport.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's type+payload length. Any header
// claiming more is a fatal protocol error.
const MaxFrameSize = 64 * 1024 * 1024

// MessageType identifies the payload that follows a frame header.
type MessageType uint8

const (
	TypeHello         MessageType = 0x01
	TypeFileEntry     MessageType = 0x02
	TypeFileEnd       MessageType = 0x03
	TypeDestFileEntry MessageType = 0x04
	TypeDestFileEnd   MessageType = 0x05
	TypeData          MessageType = 0x06
	TypeDataEnd       MessageType = 0x07
	TypeDelete        MessageType = 0x08
	TypeDeleteEnd     MessageType = 0x09
	TypeMkdir         MessageType = 0x0A
	TypeSymlink       MessageType = 0x0B
	TypeXattr         MessageType = 0x0C
	TypeError         MessageType = 0x0D
	TypeFatal         MessageType = 0x0E
	TypeDone          MessageType = 0x0F
)

func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "Hello"
	case TypeFileEntry:
		return "FileEntry"
	case TypeFileEnd:
		return "FileEnd"
	case TypeDestFileEntry:
		return "DestFileEntry"
	case TypeDestFileEnd:
		return "DestFileEnd"
	case TypeData:
		return "Data"
	case TypeDataEnd:
		return "DataEnd"
	case TypeDelete:
		return "Delete"
	case TypeDeleteEnd:
		return "DeleteEnd"
	case TypeMkdir:
		return "Mkdir"
	case TypeSymlink:
		return "Symlink"
	case TypeXattr:
		return "Xattr"
	case TypeError:
		return "Error"
	case TypeFatal:
		return "Fatal"
	case TypeDone:
		return "Done"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// ProtocolError marks a violation that must abort the sync (spec §7,
// "Protocol violation" row): unknown message type, frame too large,
// truncated frame, unexpected message for the current state.
type ProtocolError struct {
	Code    ErrorCode
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Code, e.Message)
}

func NewProtocolError(code ErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ReadFrame reads one frame from r and returns its type and payload. The
// returned payload slice is owned by the caller; it is a fresh allocation
// sized exactly to the frame.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(lenbuf[:])
	if length == 0 {
		return 0, nil, NewProtocolError(ErrCodeProtocol, "frame length is zero (missing type byte)")
	}
	if length > MaxFrameSize {
		return 0, nil, NewProtocolError(ErrCodeProtocol, "frame length %d exceeds max %d", length, MaxFrameSize)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return MessageType(body[0]), body[1:], nil
}

// WriteFrame encodes a complete frame (header + type + payload) for msgType
// carrying payload, ready to be written to the wire in one call.
func WriteFrame(msgType MessageType, payload []byte) []byte {
	buf := make([]byte, 4+1+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(payload)))
	buf[4] = byte(msgType)
	copy(buf[5:], payload)
	return buf
}

// FrameWriter batches small encoded frames into one flush, per spec §4.1
// ("Batching"). It is used during the initial-exchange phase to avoid one
// syscall per DestFileEntry.
type FrameWriter struct {
	w         io.Writer
	buf       []byte
	batchSize int
}

// DefaultBatchTarget matches the spec's "roughly 64 KiB" batching guidance.
const DefaultBatchTarget = 64 * 1024

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, batchSize: DefaultBatchTarget}
}

// Queue appends an already-encoded frame to the pending batch, flushing
// first if the batch has grown past its target size.
func (fw *FrameWriter) Queue(frame []byte) error {
	if len(fw.buf)+len(frame) > fw.batchSize && len(fw.buf) > 0 {
		if err := fw.Flush(); err != nil {
			return err
		}
	}
	fw.buf = append(fw.buf, frame...)
	return nil
}

func (fw *FrameWriter) Flush() error {
	if len(fw.buf) == 0 {
		return nil
	}
	_, err := fw.w.Write(fw.buf)
	fw.buf = fw.buf[:0]
	return err
}
