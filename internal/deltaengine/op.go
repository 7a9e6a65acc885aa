package deltaengine

import (
	"encoding/binary"
	"fmt"
)

// OpKind is the delta operation tag carried in the Data message payload
// when DataFlagDelta is set (spec 4.1).
type OpKind uint8

const (
	OpCopy    OpKind = 0x00
	OpLiteral OpKind = 0x01
)

// Op is one element of a delta op stream: either a byte range copied from
// the receiver's existing copy of the file, or literal bytes sent inline.
type Op struct {
	Kind    OpKind
	Offset  uint64 // valid for OpCopy
	Literal []byte // valid for OpLiteral
	Length  uint32 // byte count covered by this op, either kind
}

// maxCopyLength is the largest length a Copy op's u32 field can carry.
// GenerateDelta emits one Copy op per matched block, so no op comes near
// it; nothing in this package checks against it or splits a Copy.
const maxCopyLength = 1<<32 - 1

func CopyOp(offset uint64, length uint32) Op {
	return Op{Kind: OpCopy, Offset: offset, Length: length}
}

func LiteralOp(data []byte) Op {
	return Op{Kind: OpLiteral, Literal: data, Length: uint32(len(data))}
}

// EncodeOps serializes a slice of ops using the wire encoding for delta
// Data payloads.
func EncodeOps(ops []Op) []byte {
	var out []byte
	for _, op := range ops {
		switch op.Kind {
		case OpCopy:
			b := make([]byte, 1+8+4)
			b[0] = byte(OpCopy)
			binary.BigEndian.PutUint64(b[1:9], op.Offset)
			binary.BigEndian.PutUint32(b[9:13], op.Length)
			out = append(out, b...)
		case OpLiteral:
			b := make([]byte, 1+4)
			b[0] = byte(OpLiteral)
			binary.BigEndian.PutUint32(b[1:5], uint32(len(op.Literal)))
			out = append(out, b...)
			out = append(out, op.Literal...)
		}
	}
	return out
}

// DecodeOps parses a complete delta op stream. A truncated trailing op or
// an unknown op kind returns the ops decoded so far together with an
// error.
func DecodeOps(payload []byte) ([]Op, error) {
	var ops []Op
	for len(payload) > 0 {
		kind := OpKind(payload[0])
		payload = payload[1:]
		switch kind {
		case OpCopy:
			if len(payload) < 12 {
				return ops, fmt.Errorf("deltaengine: truncated copy op")
			}
			offset := binary.BigEndian.Uint64(payload[0:8])
			length := binary.BigEndian.Uint32(payload[8:12])
			payload = payload[12:]
			ops = append(ops, CopyOp(offset, length))
		case OpLiteral:
			if len(payload) < 4 {
				return ops, fmt.Errorf("deltaengine: truncated literal op header")
			}
			length := binary.BigEndian.Uint32(payload[0:4])
			payload = payload[4:]
			if uint64(len(payload)) < uint64(length) {
				return ops, fmt.Errorf("deltaengine: truncated literal op body")
			}
			data := make([]byte, length)
			copy(data, payload[:length])
			payload = payload[length:]
			ops = append(ops, LiteralOp(data))
		default:
			return ops, fmt.Errorf("deltaengine: unknown delta op kind 0x%02x", byte(kind))
		}
	}
	return ops, nil
}
