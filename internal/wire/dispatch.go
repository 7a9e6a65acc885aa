package wire

// Decode dispatches a frame's type+payload to the matching decoder and
// returns the message as an any. Callers normally use a type switch on the
// result. An unrecognized MessageType returns a *ProtocolError, which the
// pipeline coordinator must treat as fatal during the streaming phase
// (spec §4.7 and §7, "Protocol violation").
func Decode(msgType MessageType, payload []byte) (any, error) {
	switch msgType {
	case TypeHello:
		return DecodeHello(payload)
	case TypeFileEntry:
		return DecodeFileEntry(payload)
	case TypeFileEnd:
		return DecodeFileEnd(payload)
	case TypeDestFileEntry:
		return DecodeDestFileEntry(payload)
	case TypeDestFileEnd:
		return DecodeDestFileEnd(payload)
	case TypeData:
		return DecodeData(payload)
	case TypeDataEnd:
		return DecodeDataEnd(payload)
	case TypeDelete:
		return DecodeDelete(payload)
	case TypeDeleteEnd:
		return DecodeDeleteEnd(payload)
	case TypeMkdir:
		return DecodeMkdir(payload)
	case TypeSymlink:
		return DecodeSymlink(payload)
	case TypeXattr:
		return DecodeXattr(payload)
	case TypeError:
		return DecodeError(payload)
	case TypeFatal:
		return DecodeFatal(payload)
	case TypeDone:
		return DecodeDone(payload)
	default:
		return nil, NewProtocolError(ErrCodeProtocol, "unknown message type 0x%02x", uint8(msgType))
	}
}
