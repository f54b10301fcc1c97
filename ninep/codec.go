package ninep

import "encoding/binary"

// Encode writes the full wire frame (header plus body) for msg into buf.
// It never partially mutates buf's header on failure: the body is built
// first, and the header is only stamped once the body is known to fit. On
// ErrMessageTooLarge the caller's tag/fid bookkeeping is left untouched.
func Encode(buf []byte, msg Message) (int, error) {
	if len(buf) < HeaderSize {
		return 0, ErrMessageTooLarge
	}
	n, err := msg.encodeBody(buf[HeaderSize:])
	if err != nil {
		return 0, err
	}
	total := HeaderSize + n
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	buf[4] = byte(msg.Type())
	binary.LittleEndian.PutUint16(buf[5:7], uint16(msg.GetTag()))
	return total, nil
}

// FrameLength reads the length field out of a buffer that is known to hold
// at least HeaderSize bytes.
func FrameLength(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}

// Decode parses a single complete frame (frame[0:length] where length is
// FrameLength(frame)) into its typed Message. The caller is responsible
// for having verified that len(frame) equals the frame's own length field
// and that the length does not exceed the negotiated msize; Decode itself
// only validates the body size for the given type (a floor, or an exact
// size for fixed-shape messages such as Ropen or Rclunk).
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return nil, ErrShortBuffer
	}
	mtype := MessageType(frame[4])
	tag := Tag(binary.LittleEndian.Uint16(frame[5:7]))
	body := frame[HeaderSize:]

	switch mtype {
	case MtTversion:
		return decodeTversion(tag, body)
	case MtTattach:
		return decodeTattach(tag, body)
	case MtTwalk:
		return decodeTwalk(tag, body)
	case MtTopen:
		return decodeTopen(tag, body)
	case MtTcreate:
		return decodeTcreate(tag, body)
	case MtTread:
		return decodeTread(tag, body)
	case MtTwrite:
		return decodeTwrite(tag, body)
	case MtTclunk:
		return decodeTclunk(tag, body)
	case MtTremove:
		return decodeTremove(tag, body)
	case MtTstat:
		return decodeTstat(tag, body)
	case MtTwstat:
		return decodeTwstat(tag, body)
	case MtRversion:
		return decodeRversion(tag, body)
	case MtRattach:
		return decodeRattach(tag, body)
	case MtRerror:
		return decodeRerror(tag, body)
	case MtRwalk:
		return decodeRwalk(tag, body)
	case MtRopen:
		return decodeRopen(tag, body)
	case MtRcreate:
		return decodeRcreate(tag, body)
	case MtRread:
		return decodeRread(tag, body)
	case MtRwrite:
		return decodeRwrite(tag, body)
	case MtRclunk:
		return decodeRclunk(tag, body)
	case MtRremove:
		return decodeRremove(tag, body)
	case MtRstat:
		return decodeRstat(tag, body)
	case MtRwstat:
		return decodeRwstat(tag, body)
	case MtRauth, MtRflush:
		// Accepted and silently discarded by design: AUTH is never used
		// and flush/cancel is out of scope.
		return nil, nil
	default:
		return nil, ErrUnknownType
	}
}
