package ninep

import "encoding/binary"

// Qid is the server-assigned identity of a file. Only Type is consulted by
// this client; Version and Path are carried through untouched.
type Qid struct {
	Type    QidType
	Version uint32
	Path    uint64
}

func (q Qid) encode(buf []byte) {
	buf[0] = byte(q.Type)
	binary.LittleEndian.PutUint32(buf[1:5], q.Version)
	binary.LittleEndian.PutUint64(buf[5:13], q.Path)
}

func decodeQid(buf []byte) Qid {
	return Qid{
		Type:    QidType(buf[0]),
		Version: binary.LittleEndian.Uint32(buf[1:5]),
		Path:    binary.LittleEndian.Uint64(buf[5:13]),
	}
}

// Stat is the directory/file metadata record. The client package itself
// reads only Qid.Type, Name, Length and Mtime; the rest is carried
// for callers that want the raw record (e.g. a future rename/chmod UI).
type Stat struct {
	Type   uint16
	Dev    uint32
	Qid    Qid
	Mode   FileMode
	Atime  uint32
	Mtime  uint32
	Length uint64
	Name   string
	UID    string
	GID    string
	MUID   string
}

// statFixedSize is the size of the fixed-width portion of a stat record
// that follows the outer u16 size prefix: type, dev, qid, mode, atime,
// mtime, length, plus the four u16 string-length prefixes.
const statFixedSize = 2 + 4 + QidSize + 4 + 4 + 4 + 8 + 4*2

// encodeStat writes a full stat record, including the outer size prefix,
// to buf. It returns the number of bytes written, or ErrMessageTooLarge if
// buf is too small.
func encodeStat(buf []byte, s Stat) (int, error) {
	inner := statFixedSize + len(s.Name) + len(s.UID) + len(s.GID) + len(s.MUID)
	total := 2 + inner
	if len(buf) < total {
		return 0, ErrMessageTooLarge
	}

	binary.LittleEndian.PutUint16(buf[0:2], uint16(inner))
	off := 2
	binary.LittleEndian.PutUint16(buf[off:off+2], s.Type)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:off+4], s.Dev)
	off += 4
	s.Qid.encode(buf[off : off+QidSize])
	off += QidSize
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(s.Mode))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], s.Atime)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], s.Mtime)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:off+8], s.Length)
	off += 8
	off = putString(buf, off, s.Name)
	off = putString(buf, off, s.UID)
	off = putString(buf, off, s.GID)
	off = putString(buf, off, s.MUID)
	return off, nil
}

// DecodeStat parses a single stat record (including its outer size
// prefix) starting at buf[0], returning the stat and the number of bytes
// consumed. Exported for callers decoding a directory read, where an
// Rread payload is a sequence of back-to-back stat records rather than a
// single Rstat response.
func DecodeStat(buf []byte) (Stat, int, error) {
	return decodeStat(buf)
}

// EncodeStat writes a single stat record, including its size prefix, to
// buf. Exported for servers building directory-read payloads, which are a
// sequence of back-to-back stat records.
func EncodeStat(buf []byte, s Stat) (int, error) {
	return encodeStat(buf, s)
}

// WireSize is the encoded size of the stat record, including its size
// prefix.
func (s Stat) WireSize() int {
	return 2 + statFixedSize + len(s.Name) + len(s.UID) + len(s.GID) + len(s.MUID)
}

// decodeStat parses a stat record (including its outer size prefix)
// starting at buf[0]. It returns the stat and the number of bytes
// consumed.
func decodeStat(buf []byte) (Stat, int, error) {
	if len(buf) < 2 {
		return Stat{}, 0, ErrShortBuffer
	}
	inner := int(binary.LittleEndian.Uint16(buf[0:2]))
	total := 2 + inner
	if len(buf) < total || inner < statFixedSize {
		return Stat{}, 0, ErrShortBuffer
	}

	var s Stat
	off := 2
	s.Type = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	s.Dev = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	s.Qid = decodeQid(buf[off : off+QidSize])
	off += QidSize
	s.Mode = FileMode(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	s.Atime = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	s.Mtime = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	s.Length = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	var err error
	s.Name, off, err = getString(buf, off, total)
	if err != nil {
		return Stat{}, 0, err
	}
	s.UID, off, err = getString(buf, off, total)
	if err != nil {
		return Stat{}, 0, err
	}
	s.GID, off, err = getString(buf, off, total)
	if err != nil {
		return Stat{}, 0, err
	}
	s.MUID, off, err = getString(buf, off, total)
	if err != nil {
		return Stat{}, 0, err
	}
	return s, total, nil
}

// putString writes a u16 length-prefixed string at buf[off:], assuming the
// caller has already verified there is room. It returns the new offset.
func putString(buf []byte, off int, s string) int {
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(s)))
	off += 2
	copy(buf[off:off+len(s)], s)
	return off + len(s)
}

// getString reads a u16 length-prefixed string starting at buf[off],
// bounded by limit, returning the string and the new offset.
func getString(buf []byte, off, limit int) (string, int, error) {
	if off+2 > limit {
		return "", off, ErrShortBuffer
	}
	l := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+l > limit {
		return "", off, ErrShortBuffer
	}
	return string(buf[off : off+l]), off + l, nil
}

// stringSize returns the wire size of a length-prefixed string.
func stringSize(s string) int {
	return 2 + len(s)
}
