package ninep

import "encoding/binary"

// Message is implemented by every T- and R-message this client emits or
// consumes. GetTag lets the codec stamp the header without every message
// type re-implementing the same bookkeeping.
type Message interface {
	Type() MessageType
	GetTag() Tag
	encodeBody(buf []byte) (int, error)
}

// Tversion requests protocol and message-size negotiation. Tag is always
// NOTAG.
type Tversion struct {
	Tag     Tag
	MSize   uint32
	Version string
}

func (m *Tversion) Type() MessageType { return MtTversion }
func (m *Tversion) GetTag() Tag       { return m.Tag }
func (m *Tversion) encodeBody(buf []byte) (int, error) {
	need := 4 + stringSize(m.Version)
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], m.MSize)
	putString(buf, 4, m.Version)
	return need, nil
}

// Rversion is the server's answer to Tversion.
type Rversion struct {
	Tag     Tag
	MSize   uint32
	Version string
}

func (m *Rversion) Type() MessageType { return MtRversion }
func (m *Rversion) GetTag() Tag       { return m.Tag }
func (m *Rversion) encodeBody(buf []byte) (int, error) {
	need := 4 + stringSize(m.Version)
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], m.MSize)
	putString(buf, 4, m.Version)
	return need, nil
}
func decodeRversion(tag Tag, buf []byte) (*Rversion, error) {
	if len(buf) < 4 {
		return nil, ErrShortBuffer
	}
	v, _, err := getString(buf, 4, len(buf))
	if err != nil {
		return nil, err
	}
	return &Rversion{Tag: tag, MSize: binary.LittleEndian.Uint32(buf[0:4]), Version: v}, nil
}

// Tattach binds Fid to the root of the served tree.
type Tattach struct {
	Tag   Tag
	Fid   Fid
	AFid  Fid
	Uname string
	Aname string
}

func (m *Tattach) Type() MessageType { return MtTattach }
func (m *Tattach) GetTag() Tag       { return m.Tag }
func (m *Tattach) encodeBody(buf []byte) (int, error) {
	need := 4 + 4 + stringSize(m.Uname) + stringSize(m.Aname)
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.AFid))
	off := putString(buf, 8, m.Uname)
	putString(buf, off, m.Aname)
	return need, nil
}

// Rattach carries the qid of the attach root.
type Rattach struct {
	Tag Tag
	Qid Qid
}

func (m *Rattach) Type() MessageType { return MtRattach }
func (m *Rattach) GetTag() Tag       { return m.Tag }
func (m *Rattach) encodeBody(buf []byte) (int, error) {
	if len(buf) < QidSize {
		return 0, ErrMessageTooLarge
	}
	m.Qid.encode(buf[0:QidSize])
	return QidSize, nil
}
func decodeRattach(tag Tag, buf []byte) (*Rattach, error) {
	if len(buf) < QidSize {
		return nil, ErrShortBuffer
	}
	return &Rattach{Tag: tag, Qid: decodeQid(buf[0:QidSize])}, nil
}

// Rerror carries a human-readable failure reason in place of the expected
// response type.
type Rerror struct {
	Tag   Tag
	Ename string
}

func (m *Rerror) Type() MessageType { return MtRerror }
func (m *Rerror) GetTag() Tag       { return m.Tag }
func (m *Rerror) encodeBody(buf []byte) (int, error) {
	need := stringSize(m.Ename)
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	putString(buf, 0, m.Ename)
	return need, nil
}
func decodeRerror(tag Tag, buf []byte) (*Rerror, error) {
	s, _, err := getString(buf, 0, len(buf))
	if err != nil {
		return nil, err
	}
	return &Rerror{Tag: tag, Ename: s}, nil
}

// Twalk resolves Names relative to Fid and, on success, binds the result to
// NewFid.
type Twalk struct {
	Tag    Tag
	Fid    Fid
	NewFid Fid
	Names  []string
}

func (m *Twalk) Type() MessageType { return MtTwalk }
func (m *Twalk) GetTag() Tag       { return m.Tag }
func (m *Twalk) encodeBody(buf []byte) (int, error) {
	if len(m.Names) > 0xFFFF {
		return 0, ErrTooManyNames
	}
	need := 4 + 4 + 2
	for _, n := range m.Names {
		need += stringSize(n)
	}
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.NewFid))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(m.Names)))
	off := 10
	for _, n := range m.Names {
		off = putString(buf, off, n)
	}
	return off, nil
}

// Rwalk carries one qid per successfully walked path element.
type Rwalk struct {
	Tag  Tag
	Qids []Qid
}

func (m *Rwalk) Type() MessageType { return MtRwalk }
func (m *Rwalk) GetTag() Tag       { return m.Tag }
func (m *Rwalk) encodeBody(buf []byte) (int, error) {
	need := 2 + len(m.Qids)*QidSize
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Qids)))
	off := 2
	for _, q := range m.Qids {
		q.encode(buf[off : off+QidSize])
		off += QidSize
	}
	return off, nil
}
func decodeRwalk(tag Tag, buf []byte) (*Rwalk, error) {
	if len(buf) < 2 {
		return nil, ErrShortBuffer
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	need := 2 + n*QidSize
	if len(buf) != need {
		return nil, ErrShortBuffer
	}
	qids := make([]Qid, n)
	off := 2
	for i := 0; i < n; i++ {
		qids[i] = decodeQid(buf[off : off+QidSize])
		off += QidSize
	}
	return &Rwalk{Tag: tag, Qids: qids}, nil
}

// Topen opens Fid for I/O with Mode.
type Topen struct {
	Tag  Tag
	Fid  Fid
	Mode OpenMode
}

func (m *Topen) Type() MessageType { return MtTopen }
func (m *Topen) GetTag() Tag       { return m.Tag }
func (m *Topen) encodeBody(buf []byte) (int, error) {
	if len(buf) < 5 {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	buf[4] = byte(m.Mode)
	return 5, nil
}

// Ropen confirms the open and carries the server's preferred IOUnit (ignored
// by this client beyond its presence confirming success).
type Ropen struct {
	Tag    Tag
	Qid    Qid
	IOUnit uint32
}

func (m *Ropen) Type() MessageType { return MtRopen }
func (m *Ropen) GetTag() Tag       { return m.Tag }
func (m *Ropen) encodeBody(buf []byte) (int, error) {
	if len(buf) < QidSize+4 {
		return 0, ErrMessageTooLarge
	}
	m.Qid.encode(buf[0:QidSize])
	binary.LittleEndian.PutUint32(buf[QidSize:QidSize+4], m.IOUnit)
	return QidSize + 4, nil
}
func decodeRopen(tag Tag, buf []byte) (*Ropen, error) {
	if len(buf) != QidSize+4 {
		return nil, ErrShortBuffer
	}
	return &Ropen{Tag: tag, Qid: decodeQid(buf[0:QidSize]), IOUnit: binary.LittleEndian.Uint32(buf[QidSize : QidSize+4])}, nil
}

// Tcreate creates Name inside the directory referenced by Fid, with Fid
// rebound to the new object on success (standard 9P semantics).
type Tcreate struct {
	Tag  Tag
	Fid  Fid
	Name string
	Perm FileMode
	Mode OpenMode
}

func (m *Tcreate) Type() MessageType { return MtTcreate }
func (m *Tcreate) GetTag() Tag       { return m.Tag }
func (m *Tcreate) encodeBody(buf []byte) (int, error) {
	need := 4 + stringSize(m.Name) + 4 + 1
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	off := putString(buf, 4, m.Name)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(m.Perm))
	off += 4
	buf[off] = byte(m.Mode)
	return off + 1, nil
}

// Rcreate confirms creation; its presence (of the right fixed size) is the
// only thing this client checks.
type Rcreate struct {
	Tag    Tag
	Qid    Qid
	IOUnit uint32
}

func (m *Rcreate) Type() MessageType { return MtRcreate }
func (m *Rcreate) GetTag() Tag       { return m.Tag }
func (m *Rcreate) encodeBody(buf []byte) (int, error) {
	if len(buf) < QidSize+4 {
		return 0, ErrMessageTooLarge
	}
	m.Qid.encode(buf[0:QidSize])
	binary.LittleEndian.PutUint32(buf[QidSize:QidSize+4], m.IOUnit)
	return QidSize + 4, nil
}
func decodeRcreate(tag Tag, buf []byte) (*Rcreate, error) {
	if len(buf) != QidSize+4 {
		return nil, ErrShortBuffer
	}
	return &Rcreate{Tag: tag, Qid: decodeQid(buf[0:QidSize]), IOUnit: binary.LittleEndian.Uint32(buf[QidSize : QidSize+4])}, nil
}

// Tread requests up to Count bytes from Fid starting at Offset.
type Tread struct {
	Tag    Tag
	Fid    Fid
	Offset uint64
	Count  uint32
}

func (m *Tread) Type() MessageType { return MtTread }
func (m *Tread) GetTag() Tag       { return m.Tag }
func (m *Tread) encodeBody(buf []byte) (int, error) {
	if len(buf) < 16 {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	binary.LittleEndian.PutUint64(buf[4:12], m.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], m.Count)
	return 16, nil
}

// Rread carries the bytes actually read; Data aliases into the caller's
// decode buffer and must be copied out before the buffer is reused.
type Rread struct {
	Tag  Tag
	Data []byte
}

func (m *Rread) Type() MessageType { return MtRread }
func (m *Rread) GetTag() Tag       { return m.Tag }
func (m *Rread) encodeBody(buf []byte) (int, error) {
	need := 4 + len(m.Data)
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(m.Data)))
	copy(buf[4:], m.Data)
	return need, nil
}
func decodeRread(tag Tag, buf []byte) (*Rread, error) {
	if len(buf) < 4 {
		return nil, ErrShortBuffer
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	if uint64(4+count) > uint64(len(buf)) {
		return nil, ErrShortBuffer
	}
	return &Rread{Tag: tag, Data: buf[4 : 4+count]}, nil
}

// Twrite writes Data to Fid starting at Offset.
type Twrite struct {
	Tag    Tag
	Fid    Fid
	Offset uint64
	Data   []byte
}

func (m *Twrite) Type() MessageType { return MtTwrite }
func (m *Twrite) GetTag() Tag       { return m.Tag }
func (m *Twrite) encodeBody(buf []byte) (int, error) {
	need := 16 + len(m.Data)
	if len(buf) < need {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	binary.LittleEndian.PutUint64(buf[4:12], m.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(m.Data)))
	copy(buf[16:], m.Data)
	return need, nil
}

// Rwrite confirms how many bytes were actually written.
type Rwrite struct {
	Tag   Tag
	Count uint32
}

func (m *Rwrite) Type() MessageType { return MtRwrite }
func (m *Rwrite) GetTag() Tag       { return m.Tag }
func (m *Rwrite) encodeBody(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], m.Count)
	return 4, nil
}
func decodeRwrite(tag Tag, buf []byte) (*Rwrite, error) {
	if len(buf) < 4 {
		return nil, ErrShortBuffer
	}
	return &Rwrite{Tag: tag, Count: binary.LittleEndian.Uint32(buf[0:4])}, nil
}

// Tclunk releases Fid.
type Tclunk struct {
	Tag Tag
	Fid Fid
}

func (m *Tclunk) Type() MessageType { return MtTclunk }
func (m *Tclunk) GetTag() Tag       { return m.Tag }
func (m *Tclunk) encodeBody(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	return 4, nil
}

// Rclunk carries no payload; its receipt is the only signal.
type Rclunk struct {
	Tag Tag
}

func (m *Rclunk) Type() MessageType                    { return MtRclunk }
func (m *Rclunk) GetTag() Tag                          { return m.Tag }
func (m *Rclunk) encodeBody(buf []byte) (int, error)   { return 0, nil }
func decodeRclunk(tag Tag, buf []byte) (*Rclunk, error) {
	if len(buf) != 0 {
		return nil, ErrShortBuffer
	}
	return &Rclunk{Tag: tag}, nil
}

// Tremove removes the file referenced by Fid, clunking it regardless of
// outcome (standard 9P semantics).
type Tremove struct {
	Tag Tag
	Fid Fid
}

func (m *Tremove) Type() MessageType { return MtTremove }
func (m *Tremove) GetTag() Tag       { return m.Tag }
func (m *Tremove) encodeBody(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	return 4, nil
}

// Rremove carries no payload.
type Rremove struct {
	Tag Tag
}

func (m *Rremove) Type() MessageType                     { return MtRremove }
func (m *Rremove) GetTag() Tag                           { return m.Tag }
func (m *Rremove) encodeBody(buf []byte) (int, error)    { return 0, nil }
func decodeRremove(tag Tag, buf []byte) (*Rremove, error) {
	if len(buf) != 0 {
		return nil, ErrShortBuffer
	}
	return &Rremove{Tag: tag}, nil
}

// Tstat requests the metadata record for Fid.
type Tstat struct {
	Tag Tag
	Fid Fid
}

func (m *Tstat) Type() MessageType { return MtTstat }
func (m *Tstat) GetTag() Tag       { return m.Tag }
func (m *Tstat) encodeBody(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	return 4, nil
}

// Rstat carries the metadata record.
type Rstat struct {
	Tag  Tag
	Stat Stat
}

func (m *Rstat) Type() MessageType { return MtRstat }
func (m *Rstat) GetTag() Tag       { return m.Tag }
func (m *Rstat) encodeBody(buf []byte) (int, error) {
	// The stat record is wrapped in one more u16 size field here; the
	// record appears with its size twice in Rstat/Twstat, per the wire
	// format.
	if len(buf) < 2 {
		return 0, ErrMessageTooLarge
	}
	n, err := encodeStat(buf[2:], m.Stat)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint16(buf[0:2], uint16(n))
	return 2 + n, nil
}
func decodeRstat(tag Tag, buf []byte) (*Rstat, error) {
	if len(buf) < 2 {
		return nil, ErrShortBuffer
	}
	outer := int(binary.LittleEndian.Uint16(buf[0:2]))
	if 2+outer > len(buf) {
		return nil, ErrShortBuffer
	}
	st, _, err := decodeStat(buf[2 : 2+outer])
	if err != nil {
		return nil, err
	}
	return &Rstat{Tag: tag, Stat: st}, nil
}

// Twstat writes a new metadata record over Fid. Fields set to the
// NoModify sentinels are left unchanged by the server; this is how rename
// and mtime-set are both expressed.
type Twstat struct {
	Tag  Tag
	Fid  Fid
	Stat Stat
}

func (m *Twstat) Type() MessageType { return MtTwstat }
func (m *Twstat) GetTag() Tag       { return m.Tag }
func (m *Twstat) encodeBody(buf []byte) (int, error) {
	if len(buf) < 6 {
		return 0, ErrMessageTooLarge
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Fid))
	n, err := encodeStat(buf[6:], m.Stat)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint16(buf[4:6], uint16(n))
	return 6 + n, nil
}

// Rwstat carries no payload; a zero-length body (header only) is success.
type Rwstat struct {
	Tag Tag
}

func (m *Rwstat) Type() MessageType                    { return MtRwstat }
func (m *Rwstat) GetTag() Tag                          { return m.Tag }
func (m *Rwstat) encodeBody(buf []byte) (int, error)   { return 0, nil }
func decodeRwstat(tag Tag, buf []byte) (*Rwstat, error) {
	if len(buf) != 0 {
		return nil, ErrShortBuffer
	}
	return &Rwstat{Tag: tag}, nil
}
