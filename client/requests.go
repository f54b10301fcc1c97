package client

import (
	"os"
	"strings"

	"github.com/flightstack/ninep2000/ninep"
)

// Stat is the metadata record handed back by StatResult. It is the raw wire
// record; callers typically consume Length, Atime, Mtime and Qid.Type.
type Stat = ninep.Stat

// DirEntry is the destination record for a directory read. The worker fills
// it in while the request is pending; the caller may read it once the tag
// reports ready.
type DirEntry struct {
	Name   string
	IsDir  bool
	Length uint64
	Mtime  uint32
}

// beginRequest allocates a tag and primes its slot for the given response
// type. Returns NOTAG with a nil slot when the session is not mounted or
// the tag table is exhausted. Called with mu held.
func (s *Session) beginRequest(expected ninep.MessageType) (ninep.Tag, *tagSlot) {
	if s.state != stateMounted {
		return ninep.NOTAG, nil
	}
	tag := s.tags.alloc()
	if tag == ninep.NOTAG {
		return ninep.NOTAG, nil
	}
	slot := s.tags.get(tag)
	slot.pending = true
	slot.expected = expected
	return tag, slot
}

// sendLocked writes one frame to the socket. Called with mu held.
func (s *Session) sendLocked(frame []byte) {
	if s.sock == nil {
		return
	}
	if err := s.sock.send(frame); err != nil {
		s.logger.Printf("client: send: %v", err)
	}
}

// splitPath breaks a walk path into its name components. Empty segments
// (leading, trailing or doubled slashes) are dropped, so "" and "/" both
// yield a zero-hop walk.
func splitPath(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			names = append(names, seg)
		}
	}
	return names
}

// RequestWalk resolves path relative to the attach root and binds the
// result to a freshly allocated fid. kind constrains what the final path
// element is allowed to be; on a mismatch the fid is clunked by the worker
// and WalkResult reports 0. Returns NOTAG if no tag or fid is available,
// or if the path does not fit the negotiated message size.
func (s *Session) RequestWalk(path string, kind WalkKind) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, slot := s.beginRequest(ninep.MtRwalk)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	fid := s.fids.generate()
	if fid == 0 {
		s.tags.clear(tag)
		return ninep.NOTAG
	}

	names := splitPath(path)
	msg := &ninep.Twalk{Tag: tag, Fid: 0, NewFid: fid, Names: names}
	n, err := ninep.Encode(s.sendBuf[:s.msize], msg)
	if err != nil {
		s.tags.clear(tag)
		s.fids.free(fid)
		return ninep.NOTAG
	}

	slot.walkFid = fid
	slot.walkKind = kind
	slot.walkNames = uint16(len(names))

	s.sendLocked(s.sendBuf[:n])
	return tag
}

// WalkResult collects the fid produced by a completed walk, releasing the
// tag. Returns 0 if the walk failed or the tag does not hold a walk
// response.
func (s *Session) WalkResult(tag ninep.Tag) ninep.Fid {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tags.readyAs(tag, ninep.MtRwalk) {
		s.tags.clear(tag)
		return 0
	}
	fid := s.tags.get(tag).walkFid
	s.tags.clear(tag)
	return fid
}

// RequestOpen opens fid for I/O. flags follow the os package convention:
// os.O_RDWR and os.O_WRONLY map to the corresponding 9P modes, anything
// else opens read-only. Truncation is not propagated; write-path callers
// truncate by create-and-write.
func (s *Session) RequestOpen(fid ninep.Fid, flags int) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(fid) {
		s.logger.Printf("client: open on invalid fid %d", fid)
		return ninep.NOTAG
	}
	tag, _ := s.beginRequest(ninep.MtRopen)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	var mode ninep.OpenMode
	switch {
	case flags&os.O_RDWR != 0:
		mode = ninep.ORDWR
	case flags&os.O_WRONLY != 0:
		mode = ninep.OWRITE
	default:
		mode = ninep.OREAD
	}

	n, err := ninep.Encode(s.sendBuf[:s.msize], &ninep.Topen{Tag: tag, Fid: fid, Mode: mode})
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// OpenResult reports whether a completed open succeeded, releasing the tag.
func (s *Session) OpenResult(tag ninep.Tag) bool {
	return s.boolResult(tag, ninep.MtRopen)
}

// RequestCreate creates name inside the directory referenced by parent.
// Permissions are fixed at 0777 (with DMDIR for directories); on success
// parent refers to the newly created object, standard 9P semantics.
func (s *Session) RequestCreate(parent ninep.Fid, name string, isDir bool) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(parent) {
		s.logger.Printf("client: create on invalid fid %d", parent)
		return ninep.NOTAG
	}
	tag, _ := s.beginRequest(ninep.MtRcreate)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	perm := ninep.FileMode(0o777)
	if isDir {
		perm |= ninep.DMDIR
	}
	msg := &ninep.Tcreate{Tag: tag, Fid: parent, Name: name, Perm: perm, Mode: 0}
	n, err := ninep.Encode(s.sendBuf[:s.msize], msg)
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// CreateResult reports whether a completed create succeeded, releasing the
// tag.
func (s *Session) CreateResult(tag ninep.Tag) bool {
	return s.boolResult(tag, ninep.MtRcreate)
}

// RequestRead reads up to count bytes from fid at offset into buf. The
// caller is responsible for clamping count to MaxReadLen and for sizing buf
// to at least count bytes; the wire request uses count exactly.
func (s *Session) RequestRead(fid ninep.Fid, offset uint64, count uint32, buf []byte) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(fid) {
		s.logger.Printf("client: read on invalid fid %d", fid)
		return ninep.NOTAG
	}
	tag, slot := s.beginRequest(ninep.MtRread)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	slot.readIsDir = false
	slot.readBuf = buf
	slot.readCount = int32(count)

	msg := &ninep.Tread{Tag: tag, Fid: fid, Offset: offset, Count: count}
	n, err := ninep.Encode(s.sendBuf[:s.msize], msg)
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// ReadResult collects the byte count of a completed file read, releasing
// the tag. Returns -1 on failure, 0 at end of file.
func (s *Session) ReadResult(tag ninep.Tag) int {
	return s.readResult(tag, false)
}

// RequestReadDir reads the next directory entry from fid at offset into
// entry. The request asks for the largest payload the negotiated message
// size allows, since the entry's size is not known until it arrives.
func (s *Session) RequestReadDir(fid ninep.Fid, offset uint64, entry *DirEntry) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(fid) {
		s.logger.Printf("client: dir read on invalid fid %d", fid)
		return ninep.NOTAG
	}
	tag, slot := s.beginRequest(ninep.MtRread)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	slot.readIsDir = true
	slot.readDir = entry

	const rreadFixed = ninep.HeaderSize + 4
	msg := &ninep.Tread{Tag: tag, Fid: fid, Offset: offset, Count: s.msize - rreadFixed}
	n, err := ninep.Encode(s.sendBuf[:s.msize], msg)
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// ReadDirResult collects the wire size of a completed directory-entry read,
// releasing the tag. The caller advances its directory offset by the
// returned size. Returns 0 at end of directory, -1 on failure.
func (s *Session) ReadDirResult(tag ninep.Tag) int {
	return s.readResult(tag, true)
}

func (s *Session) readResult(tag ninep.Tag, isDir bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tags.readyAs(tag, ninep.MtRread) {
		s.tags.clear(tag)
		return -1
	}
	slot := s.tags.get(tag)
	if slot.readIsDir != isDir {
		s.tags.clear(tag)
		return -1
	}
	count := int(slot.readCount)
	s.tags.clear(tag)
	return count
}

// RequestWrite writes data to fid at offset. The write is clamped to
// MaxWriteLen; callers loop for anything larger, advancing offset by
// WriteResult each time.
func (s *Session) RequestWrite(fid ninep.Fid, offset uint64, data []byte) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(fid) {
		s.logger.Printf("client: write on invalid fid %d", fid)
		return ninep.NOTAG
	}
	tag, _ := s.beginRequest(ninep.MtRwrite)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	const twriteFixed = ninep.HeaderSize + 4 + 8 + 4
	if max := int(s.msize) - twriteFixed; len(data) > max {
		data = data[:max]
	}

	msg := &ninep.Twrite{Tag: tag, Fid: fid, Offset: offset, Data: data}
	n, err := ninep.Encode(s.sendBuf[:s.msize], msg)
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// WriteResult collects the byte count of a completed write, releasing the
// tag. Returns -1 on failure.
func (s *Session) WriteResult(tag ninep.Tag) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tags.readyAs(tag, ninep.MtRwrite) {
		s.tags.clear(tag)
		return -1
	}
	count := int(s.tags.get(tag).writeCount)
	s.tags.clear(tag)
	return count
}

// RequestRemove removes the file referenced by fid. The server clunks the
// fid whether or not the remove succeeds, so the fid is dead after the
// response either way.
func (s *Session) RequestRemove(fid ninep.Fid) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(fid) {
		s.logger.Printf("client: remove on invalid fid %d", fid)
		return ninep.NOTAG
	}
	tag, slot := s.beginRequest(ninep.MtRremove)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}
	slot.clunkFid = fid

	n, err := ninep.Encode(s.sendBuf[:s.msize], &ninep.Tremove{Tag: tag, Fid: fid})
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// RemoveResult reports whether a completed remove succeeded, releasing the
// tag.
func (s *Session) RemoveResult(tag ninep.Tag) bool {
	return s.boolResult(tag, ninep.MtRremove)
}

// RequestStat requests the metadata record for fid.
func (s *Session) RequestStat(fid ninep.Fid) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(fid) {
		s.logger.Printf("client: stat on invalid fid %d", fid)
		return ninep.NOTAG
	}
	tag, _ := s.beginRequest(ninep.MtRstat)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	n, err := ninep.Encode(s.sendBuf[:s.msize], &ninep.Tstat{Tag: tag, Fid: fid})
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// StatResult collects a completed stat, releasing the tag. ok is false if
// the stat failed.
func (s *Session) StatResult(tag ninep.Tag) (Stat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tags.readyAs(tag, ninep.MtRstat) {
		s.tags.clear(tag)
		return Stat{}, false
	}
	out := s.tags.get(tag).statOut
	s.tags.clear(tag)
	if out == nil {
		return Stat{}, false
	}
	return *out, true
}

// RequestRename renames the object referenced by fid within its directory.
// Everything except the name is sent as the don't-change sentinel.
func (s *Session) RequestRename(fid ninep.Fid, newName string) ninep.Tag {
	st := noModifyStat()
	st.Name = newName
	return s.requestWstat(fid, st)
}

// RequestSetMtime sets the modification time of the object referenced by
// fid, leaving every other field unchanged.
func (s *Session) RequestSetMtime(fid ninep.Fid, mtime uint32) ninep.Tag {
	st := noModifyStat()
	st.Mtime = mtime
	return s.requestWstat(fid, st)
}

// WstatResult reports whether a completed rename or mtime update succeeded,
// releasing the tag.
func (s *Session) WstatResult(tag ninep.Tag) bool {
	return s.boolResult(tag, ninep.MtRwstat)
}

func (s *Session) requestWstat(fid ninep.Fid, st ninep.Stat) ninep.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fids.valid(fid) {
		s.logger.Printf("client: wstat on invalid fid %d", fid)
		return ninep.NOTAG
	}
	tag, _ := s.beginRequest(ninep.MtRwstat)
	if tag == ninep.NOTAG {
		return ninep.NOTAG
	}

	n, err := ninep.Encode(s.sendBuf[:s.msize], &ninep.Twstat{Tag: tag, Fid: fid, Stat: st})
	if err != nil {
		s.tags.clear(tag)
		return ninep.NOTAG
	}
	s.sendLocked(s.sendBuf[:n])
	return tag
}

// noModifyStat builds a stat record whose every numeric field is the
// all-ones don't-change sentinel and whose strings are empty.
func noModifyStat() ninep.Stat {
	return ninep.Stat{
		Type:   ninep.NoModifyU16,
		Dev:    ninep.NoModifyU32,
		Qid:    ninep.Qid{Type: ninep.QidType(0xFF), Version: ninep.NoModifyU32, Path: ninep.NoModifyU64},
		Mode:   ninep.FileMode(ninep.NoModifyU32),
		Atime:  ninep.NoModifyU32,
		Mtime:  ninep.NoModifyU32,
		Length: ninep.NoModifyU64,
	}
}

// Release clunks fid, returning it to the server. A second Release of the
// same fid is a no-op: the slot is marked clunked the moment the first
// Tclunk is sent. If no tag can be allocated for the clunk the fid is
// leaked until the next reconnect.
func (s *Session) Release(fid ninep.Fid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clunkLocked(fid)
}

// clunkLocked issues Tclunk for fid on a freshly allocated tag. Called
// with mu held, from Release and from the worker's walk-mismatch path.
func (s *Session) clunkLocked(fid ninep.Fid) {
	if !s.fids.valid(fid) {
		return
	}
	tag := s.tags.alloc()
	if tag == ninep.NOTAG {
		s.logger.Printf("client: no free tag for clunk, leaking fid %d", fid)
		return
	}
	s.fids.markClunked(fid)

	slot := s.tags.get(tag)
	slot.pending = true
	slot.expected = ninep.MtRclunk
	slot.clunkFid = fid

	n, err := ninep.Encode(s.sendBuf[:s.msize], &ninep.Tclunk{Tag: tag, Fid: fid})
	if err != nil {
		s.tags.clear(tag)
		return
	}
	s.sendLocked(s.sendBuf[:n])
}

// TagReady reports whether the request identified by tag has completed and
// its result may be collected.
func (s *Session) TagReady(tag ninep.Tag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags.ready(tag)
}

// ClearTag abandons the request identified by tag, e.g. on a caller-side
// deadline. The in-flight operation is not cancelled on the server; a late
// reply to the cleared slot is logged and dropped by the worker. A fid
// walked under an abandoned tag is leaked unless the caller clunks it.
func (s *Session) ClearTag(tag ninep.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags.clear(tag)
}

// boolResult collects a success/failure response of the given type,
// releasing the tag.
func (s *Session) boolResult(tag ninep.Tag, expected ninep.MessageType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tags.readyAs(tag, expected) {
		s.tags.clear(tag)
		return false
	}
	ok := s.tags.get(tag).boolResult
	s.tags.clear(tag)
	return ok
}
