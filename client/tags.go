package client

import "github.com/flightstack/ninep2000/ninep"

// DefaultTagTableSize is the number of concurrent in-flight requests this
// client supports by default. One further tag value, equal to the table
// size, is reserved for the attach handshake so it never collides with an
// ordinary request's tag.
const DefaultTagTableSize = 32

// WalkKind constrains what a Walk's last qid is allowed to be.
type WalkKind uint8

const (
	// WalkAny accepts either a file or a directory as the walk target.
	WalkAny WalkKind = iota
	// WalkFile requires the walk target to be a regular file.
	WalkFile
	// WalkDirectory requires the walk target to be a directory.
	WalkDirectory
)

// tagSlot is the per-tag request/response record. Only the fields
// relevant to slot.expected are meaningful at any given time.
type tagSlot struct {
	active   bool
	pending  bool
	expected ninep.MessageType

	walkFid   ninep.Fid
	walkKind  WalkKind
	walkNames uint16

	boolResult bool

	readIsDir bool
	readBuf   []byte
	readCount int32
	readDir   *DirEntry

	writeCount int32

	statOut *Stat

	clunkFid ninep.Fid
}

// tagTable is a fixed-size pool of request slots indexed by tag.
// Allocation is a linear scan for a free slot, as in the source design;
// tables are small (tens of entries), so this is not a hot loop.
type tagTable struct {
	slots []tagSlot
}

func newTagTable(size int) *tagTable {
	return &tagTable{slots: make([]tagSlot, size)}
}

// size returns the number of ordinary (non-handshake) tags.
func (t *tagTable) size() int { return len(t.slots) }

// attachTag is the reserved tag used only for Tattach, one past the end
// of the ordinary tag range.
func (t *tagTable) attachTag() ninep.Tag { return ninep.Tag(len(t.slots)) }

// alloc returns the first free tag, or NOTAG if the table is full. The
// caller must set pending/expected (and any op-specific fields) before
// releasing the session mutex, since the worker may observe the slot as
// soon as the send completes.
func (t *tagTable) alloc() ninep.Tag {
	for i := range t.slots {
		if !t.slots[i].active {
			t.slots[i] = tagSlot{active: true}
			return ninep.Tag(i)
		}
	}
	return ninep.NOTAG
}

// valid reports whether tag indexes an ordinary (non-handshake,
// non-NOTAG) slot.
func (t *tagTable) valid(tag ninep.Tag) bool {
	return tag != ninep.NOTAG && int(tag) < len(t.slots)
}

// get returns the slot for tag. Callers must have already checked valid.
func (t *tagTable) get(tag ninep.Tag) *tagSlot {
	return &t.slots[tag]
}

// ready reports whether tag names an active, non-pending (i.e. answered)
// slot.
func (t *tagTable) ready(tag ninep.Tag) bool {
	if !t.valid(tag) {
		return false
	}
	s := &t.slots[tag]
	return s.active && !s.pending
}

// readyAs reports whether tag is ready and was expecting the given
// response type.
func (t *tagTable) readyAs(tag ninep.Tag, expected ninep.MessageType) bool {
	return t.ready(tag) && t.slots[tag].expected == expected
}

// clear returns a slot to the pool. Safe to call on an already-cleared
// tag.
func (t *tagTable) clear(tag ninep.Tag) {
	if !t.valid(tag) {
		return
	}
	t.slots[tag] = tagSlot{}
}

// reset clears every slot, used when the connection drops and all
// in-flight requests become unanswerable.
func (t *tagTable) reset() {
	for i := range t.slots {
		t.slots[i] = tagSlot{}
	}
}
