package client

import "github.com/flightstack/ninep2000/ninep"

// DefaultFidTableSize bounds how many files/directories this client can
// hold open simultaneously.
const DefaultFidTableSize = 64

type fidSlot struct {
	active  bool
	clunked bool
}

// fidTable tracks locally-allocated fids. The wire fid value is always
// index+1; fid 0 is reserved for the attach root and is never handed out
// by generate.
type fidTable struct {
	slots []fidSlot
}

func newFidTable(size int) *fidTable {
	return &fidTable{slots: make([]fidSlot, size)}
}

// generate returns a fresh fid, or 0 if the table is full.
func (t *fidTable) generate() ninep.Fid {
	for i := range t.slots {
		if !t.slots[i].active {
			t.slots[i] = fidSlot{active: true}
			return ninep.Fid(i + 1)
		}
	}
	return 0
}

// valid reports whether id is an active, not-yet-clunked fid.
func (t *fidTable) valid(id ninep.Fid) bool {
	idx := int(id) - 1
	return idx >= 0 && idx < len(t.slots) && t.slots[idx].active && !t.slots[idx].clunked
}

// markClunked flags id as clunked so a second release call collapses to a
// no-op, even before the server has acknowledged the Tclunk.
func (t *fidTable) markClunked(id ninep.Fid) {
	idx := int(id) - 1
	if idx >= 0 && idx < len(t.slots) {
		t.slots[idx].clunked = true
	}
}

// free deactivates id once the server has confirmed the clunk.
func (t *fidTable) free(id ninep.Fid) {
	idx := int(id) - 1
	if idx >= 0 && idx < len(t.slots) {
		t.slots[idx].active = false
	}
}

// reset clears every slot, used on disconnect since every fid the server
// knew about is now meaningless.
func (t *fidTable) reset() {
	for i := range t.slots {
		t.slots[i] = fidSlot{}
	}
}
