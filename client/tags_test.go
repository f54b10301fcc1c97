package client

import (
	"testing"

	"github.com/flightstack/ninep2000/ninep"
)

func TestTagTableExhaustion(t *testing.T) {
	table := newTagTable(16)

	var tags []ninep.Tag
	for i := 0; i < 16; i++ {
		tag := table.alloc()
		if tag == ninep.NOTAG {
			t.Fatalf("alloc %d returned NOTAG with free slots remaining", i)
		}
		tags = append(tags, tag)
	}

	if tag := table.alloc(); tag != ninep.NOTAG {
		t.Fatalf("17th alloc = %d, want NOTAG", tag)
	}

	table.clear(tags[7])
	if tag := table.alloc(); tag != tags[7] {
		t.Fatalf("alloc after clear = %d, want reclaimed slot %d", tag, tags[7])
	}
}

func TestTagTableAttachTagReserved(t *testing.T) {
	table := newTagTable(16)
	if got := table.attachTag(); got != 16 {
		t.Fatalf("attach tag = %d, want 16", got)
	}
	if table.valid(table.attachTag()) {
		t.Fatalf("attach tag must not be a valid ordinary tag")
	}
	if table.valid(ninep.NOTAG) {
		t.Fatalf("NOTAG must not be a valid ordinary tag")
	}
}

func TestTagReadyOnlyAfterCompletion(t *testing.T) {
	table := newTagTable(4)
	tag := table.alloc()

	slot := table.get(tag)
	slot.pending = true
	slot.expected = ninep.MtRwalk

	if table.ready(tag) {
		t.Fatalf("pending tag reported ready")
	}

	slot.pending = false
	if !table.ready(tag) {
		t.Fatalf("completed tag not reported ready")
	}
	if !table.readyAs(tag, ninep.MtRwalk) {
		t.Fatalf("completed tag not ready as its expected type")
	}
	if table.readyAs(tag, ninep.MtRopen) {
		t.Fatalf("tag ready as the wrong type")
	}

	table.clear(tag)
	if table.ready(tag) {
		t.Fatalf("cleared tag reported ready")
	}
}
