package client

import "testing"

func TestFidTableGenerate(t *testing.T) {
	table := newFidTable(4)

	// Fid 0 is reserved for the attach root and never handed out.
	for want := 1; want <= 4; want++ {
		if got := table.generate(); int(got) != want {
			t.Fatalf("generate = %d, want %d", got, want)
		}
	}
	if got := table.generate(); got != 0 {
		t.Fatalf("exhausted table generated fid %d, want 0", got)
	}
}

func TestFidClunkLifecycle(t *testing.T) {
	table := newFidTable(4)
	fid := table.generate()

	if !table.valid(fid) {
		t.Fatalf("fresh fid not valid")
	}

	// First release marks the slot clunked, making a second release a
	// no-op, but the slot stays occupied until the server acknowledges.
	table.markClunked(fid)
	if table.valid(fid) {
		t.Fatalf("clunked fid still valid")
	}
	if got := table.generate(); got == fid {
		t.Fatalf("clunked-but-unacknowledged slot was reallocated")
	}

	table.free(fid)
	table.free(fid) // double-free absorbs
}
