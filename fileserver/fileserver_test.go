package fileserver

import (
	"bytes"
	"testing"

	"github.com/flightstack/ninep2000/ninep"
)

const testVerbosity = Quiet

func testServer() (*FileServer, *RAMTree) {
	root := NewRAMTree("/", 0o777, "test", "test")
	return New(nil, root, testVerbosity), root
}

// attach runs version and attach so ordinary requests can follow.
func attach(t *testing.T, fs *FileServer) {
	t.Helper()

	resp := fs.handle(&ninep.Tversion{Tag: ninep.NOTAG, MSize: 8192, Version: ninep.Version})
	rv, ok := resp.(*ninep.Rversion)
	if !ok {
		t.Fatalf("version response = %#v", resp)
	}
	if rv.MSize != 8192 || rv.Version != ninep.Version {
		t.Fatalf("negotiated %d %q", rv.MSize, rv.Version)
	}

	resp = fs.handle(&ninep.Tattach{Tag: 0, Fid: 0, AFid: ninep.NOFID, Uname: "test"})
	ra, ok := resp.(*ninep.Rattach)
	if !ok {
		t.Fatalf("attach response = %#v", resp)
	}
	if ra.Qid.Type != ninep.QTDIR {
		t.Fatalf("attach qid type = %#x, want QTDIR", ra.Qid.Type)
	}
}

func TestVersionNegotiation(t *testing.T) {
	fs, _ := testServer()

	// Tag must be NOTAG.
	if _, ok := fs.handle(&ninep.Tversion{Tag: 5, MSize: 8192, Version: ninep.Version}).(*ninep.Rerror); !ok {
		t.Fatalf("version with ordinary tag not rejected")
	}

	// Message size must clear the floor.
	if _, ok := fs.handle(&ninep.Tversion{Tag: ninep.NOTAG, MSize: 64, Version: ninep.Version}).(*ninep.Rerror); !ok {
		t.Fatalf("tiny msize not rejected")
	}

	// An oversized request is clamped to the server maximum.
	resp := fs.handle(&ninep.Tversion{Tag: ninep.NOTAG, MSize: 1 << 30, Version: ninep.Version})
	if rv := resp.(*ninep.Rversion); rv.MSize != MessageSize {
		t.Fatalf("msize = %d, want clamp to %d", rv.MSize, MessageSize)
	}

	// An unknown version string is answered with "unknown".
	resp = fs.handle(&ninep.Tversion{Tag: ninep.NOTAG, MSize: 8192, Version: "9P2021.q"})
	if rv := resp.(*ninep.Rversion); rv.Version != ninep.UnknownVersion {
		t.Fatalf("version = %q, want %q", rv.Version, ninep.UnknownVersion)
	}
}

func TestUnknownFid(t *testing.T) {
	fs, _ := testServer()
	attach(t, fs)

	resp := fs.handle(&ninep.Topen{Tag: 1, Fid: 42, Mode: ninep.OREAD})
	re, ok := resp.(*ninep.Rerror)
	if !ok || re.Ename != UnknownFid {
		t.Fatalf("open of unknown fid = %#v", resp)
	}
}

func TestWalkOpenRead(t *testing.T) {
	fs, root := testServer()

	dir1 := NewRAMTree("dir1", 0o777, "test", "test")
	root.Add("dir1", dir1)
	file := NewRAMFile("file1", 0o666, "test", "test")
	file.SetContent([]byte("contents"))
	dir1.Add("file1", file)

	attach(t, fs)

	resp := fs.handle(&ninep.Twalk{Tag: 1, Fid: 0, NewFid: 1, Names: []string{"dir1", "file1"}})
	rw, ok := resp.(*ninep.Rwalk)
	if !ok {
		t.Fatalf("walk = %#v", resp)
	}
	if len(rw.Qids) != 2 || rw.Qids[0].Type != ninep.QTDIR || rw.Qids[1].Type != ninep.QTFILE {
		t.Fatalf("walk qids = %+v", rw.Qids)
	}

	if _, ok := fs.handle(&ninep.Topen{Tag: 1, Fid: 1, Mode: ninep.OREAD}).(*ninep.Ropen); !ok {
		t.Fatalf("open failed")
	}

	resp = fs.handle(&ninep.Tread{Tag: 1, Fid: 1, Offset: 0, Count: 64})
	rr, ok := resp.(*ninep.Rread)
	if !ok || !bytes.Equal(rr.Data, []byte("contents")) {
		t.Fatalf("read = %#v", resp)
	}

	// Reading past the end yields an empty Rread, not an error.
	resp = fs.handle(&ninep.Tread{Tag: 1, Fid: 1, Offset: 100, Count: 64})
	if rr := resp.(*ninep.Rread); len(rr.Data) != 0 {
		t.Fatalf("read past end returned %d bytes", len(rr.Data))
	}
}

func TestPartialWalkDoesNotBind(t *testing.T) {
	fs, root := testServer()

	dir1 := NewRAMTree("dir1", 0o777, "test", "test")
	root.Add("dir1", dir1)

	attach(t, fs)

	resp := fs.handle(&ninep.Twalk{Tag: 1, Fid: 0, NewFid: 1, Names: []string{"dir1", "missing"}})
	rw, ok := resp.(*ninep.Rwalk)
	if !ok || len(rw.Qids) != 1 {
		t.Fatalf("partial walk = %#v", resp)
	}

	// The new fid was not bound, so using it must fail.
	if _, ok := fs.handle(&ninep.Topen{Tag: 1, Fid: 1, Mode: ninep.OREAD}).(*ninep.Rerror); !ok {
		t.Fatalf("unbound fid usable after partial walk")
	}
}

func TestCreateWriteAndReaddir(t *testing.T) {
	fs, _ := testServer()
	attach(t, fs)

	// Clone the root fid, then create through the clone; the clone now
	// refers to the created file, open for I/O.
	if _, ok := fs.handle(&ninep.Twalk{Tag: 1, Fid: 0, NewFid: 1}).(*ninep.Rwalk); !ok {
		t.Fatalf("clone walk failed")
	}
	resp := fs.handle(&ninep.Tcreate{Tag: 1, Fid: 1, Name: "x", Perm: 0o666, Mode: ninep.ORDWR})
	rc, ok := resp.(*ninep.Rcreate)
	if !ok || rc.Qid.Type != ninep.QTFILE {
		t.Fatalf("create = %#v", resp)
	}

	if _, ok := fs.handle(&ninep.Twrite{Tag: 1, Fid: 1, Offset: 0, Data: []byte("abc")}).(*ninep.Rwrite); !ok {
		t.Fatalf("write through create fid failed")
	}

	// List the root and find the new file.
	if _, ok := fs.handle(&ninep.Twalk{Tag: 1, Fid: 0, NewFid: 2}).(*ninep.Rwalk); !ok {
		t.Fatalf("clone walk failed")
	}
	if _, ok := fs.handle(&ninep.Topen{Tag: 1, Fid: 2, Mode: ninep.OREAD}).(*ninep.Ropen); !ok {
		t.Fatalf("dir open failed")
	}
	resp = fs.handle(&ninep.Tread{Tag: 1, Fid: 2, Offset: 0, Count: 8192})
	rr, ok := resp.(*ninep.Rread)
	if !ok || len(rr.Data) == 0 {
		t.Fatalf("dir read = %#v", resp)
	}
	st, n, err := ninep.DecodeStat(rr.Data)
	if err != nil || n == 0 {
		t.Fatalf("stat decode: %v", err)
	}
	if st.Name != "x" || st.Length != 3 {
		t.Fatalf("dir entry = %+v", st)
	}
}

func TestClunkRemove(t *testing.T) {
	fs, root := testServer()
	file := NewRAMFile("f", 0o666, "test", "test")
	root.Add("f", file)

	attach(t, fs)

	if _, ok := fs.handle(&ninep.Twalk{Tag: 1, Fid: 0, NewFid: 1, Names: []string{"f"}}).(*ninep.Rwalk); !ok {
		t.Fatalf("walk failed")
	}
	if _, ok := fs.handle(&ninep.Tremove{Tag: 1, Fid: 1}).(*ninep.Rremove); !ok {
		t.Fatalf("remove failed")
	}

	// The fid died with the remove.
	if _, ok := fs.handle(&ninep.Tclunk{Tag: 1, Fid: 1}).(*ninep.Rerror); !ok {
		t.Fatalf("fid survived remove")
	}
	if len(root.List()) != 0 {
		t.Fatalf("file survived remove")
	}

	// Removing the attach root is refused, but still clunks the fid.
	resp := fs.handle(&ninep.Tremove{Tag: 1, Fid: 0})
	if _, ok := resp.(*ninep.Rerror); !ok {
		t.Fatalf("root remove = %#v", resp)
	}
	if _, ok := fs.handle(&ninep.Tclunk{Tag: 1, Fid: 0}).(*ninep.Rerror); !ok {
		t.Fatalf("root fid survived failed remove")
	}
}

func TestWstatRenameAndMtime(t *testing.T) {
	fs, root := testServer()
	file := NewRAMFile("old", 0o666, "test", "test")
	root.Add("old", file)

	attach(t, fs)

	if _, ok := fs.handle(&ninep.Twalk{Tag: 1, Fid: 0, NewFid: 1, Names: []string{"old"}}).(*ninep.Rwalk); !ok {
		t.Fatalf("walk failed")
	}

	st := ninep.Stat{
		Type:   ninep.NoModifyU16,
		Dev:    ninep.NoModifyU32,
		Qid:    ninep.Qid{Type: 0xFF, Version: ninep.NoModifyU32, Path: ninep.NoModifyU64},
		Mode:   ninep.FileMode(ninep.NoModifyU32),
		Atime:  ninep.NoModifyU32,
		Mtime:  ninep.NoModifyU32,
		Length: ninep.NoModifyU64,
		Name:   "new",
	}
	if _, ok := fs.handle(&ninep.Twstat{Tag: 1, Fid: 1, Stat: st}).(*ninep.Rwstat); !ok {
		t.Fatalf("rename wstat failed")
	}

	st.Name = ""
	st.Mtime = 424242
	if _, ok := fs.handle(&ninep.Twstat{Tag: 1, Fid: 1, Stat: st}).(*ninep.Rwstat); !ok {
		t.Fatalf("mtime wstat failed")
	}

	got := file.Stat()
	if got.Name != "new" || got.Mtime != 424242 {
		t.Fatalf("stat after wstat = %+v", got)
	}
	if _, err := root.Walk("new"); err != nil {
		t.Fatalf("renamed entry not reachable: %v", err)
	}
}

func TestDirHandleWholeRecords(t *testing.T) {
	stats := []ninep.Stat{
		{Qid: ninep.Qid{Type: ninep.QTFILE, Path: 1}, Name: "aaaa", UID: "u", GID: "g", MUID: "u"},
		{Qid: ninep.Qid{Type: ninep.QTFILE, Path: 2}, Name: "bbbb", UID: "u", GID: "g", MUID: "u"},
	}
	h := newDirHandle(stats)

	first := stats[0].WireSize()

	// A buffer that fits one record but not two must return exactly one.
	buf := make([]byte, first+10)
	n, err := h.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != first {
		t.Fatalf("read = %d bytes, want one whole record of %d", n, first)
	}

	st, _, err := ninep.DecodeStat(buf[:n])
	if err != nil || st.Name != "aaaa" {
		t.Fatalf("first record = %+v, %v", st, err)
	}
}
