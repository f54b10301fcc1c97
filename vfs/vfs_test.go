package vfs

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"testing"
	"time"

	"github.com/flightstack/ninep2000/client"
	"github.com/flightstack/ninep2000/fileserver"
)

func startFS(t *testing.T) (*FS, *fileserver.RAMTree) {
	t.Helper()

	root := fileserver.NewRAMTree("/", 0o777, "test", "test")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go fileserver.New(conn, root, fileserver.Quiet).Serve()
		}
	}()

	s := client.NewSession(l.Addr().String(), log.New(io.Discard, "", 0))
	s.Start()
	t.Cleanup(s.Stop)

	f := New(s)
	if err := f.Mount(5 * time.Second); err != nil {
		t.Fatalf("mount: %v", err)
	}
	return f, root
}

// TestCreateWriteReadBack is the canonical round trip: create a file, walk
// back to it, open it and verify that what was written comes back intact.
func TestCreateWriteReadBack(t *testing.T) {
	f, _ := startFS(t)

	dir, err := f.Walk("", Directory)
	if err != nil {
		t.Fatalf("walk root: %v", err)
	}
	if err := f.Create(dir, "x", false); err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := bytes.Repeat([]byte("flight data "), 700) // spans several messages
	if n, err := f.Write(dir, 0, payload); err != nil || n != len(payload) {
		t.Fatalf("write = %d, %v", n, err)
	}
	f.Release(dir)

	fid, err := f.Walk("x", File)
	if err != nil {
		t.Fatalf("walk x: %v", err)
	}
	defer f.Release(fid)
	if err := f.Open(fid, os.O_RDONLY); err != nil {
		t.Fatalf("open: %v", err)
	}

	var back []byte
	buf := make([]byte, 4096)
	var offset uint64
	for {
		n, err := f.ReadFile(fid, offset, buf)
		if err != nil {
			t.Fatalf("read at %d: %v", offset, err)
		}
		if n == 0 {
			break
		}
		back = append(back, buf[:n]...)
		offset += uint64(n)
	}

	if !bytes.Equal(back, payload) {
		t.Fatalf("read back %d bytes, want %d, content mismatch", len(back), len(payload))
	}
}

func TestListAndStat(t *testing.T) {
	f, root := startFS(t)

	file := fileserver.NewRAMFile("telemetry.log", 0o666, "test", "test")
	file.SetContent([]byte("0123456789"))
	if err := root.Add("telemetry.log", file); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sub := fileserver.NewRAMTree("logs", 0o777, "test", "test")
	if err := root.Add("logs", sub); err != nil {
		t.Fatalf("seed: %v", err)
	}

	entries, err := f.List("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byName := map[string]client.DirEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	if e, ok := byName["telemetry.log"]; !ok || e.IsDir || e.Length != 10 {
		t.Fatalf("telemetry.log entry wrong: %+v", byName)
	}
	if e, ok := byName["logs"]; !ok || !e.IsDir {
		t.Fatalf("logs entry wrong: %+v", byName)
	}

	fid, err := f.Walk("telemetry.log", File)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	defer f.Release(fid)
	st, err := f.Stat(fid)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Length != 10 || st.Name != "telemetry.log" {
		t.Fatalf("stat = %+v", st)
	}
}

func TestRenameSetMtimeRemove(t *testing.T) {
	f, root := startFS(t)

	file := fileserver.NewRAMFile("old.txt", 0o666, "test", "test")
	if err := root.Add("old.txt", file); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fid, err := f.Walk("old.txt", File)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if err := f.Rename(fid, "new.txt"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	when := time.Unix(1700000000, 0)
	if err := f.SetMtime(fid, when); err != nil {
		t.Fatalf("set mtime: %v", err)
	}
	st, err := f.Stat(fid)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if int64(st.Mtime) != when.Unix() {
		t.Fatalf("mtime = %d, want %d", st.Mtime, when.Unix())
	}

	if err := f.Remove(fid); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := f.Walk("new.txt", Any); err == nil {
		t.Fatalf("walk to removed file succeeded")
	}
}

func TestWalkFailures(t *testing.T) {
	f, root := startFS(t)

	if _, err := f.Walk("missing", Any); !errors.Is(err, ErrFailed) {
		t.Fatalf("walk missing = %v, want ErrFailed", err)
	}

	sub := fileserver.NewRAMTree("d", 0o777, "test", "test")
	if err := root.Add("d", sub); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.Walk("d", File); !errors.Is(err, ErrFailed) {
		t.Fatalf("walk dir as file = %v, want ErrFailed", err)
	}
}
