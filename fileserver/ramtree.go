package fileserver

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flightstack/ninep2000/ninep"
)

// nextPath hands out server-unique qid paths.
var nextPath uint64

func allocPath() uint64 {
	return atomic.AddUint64(&nextPath, 1)
}

// RAMTree is an in-memory directory. Create adds an in-memory RAMFile or a
// nested RAMTree; it is also capable of holding any other File
// implementation added through Add.
type RAMTree struct {
	mu      sync.RWMutex
	name    string
	entries map[string]File
	id      uint64
	version uint32
	perm    ninep.FileMode
	uid     string
	gid     string
	atime   time.Time
	mtime   time.Time
}

// NewRAMTree creates an empty in-memory directory.
func NewRAMTree(name string, perm ninep.FileMode, uid, gid string) *RAMTree {
	now := time.Now()
	return &RAMTree{
		name:    name,
		entries: make(map[string]File),
		id:      allocPath(),
		perm:    perm,
		uid:     uid,
		gid:     gid,
		atime:   now,
		mtime:   now,
	}
}

func (t *RAMTree) Qid() ninep.Qid {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ninep.Qid{Type: ninep.QTDIR, Version: t.version, Path: t.id}
}

func (t *RAMTree) Stat() ninep.Stat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ninep.Stat{
		Qid:   ninep.Qid{Type: ninep.QTDIR, Version: t.version, Path: t.id},
		Mode:  t.perm | ninep.DMDIR,
		Atime: uint32(t.atime.Unix()),
		Mtime: uint32(t.mtime.Unix()),
		Name:  t.name,
		UID:   t.uid,
		GID:   t.gid,
		MUID:  t.uid,
	}
}

func (t *RAMTree) WriteStat(st ninep.Stat) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st.Mtime != ninep.NoModifyU32 {
		t.mtime = time.Unix(int64(st.Mtime), 0)
	}
	if st.Mode != ninep.FileMode(ninep.NoModifyU32) {
		t.perm = st.Mode & 0o777
	}
	t.version++
	return nil
}

func (t *RAMTree) IsDir() bool { return true }

// Open snapshots the directory listing; the handle serves reads from the
// snapshot so entry offsets stay stable across concurrent mutation.
func (t *RAMTree) Open(mode ninep.OpenMode) (Handle, error) {
	if mode&^ninep.OTRUNC != ninep.OREAD {
		return nil, errors.New(OpenWriteOnDir)
	}
	t.mu.Lock()
	t.atime = time.Now()
	t.mu.Unlock()
	return newDirHandle(t.List()), nil
}

func (t *RAMTree) Walk(name string) (File, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.entries[name]
	if !ok {
		return nil, errors.New(NoSuchFile)
	}
	return f, nil
}

func (t *RAMTree) Create(name string, perm ninep.FileMode) (File, error) {
	if !validName(name) {
		return nil, errors.New(InvalidFileName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return nil, errors.New("file already exists")
	}

	var f File
	if perm&ninep.DMDIR != 0 {
		f = NewRAMTree(name, perm&0o777, t.uid, t.gid)
	} else {
		f = NewRAMFile(name, perm&0o777, t.uid, t.gid)
	}
	t.entries[name] = f
	t.mtime = time.Now()
	t.atime = t.mtime
	t.version++
	return f, nil
}

// Add inserts an existing file under the given name, for servers
// assembling a tree up front.
func (t *RAMTree) Add(name string, f File) error {
	if !validName(name) {
		return errors.New(InvalidFileName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return errors.New("file already exists")
	}
	t.entries[name] = f
	t.mtime = time.Now()
	t.version++
	return nil
}

func (t *RAMTree) Rename(oldName, newName string) error {
	if !validName(newName) {
		return errors.New(InvalidFileName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.entries[oldName]
	if !ok {
		return errors.New(NoSuchFile)
	}
	if _, ok := t.entries[newName]; ok {
		return errors.New("file already exists")
	}
	delete(t.entries, oldName)
	t.entries[newName] = f
	if r, ok := f.(renamable); ok {
		r.setName(newName)
	}
	t.mtime = time.Now()
	t.version++
	return nil
}

func (t *RAMTree) Remove(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.entries[name]
	if !ok {
		return errors.New(NoSuchFile)
	}
	if dir, ok := f.(Dir); ok && len(dir.List()) > 0 {
		return errors.New("directory not empty")
	}
	delete(t.entries, name)
	t.mtime = time.Now()
	t.version++
	return nil
}

func (t *RAMTree) List() []ninep.Stat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := make([]ninep.Stat, 0, len(t.entries))
	for _, f := range t.entries {
		stats = append(stats, f.Stat())
	}
	return stats
}

// renamable lets a directory push a rename down into the entry so its stat
// record stays consistent.
type renamable interface {
	setName(name string)
}

func (t *RAMTree) setName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// dirHandle serves a directory listing snapshot. Reads are truncated to
// whole stat records, as the protocol requires.
type dirHandle struct {
	data []byte
}

func newDirHandle(stats []ninep.Stat) *dirHandle {
	size := 0
	for _, st := range stats {
		size += st.WireSize()
	}
	data := make([]byte, size)
	off := 0
	for _, st := range stats {
		n, err := ninep.EncodeStat(data[off:], st)
		if err != nil {
			break
		}
		off += n
	}
	return &dirHandle{data: data[:off]}
}

func (h *dirHandle) ReadAt(p []byte, offset int64) (int, error) {
	if offset >= int64(len(h.data)) {
		return 0, io.EOF
	}
	// Advance record by record so the response never splits an entry.
	end := int(offset)
	for end+2 <= len(h.data) {
		rec := 2 + int(uint16(h.data[end])|uint16(h.data[end+1])<<8)
		if end+rec-int(offset) > len(p) {
			break
		}
		end += rec
	}
	if end == int(offset) {
		return 0, errors.New(ResponseTooBig)
	}
	return copy(p, h.data[offset:end]), nil
}

func (h *dirHandle) WriteAt(p []byte, offset int64) (int, error) {
	return 0, errors.New(PermissionDenied)
}

func (h *dirHandle) Close() error { return nil }

// RAMFile is an in-memory file.
type RAMFile struct {
	mu      sync.RWMutex
	name    string
	content []byte
	id      uint64
	version uint32
	perm    ninep.FileMode
	uid     string
	gid     string
	atime   time.Time
	mtime   time.Time
}

// NewRAMFile creates an empty in-memory file.
func NewRAMFile(name string, perm ninep.FileMode, uid, gid string) *RAMFile {
	now := time.Now()
	return &RAMFile{
		name:  name,
		id:    allocPath(),
		perm:  perm,
		uid:   uid,
		gid:   gid,
		atime: now,
		mtime: now,
	}
}

// SetContent replaces the file's content, for servers assembling a tree up
// front.
func (f *RAMFile) SetContent(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = append([]byte(nil), b...)
	f.mtime = time.Now()
	f.version++
}

func (f *RAMFile) Qid() ninep.Qid {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ninep.Qid{Type: ninep.QTFILE, Version: f.version, Path: f.id}
}

func (f *RAMFile) Stat() ninep.Stat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ninep.Stat{
		Qid:    ninep.Qid{Type: ninep.QTFILE, Version: f.version, Path: f.id},
		Mode:   f.perm,
		Atime:  uint32(f.atime.Unix()),
		Mtime:  uint32(f.mtime.Unix()),
		Length: uint64(len(f.content)),
		Name:   f.name,
		UID:    f.uid,
		GID:    f.gid,
		MUID:   f.uid,
	}
}

func (f *RAMFile) WriteStat(st ninep.Stat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st.Mtime != ninep.NoModifyU32 {
		f.mtime = time.Unix(int64(st.Mtime), 0)
	}
	if st.Mode != ninep.FileMode(ninep.NoModifyU32) {
		f.perm = st.Mode & 0o777
	}
	if st.Length != ninep.NoModifyU64 {
		if st.Length <= uint64(len(f.content)) {
			f.content = f.content[:st.Length]
		} else {
			grown := make([]byte, st.Length)
			copy(grown, f.content)
			f.content = grown
		}
	}
	f.version++
	return nil
}

func (f *RAMFile) IsDir() bool { return false }

func (f *RAMFile) Open(mode ninep.OpenMode) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mode&ninep.OTRUNC != 0 {
		f.content = nil
		f.mtime = time.Now()
		f.version++
	}
	f.atime = time.Now()
	return &ramHandle{f: f}, nil
}

func (f *RAMFile) setName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
}

// ramHandle is an open RAMFile.
type ramHandle struct {
	f *RAMFile
}

func (h *ramHandle) ReadAt(p []byte, offset int64) (int, error) {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	if offset >= int64(len(h.f.content)) {
		return 0, io.EOF
	}
	return copy(p, h.f.content[offset:]), nil
}

func (h *ramHandle) WriteAt(p []byte, offset int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	end := offset + int64(len(p))
	if end > int64(cap(h.f.content)) {
		grown := make([]byte, end, end*2)
		copy(grown, h.f.content)
		h.f.content = grown
	} else if end > int64(len(h.f.content)) {
		h.f.content = h.f.content[:end]
	}

	copy(h.f.content[offset:], p)
	h.f.mtime = time.Now()
	h.f.atime = h.f.mtime
	h.f.version++
	return len(p), nil
}

func (h *ramHandle) Close() error { return nil }
