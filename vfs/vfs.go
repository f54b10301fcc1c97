// Package vfs wraps the request/poll/collect primitives of the client
// package into single blocking calls, for callers that do not want to
// manage the poll loop themselves. It is the surface a POSIX-flavored
// filesystem layer consumes: walk, open, create, read, readdir, write,
// remove, stat, rename, set-mtime, release.
package vfs

import (
	"errors"
	"fmt"
	"time"

	"github.com/flightstack/ninep2000/client"
	"github.com/flightstack/ninep2000/ninep"
)

// Kind constrains what a Walk is allowed to resolve to.
const (
	Any       = client.WalkAny
	File      = client.WalkFile
	Directory = client.WalkDirectory
)

var (
	// ErrNotMounted is returned when an operation is attempted before the
	// session has completed its handshake.
	ErrNotMounted = errors.New("vfs: not mounted")

	// ErrBusy is returned when a mounted session refuses a request: its tag
	// or fid tables are exhausted (the caller should back off and retry),
	// the fid is not valid, or the request does not fit the negotiated
	// message size. The three cases are not told apart.
	ErrBusy = errors.New("vfs: no free tag or fid")

	// ErrTimeout is returned when an operation's deadline expires. The
	// request is abandoned, not cancelled; a late response is dropped by
	// the worker.
	ErrTimeout = errors.New("vfs: operation timed out")

	// ErrFailed is returned when the server answered an operation with an
	// error. The server's reason is surfaced through the session log, not
	// through this value.
	ErrFailed = errors.New("vfs: operation failed")
)

// FS is a blocking facade over one client.Session.
type FS struct {
	s *client.Session

	// pollInterval is how long each wait loop sleeps between checks of
	// the tag table.
	pollInterval time.Duration

	// opTimeout bounds each individual operation; zero means wait
	// forever.
	opTimeout time.Duration
}

// Option configures an FS.
type Option func(*FS)

// WithPollInterval sets the sleep between tag-table polls.
func WithPollInterval(d time.Duration) Option {
	return func(f *FS) { f.pollInterval = d }
}

// WithTimeout bounds each operation. On expiry the pending tag is cleared
// and the operation reports ErrTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *FS) { f.opTimeout = d }
}

// New wraps s. The session must be started by the caller.
func New(s *client.Session, opts ...Option) *FS {
	f := &FS{s: s, pollInterval: 500 * time.Microsecond}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Mount blocks until the session reports mounted, or until timeout (zero
// means wait forever).
func (f *FS) Mount(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !f.s.Mounted() {
		if timeout != 0 && time.Now().After(deadline) {
			return ErrNotMounted
		}
		time.Sleep(f.pollInterval)
	}
	return nil
}

// Mounted reports whether the underlying session is mounted.
func (f *FS) Mounted() bool { return f.s.Mounted() }

// MaxReadLen is the largest single-message read payload; larger reads must
// loop.
func (f *FS) MaxReadLen() uint32 { return f.s.MaxReadLen() }

// MaxWriteLen is the largest single-message write payload; larger writes
// must loop.
func (f *FS) MaxWriteLen() uint32 { return f.s.MaxWriteLen() }

// wait polls until tag completes. On timeout the tag is cleared and the
// caller's operation is abandoned.
func (f *FS) wait(tag ninep.Tag) error {
	var deadline time.Time
	if f.opTimeout != 0 {
		deadline = time.Now().Add(f.opTimeout)
	}
	for !f.s.TagReady(tag) {
		if !deadline.IsZero() && time.Now().After(deadline) {
			f.s.ClearTag(tag)
			return ErrTimeout
		}
		time.Sleep(f.pollInterval)
	}
	return nil
}

// Walk resolves path relative to the root and returns a fid for it. The
// caller owns the fid and must Release it (or Remove through it) when
// done.
func (f *FS) Walk(path string, kind client.WalkKind) (ninep.Fid, error) {
	tag := f.s.RequestWalk(path, kind)
	if tag == ninep.NOTAG {
		return 0, f.refused()
	}
	if err := f.wait(tag); err != nil {
		return 0, err
	}
	fid := f.s.WalkResult(tag)
	if fid == 0 {
		return 0, fmt.Errorf("%w: walk %q", ErrFailed, path)
	}
	return fid, nil
}

// Open prepares fid for I/O. flags follow the os package convention.
func (f *FS) Open(fid ninep.Fid, flags int) error {
	tag := f.s.RequestOpen(fid, flags)
	if tag == ninep.NOTAG {
		return f.refused()
	}
	if err := f.wait(tag); err != nil {
		return err
	}
	if !f.s.OpenResult(tag) {
		return fmt.Errorf("%w: open fid %d", ErrFailed, fid)
	}
	return nil
}

// Create makes name inside the directory referenced by parent. On success
// parent refers to the new object and is open for I/O.
func (f *FS) Create(parent ninep.Fid, name string, isDir bool) error {
	tag := f.s.RequestCreate(parent, name, isDir)
	if tag == ninep.NOTAG {
		return f.refused()
	}
	if err := f.wait(tag); err != nil {
		return err
	}
	if !f.s.CreateResult(tag) {
		return fmt.Errorf("%w: create %q", ErrFailed, name)
	}
	return nil
}

// ReadFile reads up to len(buf) bytes from fid at offset, bounded by the
// negotiated message size. Returns the byte count; 0 means end of file.
func (f *FS) ReadFile(fid ninep.Fid, offset uint64, buf []byte) (int, error) {
	count := uint32(len(buf))
	if max := f.s.MaxReadLen(); count > max {
		count = max
	}
	tag := f.s.RequestRead(fid, offset, count, buf)
	if tag == ninep.NOTAG {
		return 0, f.refused()
	}
	if err := f.wait(tag); err != nil {
		return 0, err
	}
	n := f.s.ReadResult(tag)
	if n < 0 {
		return 0, fmt.Errorf("%w: read fid %d", ErrFailed, fid)
	}
	return n, nil
}

// ReadDir reads the directory entry at offset from fid. It returns the
// entry and its wire size; the caller advances offset by that size. A zero
// size means end of directory.
func (f *FS) ReadDir(fid ninep.Fid, offset uint64) (client.DirEntry, int, error) {
	var entry client.DirEntry
	tag := f.s.RequestReadDir(fid, offset, &entry)
	if tag == ninep.NOTAG {
		return client.DirEntry{}, 0, f.refused()
	}
	if err := f.wait(tag); err != nil {
		return client.DirEntry{}, 0, err
	}
	n := f.s.ReadDirResult(tag)
	if n < 0 {
		return client.DirEntry{}, 0, fmt.Errorf("%w: readdir fid %d", ErrFailed, fid)
	}
	return entry, n, nil
}

// List walks dir relative to the root, opens it and collects every entry.
func (f *FS) List(dir string) ([]client.DirEntry, error) {
	fid, err := f.Walk(dir, Directory)
	if err != nil {
		return nil, err
	}
	defer f.Release(fid)

	if err := f.Open(fid, 0); err != nil {
		return nil, err
	}

	var entries []client.DirEntry
	var offset uint64
	for {
		entry, n, err := f.ReadDir(fid, offset)
		if err != nil {
			return entries, err
		}
		if n == 0 {
			return entries, nil
		}
		entries = append(entries, entry)
		offset += uint64(n)
	}
}

// Write writes buf to fid at offset, looping over the negotiated
// per-message limit, and returns the number of bytes written.
func (f *FS) Write(fid ninep.Fid, offset uint64, buf []byte) (int, error) {
	written := 0
	for len(buf) > 0 {
		tag := f.s.RequestWrite(fid, offset, buf)
		if tag == ninep.NOTAG {
			return written, f.refused()
		}
		if err := f.wait(tag); err != nil {
			return written, err
		}
		n := f.s.WriteResult(tag)
		if n < 0 {
			return written, fmt.Errorf("%w: write fid %d", ErrFailed, fid)
		}
		if n == 0 {
			return written, fmt.Errorf("%w: short write on fid %d", ErrFailed, fid)
		}
		written += n
		offset += uint64(n)
		buf = buf[n:]
	}
	return written, nil
}

// Remove deletes the object referenced by fid. The fid is dead afterwards
// whether or not the remove succeeded.
func (f *FS) Remove(fid ninep.Fid) error {
	tag := f.s.RequestRemove(fid)
	if tag == ninep.NOTAG {
		return f.refused()
	}
	if err := f.wait(tag); err != nil {
		return err
	}
	if !f.s.RemoveResult(tag) {
		return fmt.Errorf("%w: remove fid %d", ErrFailed, fid)
	}
	return nil
}

// Stat fetches the metadata record for fid.
func (f *FS) Stat(fid ninep.Fid) (client.Stat, error) {
	tag := f.s.RequestStat(fid)
	if tag == ninep.NOTAG {
		return client.Stat{}, f.refused()
	}
	if err := f.wait(tag); err != nil {
		return client.Stat{}, err
	}
	st, ok := f.s.StatResult(tag)
	if !ok {
		return client.Stat{}, fmt.Errorf("%w: stat fid %d", ErrFailed, fid)
	}
	return st, nil
}

// Rename changes the name of the object referenced by fid within its
// directory.
func (f *FS) Rename(fid ninep.Fid, newName string) error {
	tag := f.s.RequestRename(fid, newName)
	if tag == ninep.NOTAG {
		return f.refused()
	}
	if err := f.wait(tag); err != nil {
		return err
	}
	if !f.s.WstatResult(tag) {
		return fmt.Errorf("%w: rename fid %d to %q", ErrFailed, fid, newName)
	}
	return nil
}

// SetMtime sets the modification time of the object referenced by fid.
func (f *FS) SetMtime(fid ninep.Fid, t time.Time) error {
	tag := f.s.RequestSetMtime(fid, uint32(t.Unix()))
	if tag == ninep.NOTAG {
		return f.refused()
	}
	if err := f.wait(tag); err != nil {
		return err
	}
	if !f.s.WstatResult(tag) {
		return fmt.Errorf("%w: set mtime on fid %d", ErrFailed, fid)
	}
	return nil
}

// Release returns fid to the server. Releasing twice is harmless.
func (f *FS) Release(fid ninep.Fid) { f.s.Release(fid) }

// refused maps a NOTAG from a request constructor to ErrNotMounted when the
// session is not mounted, and to ErrBusy for every other reason (tables
// exhausted, invalid fid, request too large).
func (f *FS) refused() error {
	if !f.s.Mounted() {
		return ErrNotMounted
	}
	return ErrBusy
}
