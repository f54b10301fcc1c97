// Package fileserver serves a file tree over 9P2000 on one connection. It
// exists as the other half of the client package: the in-process server
// that integration tests and the ninep-serve bring-up tool mount against.
package fileserver

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/flightstack/ninep2000/ninep"
)

// Error strings returned to the client. The server also passes tree errors
// through verbatim.
const (
	FidInUse               = "fid already in use"
	UnknownFid             = "unknown fid"
	FidOpen                = "fid is open"
	FidNotOpen             = "fid is not open"
	FidNotDirectory        = "fid is not a directory"
	NoSuchFile             = "file does not exist"
	InvalidFileName        = "invalid file name"
	AuthNotSupported       = "authentication not supported"
	UnsupportedMessage     = "message not supported"
	MessageSizeTooSmall    = "version: message size too small"
	IncorrectTagForVersion = "version: tag must be NOTAG"
	OpenWriteOnDir         = "open: cannot open dir for write"
	PermissionDenied       = "permission denied"
	ResponseTooBig         = "response too big"
)

const (
	// MessageSize is the maximum negotiable message size.
	MessageSize = 64 * 1024

	// MinSize is the smallest message size the server will agree to.
	MinSize = 256
)

// Verbosity is the logging level of the server.
type Verbosity int

// Verbosity levels.
const (
	Quiet Verbosity = iota
	Chatty
	Debug
)

// File is a node in the served tree.
type File interface {
	Qid() ninep.Qid
	Stat() ninep.Stat

	// WriteStat applies the non-sentinel numeric fields of a wstat
	// (mtime and mode; length too for files). Renames are routed through
	// the parent Dir by the server, not through WriteStat.
	WriteStat(st ninep.Stat) error

	IsDir() bool
	Open(mode ninep.OpenMode) (Handle, error)
}

// Dir is a directory node.
type Dir interface {
	File
	Walk(name string) (File, error)
	Create(name string, perm ninep.FileMode) (File, error)
	Rename(oldName, newName string) error
	Remove(name string) error
	List() []ninep.Stat
}

// Handle is an open file or directory.
type Handle interface {
	io.ReaderAt
	io.WriterAt
	Close() error
}

// fidState is the server-side record for one client fid.
type fidState struct {
	file   File
	parent Dir
	name   string

	handle Handle
	mode   ninep.OpenMode
}

// FileServer serves a single connection. Requests are handled in arrival
// order on the serving goroutine; responses therefore come back in request
// order, which the tag-multiplexing client is indifferent to.
type FileServer struct {
	conn      net.Conn
	root      Dir
	verbosity Verbosity

	msize uint32
	fids  map[ninep.Fid]*fidState

	in  []byte
	out []byte
}

// New creates a server for one connection, serving root.
func New(conn net.Conn, root Dir, verbosity Verbosity) *FileServer {
	return &FileServer{
		conn:      conn,
		root:      root,
		verbosity: verbosity,
		msize:     MessageSize,
		fids:      make(map[ninep.Fid]*fidState),
		in:        make([]byte, MessageSize),
		out:       make([]byte, MessageSize),
	}
}

// Serve handles the connection until it fails or closes. The error for a
// clean remote close is io.EOF.
func (fs *FileServer) Serve() error {
	defer fs.cleanup()
	for {
		if _, err := io.ReadFull(fs.conn, fs.in[:4]); err != nil {
			return err
		}
		length := binary.LittleEndian.Uint32(fs.in[:4])
		if length < ninep.HeaderSize || length > fs.msize {
			return fmt.Errorf("fileserver: bad frame length %d", length)
		}
		if _, err := io.ReadFull(fs.conn, fs.in[4:length]); err != nil {
			return err
		}

		msg, err := ninep.Decode(fs.in[:length])
		if err != nil {
			return fmt.Errorf("fileserver: decode: %w", err)
		}
		if msg == nil {
			// R-message noise from a confused peer; drop it.
			continue
		}
		if fs.verbosity >= Debug {
			log.Printf("fileserver: -> %T tag %d", msg, msg.GetTag())
		}

		resp := fs.handle(msg)
		if resp == nil {
			continue
		}
		if fs.verbosity >= Debug {
			log.Printf("fileserver: <- %T tag %d", resp, resp.GetTag())
		}
		n, err := ninep.Encode(fs.out[:fs.msize], resp)
		if err != nil {
			n, err = ninep.Encode(fs.out[:fs.msize], &ninep.Rerror{Tag: resp.GetTag(), Ename: ResponseTooBig})
			if err != nil {
				return err
			}
		}
		if _, err := fs.conn.Write(fs.out[:n]); err != nil {
			return err
		}
	}
}

func (fs *FileServer) cleanup() {
	for _, state := range fs.fids {
		if state.handle != nil {
			state.handle.Close()
		}
	}
	fs.fids = make(map[ninep.Fid]*fidState)
	fs.conn.Close()
}

func (fs *FileServer) handle(msg ninep.Message) ninep.Message {
	switch m := msg.(type) {
	case *ninep.Tversion:
		return fs.version(m)
	case *ninep.Tattach:
		return fs.attach(m)
	case *ninep.Twalk:
		return fs.walk(m)
	case *ninep.Topen:
		return fs.open(m)
	case *ninep.Tcreate:
		return fs.create(m)
	case *ninep.Tread:
		return fs.read(m)
	case *ninep.Twrite:
		return fs.write(m)
	case *ninep.Tclunk:
		return fs.clunk(m)
	case *ninep.Tremove:
		return fs.remove(m)
	case *ninep.Tstat:
		return fs.stat(m)
	case *ninep.Twstat:
		return fs.wstat(m)
	default:
		return &ninep.Rerror{Tag: msg.GetTag(), Ename: UnsupportedMessage}
	}
}

func (fs *FileServer) version(m *ninep.Tversion) ninep.Message {
	if m.Tag != ninep.NOTAG {
		return &ninep.Rerror{Tag: m.Tag, Ename: IncorrectTagForVersion}
	}
	if m.MSize < MinSize {
		return &ninep.Rerror{Tag: m.Tag, Ename: MessageSizeTooSmall}
	}

	msize := m.MSize
	if msize > MessageSize {
		msize = MessageSize
	}
	version := ninep.Version
	if m.Version != ninep.Version {
		version = ninep.UnknownVersion
	} else {
		// A version request resets the session.
		fs.msize = msize
		for fid, state := range fs.fids {
			if state.handle != nil {
				state.handle.Close()
			}
			delete(fs.fids, fid)
		}
	}
	return &ninep.Rversion{Tag: m.Tag, MSize: msize, Version: version}
}

func (fs *FileServer) attach(m *ninep.Tattach) ninep.Message {
	if m.AFid != ninep.NOFID {
		return &ninep.Rerror{Tag: m.Tag, Ename: AuthNotSupported}
	}
	if _, ok := fs.fids[m.Fid]; ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidInUse}
	}
	fs.fids[m.Fid] = &fidState{file: fs.root}
	if fs.verbosity >= Chatty {
		log.Printf("fileserver: attach uname=%q aname=%q", m.Uname, m.Aname)
	}
	return &ninep.Rattach{Tag: m.Tag, Qid: fs.root.Qid()}
}

func (fs *FileServer) walk(m *ninep.Twalk) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}
	if state.handle != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidOpen}
	}
	if _, ok := fs.fids[m.NewFid]; ok && m.NewFid != m.Fid {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidInUse}
	}

	cur := state.file
	parent := state.parent
	name := state.name
	var qids []ninep.Qid
	for _, walkName := range m.Names {
		dir, ok := cur.(Dir)
		if !ok {
			break
		}
		next, err := dir.Walk(walkName)
		if err != nil || next == nil {
			break
		}
		parent = dir
		name = walkName
		cur = next
		qids = append(qids, cur.Qid())
	}

	if len(m.Names) > 0 && len(qids) == 0 {
		return &ninep.Rerror{Tag: m.Tag, Ename: NoSuchFile}
	}
	if len(qids) == len(m.Names) {
		fs.fids[m.NewFid] = &fidState{file: cur, parent: parent, name: name}
	}
	return &ninep.Rwalk{Tag: m.Tag, Qids: qids}
}

func (fs *FileServer) open(m *ninep.Topen) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}
	if state.handle != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidOpen}
	}
	access := m.Mode &^ ninep.OTRUNC
	if state.file.IsDir() && access != ninep.OREAD {
		return &ninep.Rerror{Tag: m.Tag, Ename: OpenWriteOnDir}
	}

	handle, err := state.file.Open(m.Mode)
	if err != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
	}
	state.handle = handle
	state.mode = m.Mode
	return &ninep.Ropen{Tag: m.Tag, Qid: state.file.Qid(), IOUnit: 0}
}

func (fs *FileServer) create(m *ninep.Tcreate) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}
	if state.handle != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidOpen}
	}
	dir, ok := state.file.(Dir)
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidNotDirectory}
	}

	file, err := dir.Create(m.Name, m.Perm)
	if err != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
	}
	handle, err := file.Open(m.Mode)
	if err != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
	}

	// The fid now refers to the created object, open for I/O.
	state.file = file
	state.parent = dir
	state.name = m.Name
	state.handle = handle
	state.mode = m.Mode
	return &ninep.Rcreate{Tag: m.Tag, Qid: file.Qid(), IOUnit: 0}
}

func (fs *FileServer) read(m *ninep.Tread) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}
	if state.handle == nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidNotOpen}
	}

	count := m.Count
	const rreadFixed = ninep.HeaderSize + 4
	if max := fs.msize - rreadFixed; count > max {
		count = max
	}

	buf := make([]byte, count)
	n, err := state.handle.ReadAt(buf, int64(m.Offset))
	if err != nil && err != io.EOF {
		return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
	}
	return &ninep.Rread{Tag: m.Tag, Data: buf[:n]}
}

func (fs *FileServer) write(m *ninep.Twrite) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}
	if state.handle == nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: FidNotOpen}
	}

	n, err := state.handle.WriteAt(m.Data, int64(m.Offset))
	if err != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
	}
	return &ninep.Rwrite{Tag: m.Tag, Count: uint32(n)}
}

func (fs *FileServer) clunk(m *ninep.Tclunk) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}
	if state.handle != nil {
		state.handle.Close()
	}
	delete(fs.fids, m.Fid)
	return &ninep.Rclunk{Tag: m.Tag}
}

func (fs *FileServer) remove(m *ninep.Tremove) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}

	// Remove clunks the fid whether or not the remove itself succeeds.
	if state.handle != nil {
		state.handle.Close()
	}
	delete(fs.fids, m.Fid)

	if state.parent == nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: PermissionDenied}
	}
	if err := state.parent.Remove(state.name); err != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
	}
	return &ninep.Rremove{Tag: m.Tag}
}

func (fs *FileServer) stat(m *ninep.Tstat) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}
	return &ninep.Rstat{Tag: m.Tag, Stat: state.file.Stat()}
}

func (fs *FileServer) wstat(m *ninep.Twstat) ninep.Message {
	state, ok := fs.fids[m.Fid]
	if !ok {
		return &ninep.Rerror{Tag: m.Tag, Ename: UnknownFid}
	}

	if m.Stat.Name != "" && m.Stat.Name != state.name {
		if state.parent == nil {
			return &ninep.Rerror{Tag: m.Tag, Ename: PermissionDenied}
		}
		if err := state.parent.Rename(state.name, m.Stat.Name); err != nil {
			return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
		}
		state.name = m.Stat.Name
	}
	if err := state.file.WriteStat(m.Stat); err != nil {
		return &ninep.Rerror{Tag: m.Tag, Ename: err.Error()}
	}
	return &ninep.Rwstat{Tag: m.Tag}
}
