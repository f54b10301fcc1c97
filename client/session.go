package client

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/flightstack/ninep2000/ninep"
)

// sessionState is the connection/handshake state machine driving what a
// Session will accept off the wire and what foreground callers are allowed
// to do.
type sessionState uint8

const (
	stateDisconnected sessionState = iota
	stateVersion
	stateAttach
	stateMounted
)

// MaxMessage bounds both the send and receive scratch buffers, and is
// offered as the msize in the version handshake. The negotiated size (the
// server's Rversion.MSize, if smaller) becomes the effective limit for
// everything this session sends afterward.
const MaxMessage = 8192

// uname is the fixed user name this client attaches as; there is exactly
// one identity, so there is nothing to configure.
const uname = "ArduPilot"

// Session owns one TCP connection to a 9P2000 server together with the tag
// and fid tables multiplexed over it. All blocking I/O happens on the
// worker goroutine started by Start; every other method may be called
// concurrently from any number of foreground goroutines and serializes on
// mu.
type Session struct {
	addr string

	mu    sync.Mutex
	sock  *socket
	state sessionState
	msize uint32

	tags *tagTable
	fids *fidTable

	sendBuf []byte
	recvBuf []byte
	recvLen int

	stop    chan struct{}
	stopped bool

	logger *log.Logger
}

// Option adjusts a Session at construction time.
type Option func(*Session)

// WithBufferSize overrides the scratch-buffer size offered as msize in the
// version handshake. Values below the handshake minimum are raised to it.
func WithBufferSize(n int) Option {
	return func(s *Session) {
		if n < minAcceptableMSize {
			n = minAcceptableMSize
		}
		s.sendBuf = make([]byte, n)
		s.recvBuf = make([]byte, n)
	}
}

// WithTableSizes overrides the in-flight request and open-handle limits.
func WithTableSizes(tags, fids int) Option {
	return func(s *Session) {
		s.tags = newTagTable(tags)
		s.fids = newFidTable(fids)
	}
}

// NewSession creates a Session that will dial addr once Start is called.
// The tag and fid tables use their package defaults.
func NewSession(addr string, logger *log.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		addr:    addr,
		tags:    newTagTable(DefaultTagTableSize),
		fids:    newFidTable(DefaultFidTableSize),
		sendBuf: make([]byte, MaxMessage),
		recvBuf: make([]byte, MaxMessage),
		stop:    make(chan struct{}),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker goroutine. It returns immediately; connection
// and handshake happen in the background, polled with Mounted.
func (s *Session) Start() {
	go s.run()
}

// Stop terminates the worker goroutine and closes the socket, if any.
// Pending requests are left pending forever; callers should have already
// drained anything they care about.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stop)
}

// Mounted reports whether the version and attach handshake has completed
// and ordinary requests may be issued.
func (s *Session) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateMounted
}

// MaxReadLen is the largest Rread payload this session can receive in one
// message, given the negotiated msize. Only meaningful once Mounted.
func (s *Session) MaxReadLen() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	const rreadFixed = ninep.HeaderSize + 4
	if s.msize < rreadFixed {
		return 0
	}
	return s.msize - rreadFixed
}

// MaxWriteLen is the largest Twrite payload this session can send in one
// message, given the negotiated msize. Only meaningful once Mounted.
func (s *Session) MaxWriteLen() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	const twriteFixed = ninep.HeaderSize + 4 + 8 + 4
	if s.msize < twriteFixed {
		return 0
	}
	return s.msize - twriteFixed
}

// run is the worker goroutine body: connect, handshake, then pump recv
// until told to stop or the connection drops, at which point it loops back
// to reconnect.
func (s *Session) run() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		sock, err := dialSocket(s.addr, 5*time.Second)
		if err != nil {
			select {
			case <-s.stop:
				return
			case <-time.After(connectBackoff):
			}
			continue
		}

		s.logger.Printf("client: connected to %s", s.addr)
		s.onConnect(sock)
		s.requestVersion()

		s.pump()

		s.onDisconnect()
	}
}

func (s *Session) onConnect(sock *socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sock = sock
	s.recvLen = 0
	s.tags.reset()
	s.fids.reset()
}

func (s *Session) onDisconnect() {
	s.mu.Lock()
	sock := s.sock
	s.sock = nil
	s.state = stateDisconnected
	s.mu.Unlock()
	if sock != nil {
		sock.close()
	}
	s.logger.Printf("client: disconnected, will retry")
}

// pump drives non-blocking recv until the connection drops or Stop is
// called.
func (s *Session) pump() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.mu.Lock()
		sock := s.sock
		buf := s.recvBuf[s.recvLen:]
		s.mu.Unlock()
		if sock == nil {
			return
		}
		if len(buf) == 0 {
			// Receive buffer full with a message larger than msize; drop
			// the connection rather than spin forever.
			s.logger.Printf("client: receive buffer exhausted, dropping connection")
			return
		}

		n, err := sock.recv(buf)
		if err == ErrWouldBlock {
			time.Sleep(recvYield)
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			// Peer closed the connection.
			return
		}

		s.mu.Lock()
		s.recvLen += n
		s.mu.Unlock()

		s.drain()
	}
}

// drain repeatedly peels one complete frame off the front of the receive
// buffer and dispatches it. It defers whenever fewer bytes than a full
// header (or a full frame) remain; the next recv picks the rest up.
func (s *Session) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.recvLen < ninep.HeaderSize {
			return
		}
		length := ninep.FrameLength(s.recvBuf[:s.recvLen])
		if length < ninep.HeaderSize {
			s.logger.Printf("client: dropping malformed frame (length %d)", length)
			s.recvLen = 0
			return
		}
		if uint32(s.recvLen) < length {
			return
		}
		if length > s.msizeOrDefault() {
			s.logger.Printf("client: dropping oversize frame (%d bytes)", length)
			s.recvLen = 0
			return
		}

		frame := s.recvBuf[:length]
		s.dispatch(frame)

		remaining := s.recvLen - int(length)
		copy(s.recvBuf[0:remaining], s.recvBuf[length:s.recvLen])
		s.recvLen = remaining
	}
}

func (s *Session) msizeOrDefault() uint32 {
	if s.msize == 0 {
		return uint32(len(s.recvBuf))
	}
	return s.msize
}

// dispatch decodes and handles one complete frame. Called with mu held.
func (s *Session) dispatch(frame []byte) {
	msgType := ninep.MessageType(frame[4])
	tag := ninep.Tag(frame[5])<<0 | ninep.Tag(frame[6])<<8

	switch msgType {
	case ninep.MtRversion:
		if s.state != stateVersion {
			s.logger.Printf("client: unexpected Rversion")
			return
		}
		s.handleVersion(frame)
		return
	case ninep.MtRattach:
		if s.state != stateAttach {
			s.logger.Printf("client: unexpected Rattach")
			return
		}
		s.handleAttach(frame, tag)
		return
	case ninep.MtRauth, ninep.MtRflush:
		return
	}

	if s.state != stateMounted {
		s.logger.Printf("client: response before mount, dropping")
		return
	}
	if !s.tags.valid(tag) {
		s.logger.Printf("client: response with unknown tag %d", tag)
		return
	}
	slot := s.tags.get(tag)
	if !slot.active || !slot.pending {
		s.logger.Printf("client: response for inactive tag %d", tag)
		return
	}
	if msgType != ninep.MtRerror && msgType != slot.expected {
		s.logger.Printf("client: response type mismatch on tag %d", tag)
		return
	}

	msg, err := ninep.Decode(frame)
	if err != nil {
		s.logger.Printf("client: malformed response: %v", err)
		s.failSlot(slot)
		slot.pending = false
		return
	}

	switch m := msg.(type) {
	case *ninep.Rerror:
		s.handleError(slot, m)
	case *ninep.Rwalk:
		s.handleWalk(slot, m)
	case *ninep.Ropen:
		slot.boolResult = true
	case *ninep.Rcreate:
		slot.boolResult = true
	case *ninep.Rread:
		if slot.readIsDir {
			s.handleDirRead(slot, m)
		} else {
			s.handleFileRead(slot, m)
		}
	case *ninep.Rwrite:
		slot.writeCount = int32(m.Count)
	case *ninep.Rremove:
		// The server clunks the fid as a side effect of remove, so the
		// local slot is retired here rather than via Release.
		slot.boolResult = true
		s.fids.markClunked(slot.clunkFid)
		s.fids.free(slot.clunkFid)
	case *ninep.Rstat:
		st := m.Stat
		slot.statOut = &st
	case *ninep.Rwstat:
		slot.boolResult = true
	case *ninep.Rclunk:
		s.fids.free(slot.clunkFid)
		s.tags.clear(tag)
		return
	default:
		s.logger.Printf("client: unhandled response type on tag %d", tag)
	}

	slot.pending = false
}

func (s *Session) requestVersion() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateVersion
	s.msize = 32 // minimum assumed until negotiated

	msg := &ninep.Tversion{Tag: ninep.NOTAG, MSize: uint32(len(s.sendBuf)), Version: ninep.Version}
	n, err := ninep.Encode(s.sendBuf, msg)
	if err != nil {
		s.logger.Printf("client: encode Tversion: %v", err)
		return
	}
	if s.sock != nil {
		if err := s.sock.send(s.sendBuf[:n]); err != nil {
			s.logger.Printf("client: send Tversion: %v", err)
		}
	}
}

// minAcceptableMSize is the smallest msize that guarantees room for every
// fixed-size message this client ever sends, including their worst-case
// variable-length portions (a handful of short path-component strings).
const minAcceptableMSize = ninep.HeaderSize + 256

func (s *Session) handleVersion(frame []byte) {
	msg, err := decodeVersionFrame(frame)
	if err != nil {
		s.logger.Printf("client: bad Rversion: %v", err)
		return
	}
	if msg.Tag != ninep.NOTAG {
		return
	}
	if msg.MSize > uint32(len(s.recvBuf)) {
		return
	}
	if msg.MSize < minAcceptableMSize {
		s.logger.Printf("client: server msize %d too small", msg.MSize)
		return
	}
	if msg.Version != ninep.Version {
		s.logger.Printf("client: server refused version: %s", msg.Version)
		return
	}

	s.msize = msg.MSize
	s.sendBuf = growTo(s.sendBuf, int(s.msize))
	s.recvBuf = growTo(s.recvBuf, int(s.msize))

	s.requestAttachLocked()
}

func growTo(buf []byte, n int) []byte {
	if len(buf) >= n {
		return buf
	}
	grown := make([]byte, n)
	copy(grown, buf)
	return grown
}

// decodeVersionFrame decodes just enough of an Rversion frame to validate
// it without going through the generic dispatch path, since version
// validation happens before a tag table even has meaning.
func decodeVersionFrame(frame []byte) (*ninep.Rversion, error) {
	msg, err := ninep.Decode(frame)
	if err != nil {
		return nil, err
	}
	rv, ok := msg.(*ninep.Rversion)
	if !ok {
		return nil, errors.New("client: expected Rversion")
	}
	return rv, nil
}

// requestAttachLocked sends Tattach using the reserved attach tag. Called
// with mu held, during version handling.
func (s *Session) requestAttachLocked() {
	s.state = stateAttach

	msg := &ninep.Tattach{
		Tag:   s.tags.attachTag(),
		Fid:   0,
		AFid:  ninep.NOFID,
		Uname: uname,
		Aname: "",
	}
	n, err := ninep.Encode(s.sendBuf, msg)
	if err != nil {
		s.logger.Printf("client: encode Tattach: %v", err)
		return
	}
	if s.sock != nil {
		if err := s.sock.send(s.sendBuf[:n]); err != nil {
			s.logger.Printf("client: send Tattach: %v", err)
		}
	}
}

func (s *Session) handleAttach(frame []byte, tag ninep.Tag) {
	if tag != s.tags.attachTag() {
		return
	}
	msg, err := ninep.Decode(frame)
	if err != nil {
		s.logger.Printf("client: bad Rattach: %v", err)
		return
	}
	ra, ok := msg.(*ninep.Rattach)
	if !ok {
		return
	}
	if ra.Qid.Type != ninep.QTDIR {
		s.logger.Printf("client: attach root is not a directory")
		return
	}

	s.state = stateMounted
	s.logger.Printf("client: mounted")
}

func (s *Session) handleError(slot *tagSlot, m *ninep.Rerror) {
	s.logger.Printf("client: error: %s", m.Ename)
	s.failSlot(slot)
}

// failSlot applies the per-operation failure sentinel to a slot, used for
// both Rerror responses and malformed frames. Called with mu held.
func (s *Session) failSlot(slot *tagSlot) {
	switch slot.expected {
	case ninep.MtRwalk:
		// A failed walk never bound the new fid on the server, so a local
		// free suffices; no Tclunk is owed.
		s.fids.free(slot.walkFid)
		slot.walkFid = 0
	case ninep.MtRopen, ninep.MtRcreate, ninep.MtRwstat:
		slot.boolResult = false
	case ninep.MtRremove:
		// Remove clunks the fid even when it fails.
		slot.boolResult = false
		s.fids.markClunked(slot.clunkFid)
		s.fids.free(slot.clunkFid)
	case ninep.MtRread:
		slot.readCount = -1
	case ninep.MtRwrite:
		slot.writeCount = -1
	case ninep.MtRstat:
		slot.statOut = nil
	}
}

func (s *Session) handleWalk(slot *tagSlot, m *ninep.Rwalk) {
	if len(m.Qids) != int(slot.walkNames) {
		// Partial walk: the server stopped at a missing component and
		// never bound the new fid, so a local free suffices.
		s.fids.free(slot.walkFid)
		slot.walkFid = 0
		return
	}

	// A complete walk bound the fid, so the rejection path below must
	// clunk it rather than just forget it. A zero-hop walk's target is
	// the attach root, already known to be a directory.
	isDir := true
	if len(m.Qids) > 0 {
		isDir = m.Qids[len(m.Qids)-1].Type&ninep.QTDIR != 0
	}
	if (slot.walkKind == WalkFile && isDir) || (slot.walkKind == WalkDirectory && !isDir) {
		s.clunkLocked(slot.walkFid)
		slot.walkFid = 0
	}
	// walkFid already holds the caller's fid; leaving it set is success.
}

func (s *Session) handleDirRead(slot *tagSlot, m *ninep.Rread) {
	if slot.readDir == nil {
		return
	}
	st, consumed, err := ninep.DecodeStat(m.Data)
	if err != nil {
		// Short or absent entry: treat as end-of-directory, not an error.
		slot.readCount = 0
		return
	}
	if st.Qid.Type != ninep.QTFILE && st.Qid.Type != ninep.QTDIR {
		slot.readCount = 0
		return
	}
	slot.readDir.Name = st.Name
	slot.readDir.IsDir = st.Qid.Type == ninep.QTDIR
	slot.readDir.Length = st.Length
	slot.readDir.Mtime = st.Mtime
	slot.readCount = int32(consumed)
}

func (s *Session) handleFileRead(slot *tagSlot, m *ninep.Rread) {
	if slot.readBuf == nil {
		slot.readCount = -1
		return
	}
	if int32(len(m.Data)) > slot.readCount {
		slot.readCount = -1
		return
	}
	n := copy(slot.readBuf, m.Data)
	slot.readCount = int32(n)
}
