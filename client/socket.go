package client

import (
	"errors"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by socket.recv when there is no data currently
// available to read; the caller is expected to yield briefly and retry.
var ErrWouldBlock = errors.New("client: recv would block")

// connectBackoff is how long the reconnect loop waits between failed TCP
// connection attempts.
const connectBackoff = 100 * time.Millisecond

// recvYield is how long the worker sleeps after a non-blocking recv finds
// nothing to read, before trying again.
const recvYield = 100 * time.Microsecond

// socket wraps a TCP connection, providing the blocking connect/send and
// non-blocking recv semantics the worker loop needs. Only *net.TCPConn is
// supported, since raw non-blocking recv requires direct fd access.
type socket struct {
	conn net.Conn
	raw  syscall.RawConn
}

// dialSocket blocks until either the connection succeeds or dialTimeout
// elapses, then flips the underlying fd into non-blocking mode so that
// subsequent recv calls never block the worker goroutine.
func dialSocket(addr string, dialTimeout time.Duration) (*socket, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, err
	}

	tc, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, errors.New("client: not a TCP connection")
	}

	raw, err := tc.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, err
	}

	var setErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		setErr = unix.SetNonblock(int(fd), true)
	})
	if ctrlErr != nil {
		conn.Close()
		return nil, ctrlErr
	}
	if setErr != nil {
		conn.Close()
		return nil, setErr
	}

	return &socket{conn: tc, raw: raw}, nil
}

// send blocks until all of buf has been written.
func (s *socket) send(buf []byte) error {
	_, err := s.conn.Write(buf)
	return err
}

// recv attempts a single non-blocking read into buf. It returns
// ErrWouldBlock if no data is currently available, rather than waiting for
// some to arrive.
func (s *socket) recv(buf []byte) (int, error) {
	var n int
	var opErr error

	err := s.raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), buf)
		// Always report "done": this is a single-attempt, non-blocking
		// read, not a retry-until-ready read.
		return true
	})
	if err != nil {
		return 0, err
	}
	if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	if opErr != nil {
		return 0, opErr
	}
	return n, nil
}

func (s *socket) close() error {
	return s.conn.Close()
}
