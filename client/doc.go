// Package client implements the stateful half of a 9P2000 client: the
// session state machine, the tag and fid tables, the non-blocking I/O
// worker, and the request/poll/collect API the vfs package builds its
// synchronous facade on top of.
//
// A Session is driven by exactly one worker goroutine (started by Start)
// that owns the socket and the receive buffer. Every other method may be
// called from any number of foreground goroutines; they serialize on the
// session mutex the same way the worker does when it writes a slot's
// result payload.
package client
