// Package ninep implements the wire encoding for the subset of 9P2000 used
// by the flight-control filesystem client: message framing, the fixed
// message types, and the Qid/Stat records that ride inside them.
package ninep

// HeaderSize is the length of the fixed message header: a little-endian
// u32 total length, a u8 message type and a little-endian u16 tag.
const HeaderSize = 4 + 1 + 2

// QidSize is the wire size of a Qid: type (1), version (4), path (8).
const QidSize = 1 + 4 + 8

// Version is the only protocol version string this client ever offers.
const Version = "9P2000"

// UnknownVersion is what a server sends back when it refuses to speak
// Version.
const UnknownVersion = "unknown"

// MessageType identifies the wire type of a 9P2000 message.
type MessageType uint8

const (
	MtTversion MessageType = 100
	MtRversion MessageType = 101
	MtTauth    MessageType = 102
	MtRauth    MessageType = 103
	MtTattach  MessageType = 104
	MtRattach  MessageType = 105
	MtRerror   MessageType = 107
	MtTflush   MessageType = 108
	MtRflush   MessageType = 109
	MtTwalk    MessageType = 110
	MtRwalk    MessageType = 111
	MtTopen    MessageType = 112
	MtRopen    MessageType = 113
	MtTcreate  MessageType = 114
	MtRcreate  MessageType = 115
	MtTread    MessageType = 116
	MtRread    MessageType = 117
	MtTwrite   MessageType = 118
	MtRwrite   MessageType = 119
	MtTclunk   MessageType = 120
	MtRclunk   MessageType = 121
	MtTremove  MessageType = 122
	MtRremove  MessageType = 123
	MtTstat    MessageType = 124
	MtRstat    MessageType = 125
	MtTwstat   MessageType = 126
	MtRwstat   MessageType = 127
)

// Tag multiplexes concurrent in-flight requests on one connection.
type Tag uint16

// NOTAG is reserved for the version handshake, which precedes tag
// allocation.
const NOTAG Tag = 0xFFFF

// Fid is a client-allocated handle naming a file or directory on the
// server.
type Fid uint32

// NOFID marks the absence of a fid, e.g. when no authentication fid is in
// use.
const NOFID Fid = 0xFFFFFFFF

// OpenMode is the access-mode byte sent in Topen/Tcreate.
type OpenMode uint8

const (
	OREAD  OpenMode = 0
	OWRITE OpenMode = 1
	ORDWR  OpenMode = 2
	OEXEC  OpenMode = 3
	OTRUNC OpenMode = 0x10
)

// FileMode is the permission/type word used in Tcreate and stat records.
type FileMode uint32

const (
	DMDIR    FileMode = 0x80000000
	DMAPPEND FileMode = 0x40000000
	DMEXCL   FileMode = 0x20000000
	DMTMP    FileMode = 0x04000000
)

// QidType is the type byte embedded in a Qid; only QTDIR and QTFILE are
// consumed by this client.
type QidType uint8

const (
	QTFILE QidType = 0x00
	QTDIR  QidType = 0x80
)

// NoModify is the all-ones sentinel used in Twstat numeric fields to mean
// "leave this field unchanged".
const (
	NoModifyU32 uint32 = 0xFFFFFFFF
	NoModifyU64 uint64 = 0xFFFFFFFFFFFFFFFF
	NoModifyU16 uint16 = 0xFFFF
)
