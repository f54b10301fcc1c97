package ninep

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf := make([]byte, 8192)

	tests := []struct {
		name string
		msg  Message
	}{
		{"Rversion", &Rversion{Tag: NOTAG, MSize: 8192, Version: Version}},
		{"Rattach", &Rattach{Tag: 7, Qid: Qid{Type: QTDIR, Version: 1, Path: 2}}},
		{"Rwalk", &Rwalk{Tag: 3, Qids: []Qid{{Type: QTDIR}, {Type: QTFILE}}}},
		{"Rwalk-empty", &Rwalk{Tag: 3, Qids: nil}},
		{"Ropen", &Ropen{Tag: 3, Qid: Qid{Type: QTFILE}, IOUnit: 0}},
		{"Rcreate", &Rcreate{Tag: 3, Qid: Qid{Type: QTDIR}, IOUnit: 0}},
		{"Rread", &Rread{Tag: 3, Data: []byte("hello world")}},
		{"Rread-empty", &Rread{Tag: 3, Data: nil}},
		{"Rwrite", &Rwrite{Tag: 3, Count: 42}},
		{"Rclunk", &Rclunk{Tag: 3}},
		{"Rremove", &Rremove{Tag: 3}},
		{"Rstat", &Rstat{Tag: 3, Stat: Stat{Qid: Qid{Type: QTFILE}, Length: 99, Name: "log.bin", UID: "u", GID: "g", MUID: "m"}}},
		{"Rwstat", &Rwstat{Tag: 3}},
		{"Rerror", &Rerror{Tag: 3, Ename: "no such file"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Encode(buf, tc.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			frame := buf[:n]
			if got := FrameLength(frame); got != uint32(n) {
				t.Fatalf("length field = %d, want %d", got, n)
			}

			decoded, err := Decode(frame)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.GetTag() != tc.msg.GetTag() {
				t.Fatalf("tag mismatch: got %v want %v", decoded.GetTag(), tc.msg.GetTag())
			}
			if decoded.Type() != tc.msg.Type() {
				t.Fatalf("type mismatch: got %v want %v", decoded.Type(), tc.msg.Type())
			}
		})
	}
}

func TestEncodeTversionMatchesHandshakeLiteral(t *testing.T) {
	buf := make([]byte, 64)
	n, err := Encode(buf, &Tversion{Tag: NOTAG, MSize: 16384, Version: Version})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf[4] != byte(MtTversion) {
		t.Fatalf("type byte = %d, want %d", buf[4], MtTversion)
	}
	if FrameLength(buf[:n]) != uint32(n) {
		t.Fatalf("length field mismatch")
	}
}

func TestEncodeStringOverflowAbortsCleanly(t *testing.T) {
	buf := make([]byte, HeaderSize+4+2+3)
	before := append([]byte(nil), buf...)

	_, err := Encode(buf, &Tattach{Tag: 1, Fid: 0, AFid: NOFID, Uname: "ArduPilot", Aname: ""})
	if err != ErrMessageTooLarge {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if !bytes.Equal(buf, before) {
		t.Fatalf("buffer was mutated on a failed encode")
	}
}

func TestDecodeShortFrameDefers(t *testing.T) {
	buf := make([]byte, 8192)
	n, err := Encode(buf, &Rattach{Tag: 1, Qid: Qid{Type: QTDIR}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// A caller that has fewer bytes than the frame length must not attempt
	// to decode; Decode itself only promises correctness for a buffer that
	// is exactly one frame.
	_, err = Decode(buf[:n-1])
	if err == nil {
		t.Fatalf("expected decode of a truncated frame to fail")
	}
}

func TestRopenExactLengthRequired(t *testing.T) {
	buf := make([]byte, 8192)
	n, err := Encode(buf, &Ropen{Tag: 1, Qid: Qid{Type: QTFILE}, IOUnit: 0})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Truncating the body by one byte (while fixing up the length field to
	// match) must be rejected rather than silently accepted.
	frame := append([]byte(nil), buf[:n-1]...)
	frame[0] = byte(len(frame))
	if _, err := Decode(frame); err == nil {
		t.Fatalf("expected short Ropen body to be rejected")
	}
}

func TestRauthAndRflushAreDiscarded(t *testing.T) {
	buf := make([]byte, 64)
	n, err := Encode(buf, &Tversion{Tag: NOTAG, MSize: 64, Version: Version})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame := buf[:n]
	frame[4] = byte(MtRauth)

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode Rauth: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected Rauth to decode to nil, got %#v", msg)
	}

	frame[4] = byte(MtRflush)
	msg, err = Decode(frame)
	if err != nil {
		t.Fatalf("decode Rflush: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected Rflush to decode to nil, got %#v", msg)
	}
}
