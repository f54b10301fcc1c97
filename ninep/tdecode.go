package ninep

import "encoding/binary"

// Decoders for the T-message side of the protocol. The client never
// consumes these (a T-message arriving at the client is a protocol
// violation), but the file server and the protocol tests do.

func decodeTversion(tag Tag, buf []byte) (*Tversion, error) {
	if len(buf) < 4 {
		return nil, ErrShortBuffer
	}
	v, _, err := getString(buf, 4, len(buf))
	if err != nil {
		return nil, err
	}
	return &Tversion{Tag: tag, MSize: binary.LittleEndian.Uint32(buf[0:4]), Version: v}, nil
}

func decodeTattach(tag Tag, buf []byte) (*Tattach, error) {
	if len(buf) < 8 {
		return nil, ErrShortBuffer
	}
	uname, off, err := getString(buf, 8, len(buf))
	if err != nil {
		return nil, err
	}
	aname, _, err := getString(buf, off, len(buf))
	if err != nil {
		return nil, err
	}
	return &Tattach{
		Tag:   tag,
		Fid:   Fid(binary.LittleEndian.Uint32(buf[0:4])),
		AFid:  Fid(binary.LittleEndian.Uint32(buf[4:8])),
		Uname: uname,
		Aname: aname,
	}, nil
}

func decodeTwalk(tag Tag, buf []byte) (*Twalk, error) {
	if len(buf) < 10 {
		return nil, ErrShortBuffer
	}
	n := int(binary.LittleEndian.Uint16(buf[8:10]))
	names := make([]string, 0, n)
	off := 10
	for i := 0; i < n; i++ {
		var name string
		var err error
		name, off, err = getString(buf, off, len(buf))
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return &Twalk{
		Tag:    tag,
		Fid:    Fid(binary.LittleEndian.Uint32(buf[0:4])),
		NewFid: Fid(binary.LittleEndian.Uint32(buf[4:8])),
		Names:  names,
	}, nil
}

func decodeTopen(tag Tag, buf []byte) (*Topen, error) {
	if len(buf) != 5 {
		return nil, ErrShortBuffer
	}
	return &Topen{
		Tag:  tag,
		Fid:  Fid(binary.LittleEndian.Uint32(buf[0:4])),
		Mode: OpenMode(buf[4]),
	}, nil
}

func decodeTcreate(tag Tag, buf []byte) (*Tcreate, error) {
	if len(buf) < 4+2+4+1 {
		return nil, ErrShortBuffer
	}
	name, off, err := getString(buf, 4, len(buf))
	if err != nil {
		return nil, err
	}
	if off+5 > len(buf) {
		return nil, ErrShortBuffer
	}
	return &Tcreate{
		Tag:  tag,
		Fid:  Fid(binary.LittleEndian.Uint32(buf[0:4])),
		Name: name,
		Perm: FileMode(binary.LittleEndian.Uint32(buf[off : off+4])),
		Mode: OpenMode(buf[off+4]),
	}, nil
}

func decodeTread(tag Tag, buf []byte) (*Tread, error) {
	if len(buf) != 16 {
		return nil, ErrShortBuffer
	}
	return &Tread{
		Tag:    tag,
		Fid:    Fid(binary.LittleEndian.Uint32(buf[0:4])),
		Offset: binary.LittleEndian.Uint64(buf[4:12]),
		Count:  binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

func decodeTwrite(tag Tag, buf []byte) (*Twrite, error) {
	if len(buf) < 16 {
		return nil, ErrShortBuffer
	}
	count := binary.LittleEndian.Uint32(buf[12:16])
	if uint64(16+count) > uint64(len(buf)) {
		return nil, ErrShortBuffer
	}
	return &Twrite{
		Tag:    tag,
		Fid:    Fid(binary.LittleEndian.Uint32(buf[0:4])),
		Offset: binary.LittleEndian.Uint64(buf[4:12]),
		Data:   buf[16 : 16+count],
	}, nil
}

func decodeTclunk(tag Tag, buf []byte) (*Tclunk, error) {
	if len(buf) != 4 {
		return nil, ErrShortBuffer
	}
	return &Tclunk{Tag: tag, Fid: Fid(binary.LittleEndian.Uint32(buf[0:4]))}, nil
}

func decodeTremove(tag Tag, buf []byte) (*Tremove, error) {
	if len(buf) != 4 {
		return nil, ErrShortBuffer
	}
	return &Tremove{Tag: tag, Fid: Fid(binary.LittleEndian.Uint32(buf[0:4]))}, nil
}

func decodeTstat(tag Tag, buf []byte) (*Tstat, error) {
	if len(buf) != 4 {
		return nil, ErrShortBuffer
	}
	return &Tstat{Tag: tag, Fid: Fid(binary.LittleEndian.Uint32(buf[0:4]))}, nil
}

func decodeTwstat(tag Tag, buf []byte) (*Twstat, error) {
	if len(buf) < 6 {
		return nil, ErrShortBuffer
	}
	outer := int(binary.LittleEndian.Uint16(buf[4:6]))
	if 6+outer > len(buf) {
		return nil, ErrShortBuffer
	}
	st, _, err := decodeStat(buf[6 : 6+outer])
	if err != nil {
		return nil, err
	}
	return &Twstat{Tag: tag, Fid: Fid(binary.LittleEndian.Uint32(buf[0:4])), Stat: st}, nil
}
