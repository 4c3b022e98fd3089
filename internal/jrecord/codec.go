package jrecord

import "encoding/binary"

// byteOrder is fixed once and stable across every segment ever written.
var byteOrder = binary.BigEndian

// Overhead returns the fixed minimum total record length (header included)
// for kind. IV/IT/PA carry additional variable-length trailers; CP and the
// reserved kinds have no variable part, so Overhead is their exact length.
func Overhead(k Kind) uint32 {
	switch k {
	case KindIV:
		return HeaderSize + ivFixedBody
	case KindIT:
		return HeaderSize + itFixedBody
	case KindPA:
		return HeaderSize + paFixedBody
	case KindCP:
		return HeaderSize + cpFixedBody
	case KindTS, KindTC, KindTJ, KindRR, KindWR:
		return HeaderSize
	default:
		return HeaderSize
	}
}

// MaxLength returns the worst-case total record length for kind given the
// size of its variable trailer (path bytes, tree-name bytes, or page payload).
func MaxLength(k Kind, variableLen int) uint32 {
	return Overhead(k) + uint32(variableLen)
}

// PutHeader writes the common header into dst[0:HeaderSize].
func PutHeader(dst []byte, h Header) error {
	if len(dst) < HeaderSize {
		return ErrShortBuffer
	}
	dst[0] = byte(h.Kind)
	byteOrder.PutUint32(dst[1:5], h.Length)
	byteOrder.PutUint64(dst[5:13], uint64(h.Timestamp))
	return nil
}

// DecodeHeader parses the common header from the front of src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	return Header{
		Kind:      Kind(src[0]),
		Length:    byteOrder.Uint32(src[1:5]),
		Timestamp: int64(byteOrder.Uint64(src[5:13])),
	}, nil
}

// EncodeIV writes a complete IV record (header + body) into dst and returns
// the number of bytes written.
func EncodeIV(dst []byte, ts int64, v IV) (int, error) {
	if len(v.Path) > 0xFFFF {
		return 0, ErrPathTooLong
	}
	total := int(HeaderSize + ivFixedBody + len(v.Path))
	if len(dst) < total {
		return 0, ErrShortBuffer
	}
	if err := PutHeader(dst, Header{Kind: KindIV, Length: uint32(total), Timestamp: ts}); err != nil {
		return 0, err
	}
	b := dst[HeaderSize:]
	byteOrder.PutUint32(b[0:4], v.Handle)
	byteOrder.PutUint64(b[4:12], v.VolumeID)
	byteOrder.PutUint16(b[12:14], uint16(len(v.Path)))
	copy(b[14:14+len(v.Path)], v.Path)
	return total, nil
}

// DecodeIV parses a complete IV record from the front of src.
func DecodeIV(src []byte) (Header, IV, error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return Header{}, IV{}, err
	}
	if h.Kind != KindIV {
		return Header{}, IV{}, ErrUnknownKind
	}
	if len(src) < HeaderSize+ivFixedBody {
		return Header{}, IV{}, ErrShortBuffer
	}
	b := src[HeaderSize:]
	handle := byteOrder.Uint32(b[0:4])
	volID := byteOrder.Uint64(b[4:12])
	pathLen := int(byteOrder.Uint16(b[12:14]))
	if int(h.Length) != HeaderSize+ivFixedBody+pathLen {
		return Header{}, IV{}, ErrLengthMismatch
	}
	if len(b) < 14+pathLen {
		return Header{}, IV{}, ErrShortBuffer
	}
	path := string(b[14 : 14+pathLen])
	return h, IV{Handle: handle, VolumeID: volID, Path: path}, nil
}

// EncodeIT writes a complete IT record (header + body) into dst and returns
// the number of bytes written.
func EncodeIT(dst []byte, ts int64, v IT) (int, error) {
	if len(v.TreeName) > 0xFFFF {
		return 0, ErrTreeNameTooLong
	}
	total := int(HeaderSize + itFixedBody + len(v.TreeName))
	if len(dst) < total {
		return 0, ErrShortBuffer
	}
	if err := PutHeader(dst, Header{Kind: KindIT, Length: uint32(total), Timestamp: ts}); err != nil {
		return 0, err
	}
	b := dst[HeaderSize:]
	byteOrder.PutUint32(b[0:4], v.Handle)
	byteOrder.PutUint32(b[4:8], v.VolumeHandle)
	byteOrder.PutUint16(b[8:10], uint16(len(v.TreeName)))
	copy(b[10:10+len(v.TreeName)], v.TreeName)
	return total, nil
}

// DecodeIT parses a complete IT record from the front of src.
func DecodeIT(src []byte) (Header, IT, error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return Header{}, IT{}, err
	}
	if h.Kind != KindIT {
		return Header{}, IT{}, ErrUnknownKind
	}
	if len(src) < HeaderSize+itFixedBody {
		return Header{}, IT{}, ErrShortBuffer
	}
	b := src[HeaderSize:]
	handle := byteOrder.Uint32(b[0:4])
	volHandle := byteOrder.Uint32(b[4:8])
	nameLen := int(byteOrder.Uint16(b[8:10]))
	if int(h.Length) != HeaderSize+itFixedBody+nameLen {
		return Header{}, IT{}, ErrLengthMismatch
	}
	if len(b) < 10+nameLen {
		return Header{}, IT{}, ErrShortBuffer
	}
	name := string(b[10 : 10+nameLen])
	return h, IT{Handle: handle, VolumeHandle: volHandle, TreeName: name}, nil
}

// EncodePA writes a complete PA record (header + body) into dst and returns
// the number of bytes written. Payload must already be the left||right
// concatenation; the zeroed middle gap is never written.
func EncodePA(dst []byte, ts int64, p PA) (int, error) {
	if p.LeftSize < 0 || p.LeftSize > int32(len(p.Payload)) {
		return 0, ErrBadSplit
	}
	total := int(HeaderSize + paFixedBody + len(p.Payload))
	if len(dst) < total {
		return 0, ErrShortBuffer
	}
	if err := PutHeader(dst, Header{Kind: KindPA, Length: uint32(total), Timestamp: ts}); err != nil {
		return 0, err
	}
	b := dst[HeaderSize:]
	byteOrder.PutUint32(b[0:4], p.VolumeHandle)
	byteOrder.PutUint32(b[4:8], p.BufferSize)
	byteOrder.PutUint32(b[8:12], uint32(p.LeftSize))
	byteOrder.PutUint64(b[12:20], p.PageAddress)
	copy(b[20:20+len(p.Payload)], p.Payload)
	return total, nil
}

// DecodePA parses a complete PA record from the front of src. The returned
// PA's Payload aliases src (zero-copy).
func DecodePA(src []byte) (Header, PA, error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return Header{}, PA{}, err
	}
	if h.Kind != KindPA {
		return Header{}, PA{}, ErrUnknownKind
	}
	if len(src) < HeaderSize+paFixedBody {
		return Header{}, PA{}, ErrShortBuffer
	}
	b := src[HeaderSize:]
	volHandle := byteOrder.Uint32(b[0:4])
	bufSize := byteOrder.Uint32(b[4:8])
	leftSize := int32(byteOrder.Uint32(b[8:12]))
	pageAddr := byteOrder.Uint64(b[12:20])

	payloadSize := int(h.Length) - HeaderSize - paFixedBody
	if payloadSize < 0 {
		return Header{}, PA{}, ErrLengthMismatch
	}
	if leftSize < 0 || int(leftSize) > payloadSize {
		return Header{}, PA{}, ErrBadSplit
	}
	if len(b) < 20+payloadSize {
		return Header{}, PA{}, ErrShortBuffer
	}
	payload := b[20 : 20+payloadSize]
	return h, PA{
		VolumeHandle: volHandle,
		BufferSize:   bufSize,
		LeftSize:     leftSize,
		PageAddress:  pageAddr,
		Payload:      payload,
	}, nil
}

// Reconstruct expands p's left||right payload into a full-size buffer of
// p.BufferSize bytes, zero-filling the elided middle gap.
func Reconstruct(p PA) ([]byte, error) {
	right := p.RightSize()
	if right < 0 {
		return nil, ErrBadSplit
	}
	buf := make([]byte, p.BufferSize)
	if err := ReconstructInto(buf, p); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReconstructInto is like Reconstruct but writes into a caller-supplied
// buffer of exactly p.BufferSize bytes.
func ReconstructInto(dst []byte, p PA) error {
	if uint32(len(dst)) != p.BufferSize {
		return ErrLengthMismatch
	}
	right := p.RightSize()
	if right < 0 || p.LeftSize+right > int32(p.BufferSize) {
		return ErrBadSplit
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst[0:p.LeftSize], p.Payload[0:p.LeftSize])
	if right > 0 {
		copy(dst[int32(p.BufferSize)-right:], p.Payload[p.LeftSize:])
	}
	return nil
}

// EncodeCP writes a complete CP record (header + body) into dst and returns
// the number of bytes written.
func EncodeCP(dst []byte, ts int64, c CP) (int, error) {
	total := int(Overhead(KindCP))
	if len(dst) < total {
		return 0, ErrShortBuffer
	}
	if err := PutHeader(dst, Header{Kind: KindCP, Length: uint32(total), Timestamp: ts}); err != nil {
		return 0, err
	}
	b := dst[HeaderSize:]
	byteOrder.PutUint64(b[0:8], uint64(c.WallClockMillis))
	return total, nil
}

// DecodeCP parses a complete CP record from the front of src.
func DecodeCP(src []byte) (Header, CP, error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return Header{}, CP{}, err
	}
	if h.Kind != KindCP {
		return Header{}, CP{}, ErrUnknownKind
	}
	if h.Length != Overhead(KindCP) {
		return Header{}, CP{}, ErrLengthMismatch
	}
	if len(src) < int(h.Length) {
		return Header{}, CP{}, ErrShortBuffer
	}
	b := src[HeaderSize:]
	millis := int64(byteOrder.Uint64(b[0:8]))
	return h, CP{WallClockMillis: millis}, nil
}
