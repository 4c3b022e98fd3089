// Package jrecord implements the fixed-layout encode/decode for journal
// records: IV (Identify Volume), IT (Identify Tree), PA (Page Image), CP
// (Checkpoint), and the reserved transaction/read-write kinds TS/TC/TJ/RR/WR
// which the codec recognizes but does not interpret.
package jrecord

import "errors"

// Kind identifies a journal record type. Values are stable across segments.
type Kind byte

const (
	KindIV Kind = 1 // Identify Volume
	KindIT Kind = 2 // Identify Tree
	KindPA Kind = 3 // Page Image
	KindCP Kind = 4 // Checkpoint
	KindTS Kind = 5 // reserved: transaction start
	KindTC Kind = 6 // reserved: transaction commit
	KindTJ Kind = 7 // reserved: transaction rollback-to-journal
	KindRR Kind = 8 // reserved: read record
	KindWR Kind = 9 // reserved: write record
)

func (k Kind) String() string {
	switch k {
	case KindIV:
		return "IV"
	case KindIT:
		return "IT"
	case KindPA:
		return "PA"
	case KindCP:
		return "CP"
	case KindTS:
		return "TS"
	case KindTC:
		return "TC"
	case KindTJ:
		return "TJ"
	case KindRR:
		return "RR"
	case KindWR:
		return "WR"
	default:
		return "?"
	}
}

// HeaderSize is the size of the common header: Kind(1) + Length(4) + Timestamp(8).
const HeaderSize = 13

// Fixed body widths, not counting variable trailing fields.
const (
	ivFixedBody = 4 + 8 + 2  // Handle + VolumeID + PathLen
	itFixedBody = 4 + 4 + 2  // Handle + VolumeHandle + TreeNameLen
	paFixedBody = 4 + 4 + 4 + 8 // VolumeHandle + BufferSize + LeftSize + PageAddress
	cpFixedBody = 8          // WallClockMillis
)

// TransientTimestamp marks a PA record whose page image must be discarded
// by recovery rather than installed into the Page Index.
const TransientTimestamp int64 = -1

var (
	ErrShortBuffer    = errors.New("jrecord: buffer too small")
	ErrUnknownKind    = errors.New("jrecord: unknown record kind")
	ErrLengthMismatch = errors.New("jrecord: declared length does not match record kind's fixed layout")
	ErrNegativeSize   = errors.New("jrecord: negative size field")
	ErrBadSplit       = errors.New("jrecord: leftSize exceeds payload size")
	ErrPathTooLong    = errors.New("jrecord: path exceeds 65535 bytes")
	ErrTreeNameTooLong = errors.New("jrecord: tree name exceeds 65535 bytes")
)

// Header is the common prefix of every journal record.
type Header struct {
	Kind      Kind
	Length    uint32 // total record length, header included
	Timestamp int64  // logical journal timestamp (not wall-clock)
}

// IV is the body of an Identify Volume record.
type IV struct {
	Handle   uint32
	VolumeID uint64
	Path     string
}

// IT is the body of an Identify Tree record.
type IT struct {
	Handle       uint32
	VolumeHandle uint32
	TreeName     string
}

// PA is the body of a Page Image record. Payload holds the concatenation of
// the buffer's live left and right portions; the zeroed middle gap of
// BufferSize-(LeftSize+RightSize) bytes is never stored.
type PA struct {
	VolumeHandle uint32
	BufferSize   uint32
	LeftSize     int32
	PageAddress  uint64
	Payload      []byte
}

// RightSize is the length of the trailing live portion stored in Payload.
func (p PA) RightSize() int32 {
	return int32(len(p.Payload)) - p.LeftSize
}

// CP is the body of a Checkpoint record.
type CP struct {
	WallClockMillis int64
}
