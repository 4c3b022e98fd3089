package journal

import "errors"

// Kind classifies a journal error the way spec.md's abstract error kinds do.
type Kind int

const (
	// KindCorrupt marks a well-formed record structure violated, an
	// unresolved handle, or a page/size mismatch.
	KindCorrupt Kind = iota
	// KindIO marks an underlying filesystem failure.
	KindIO
	// KindIllegalState marks an operation invoked before recovery
	// completed or after close.
	KindIllegalState
	// KindJournalNotClosed marks recovery having encountered an unknown
	// record type or a truncated tail.
	KindJournalNotClosed
)

func (k Kind) String() string {
	switch k {
	case KindCorrupt:
		return "corrupt"
	case KindIO:
		return "io"
	case KindIllegalState:
		return "illegal_state"
	case KindJournalNotClosed:
		return "journal_not_closed"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a journal-level Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func illegalState(msg string) error {
	return &Error{Kind: KindIllegalState, Err: errors.New(msg)}
}

func corrupt(msg string) error {
	return &Error{Kind: KindCorrupt, Err: errors.New(msg)}
}

func ioErr(err error) error {
	return &Error{Kind: KindIO, Err: err}
}

var (
	// ErrNotRecovered is returned by mutators called before Recover.
	ErrNotRecovered = illegalState("journal: recover() has not completed")
	// ErrClosed is returned by any operation called after Close.
	ErrClosed = illegalState("journal: manager is closed")
	// ErrAlreadyRecovered is returned by a second call to Recover.
	ErrAlreadyRecovered = illegalState("journal: recover() already completed")
	// ErrTooManyRollovers guards against a misconfiguration where a single
	// handle-plus-record pair cannot fit in one write window.
	ErrTooManyRollovers = illegalState("journal: record did not fit after repeated rollover")
)

// NotClosedError describes an unknown record type or a truncated tail found
// by recovery, mirroring the original JournalManager's
// JournalNotClosedException. Recovery does not return it: it still
// succeeds, and the location is reported by Manager.DirtyRecoveryFileAddress.
type NotClosedError struct {
	Segment   string
	Offset    int64
	Timestamp int64
}

func (e *NotClosedError) Error() string {
	return "journal: not cleanly closed, first bad record at " + e.Segment
}
