package jsegment

import "errors"

var (
	ErrInvalidConfig  = errors.New("jsegment: invalid configuration")
	ErrRecordTooLarge = errors.New("jsegment: record exceeds write buffer size")
	ErrSegmentFull    = errors.New("jsegment: segment cannot accommodate another window")
	ErrNotFound       = errors.New("jsegment: segment file not found")
)
