// Package coreerr defines the error taxonomy shared by every core codec.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies a structural failure raised by the core. CRC and
// checksum mismatches are never represented here -- they live as
// Sector/SectorData flags so callers can see the uncertainty instead
// of losing the sector.
type Kind int

const (
	// FormatMismatch is a reader expectation failing: bad signature,
	// inconsistent geometry, unsupported variant.
	FormatMismatch Kind = iota
	// ShortInput is an input ending mid-structure.
	ShortInput
	// InvalidValue is a parsed field out of range.
	InvalidValue
	// Unsupported is a recognised but deliberately unhandled construct.
	Unsupported
	// OversizedTrack is a builder unable to fit requested sectors into
	// the medium's track capacity.
	OversizedTrack
	// DecodeFailure is an address mark found but CRC/checksum still
	// fails after all candidates were tried.
	DecodeFailure
	// Abort is a user-requested cancellation.
	Abort
)

func (k Kind) String() string {
	switch k {
	case FormatMismatch:
		return "format mismatch"
	case ShortInput:
		return "short input"
	case InvalidValue:
		return "invalid value"
	case Unsupported:
		return "unsupported"
	case OversizedTrack:
		return "oversized track"
	case DecodeFailure:
		return "decode failure"
	case Abort:
		return "abort"
	default:
		return "unknown error kind"
	}
}

// Error is a core error carrying a Kind so callers can classify it
// with errors.Is / Kind().
type Error struct {
	K   Kind
	msg string
	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.K, e.msg, e.err)
	}
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.K, e.msg)
	}
	return e.K.String()
}

func (e *Error) Unwrap() error { return e.err }

// sentinels let callers use errors.Is(err, coreerr.ErrShortInput) etc.
var (
	ErrFormatMismatch = &Error{K: FormatMismatch}
	ErrShortInput     = &Error{K: ShortInput}
	ErrInvalidValue   = &Error{K: InvalidValue}
	ErrUnsupported    = &Error{K: Unsupported}
	ErrOversized      = &Error{K: OversizedTrack}
	ErrDecodeFailure  = &Error{K: DecodeFailure}
	ErrAbort          = &Error{K: Abort}
)

func sentinel(k Kind) *Error {
	switch k {
	case FormatMismatch:
		return ErrFormatMismatch
	case ShortInput:
		return ErrShortInput
	case InvalidValue:
		return ErrInvalidValue
	case Unsupported:
		return ErrUnsupported
	case OversizedTrack:
		return ErrOversized
	case DecodeFailure:
		return ErrDecodeFailure
	case Abort:
		return ErrAbort
	default:
		return &Error{K: k}
	}
}

// Is implements errors.Is support against the package sentinels: any
// *Error with the same Kind matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.K == t.K
}

// New creates an error of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) error {
	return &Error{K: k, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying error.
func Wrap(k Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{K: k, err: err}
}

// Wrapf attaches a Kind to an underlying error with additional context.
func Wrapf(k Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{K: k, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf reports the Kind of err if it (or something it wraps) is a
// *Error, and ok=true. Otherwise ok is false.
func KindOf(err error) (k Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.K, true
	}
	return 0, false
}

// Is reports whether err is (or wraps) a core error of kind k.
func Is(err error, k Kind) bool {
	return errors.Is(err, sentinel(k))
}
