package transfer

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind is the closed set of protocol failures shared by every transport.
type Kind uint8

const (
	InvalidMagic Kind = iota + 1
	UnknownCommand
	SecurityViolation
	NotEnoughData
	InvalidData
	WrongChecksum
	UnsupportedProtocolVersion
)

// Kinds lists every member of the taxonomy, in declaration order.
var Kinds = []Kind{
	InvalidMagic,
	UnknownCommand,
	SecurityViolation,
	NotEnoughData,
	InvalidData,
	WrongChecksum,
	UnsupportedProtocolVersion,
}

func (k Kind) String() string {
	switch k {
	case InvalidMagic:
		return "invalid magic"
	case UnknownCommand:
		return "unknown command"
	case SecurityViolation:
		return "security violation"
	case NotEnoughData:
		return "not enough data"
	case InvalidData:
		return "invalid data"
	case WrongChecksum:
		return "wrong checksum"
	case UnsupportedProtocolVersion:
		return "unsupported protocol version"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Recoverable reports whether the user can simply try again: the peer was
// reachable and well-behaved but refused or could not be understood in this
// exchange.
func (k Kind) Recoverable() bool {
	switch k {
	case SecurityViolation, UnsupportedProtocolVersion, WrongChecksum, InvalidMagic, NotEnoughData:
		return true
	default:
		return false
	}
}

// Error is the only error type that leaves the transfer core.
type Error struct {
	Kind Kind
	Op   string // e.g. "receive packet", "decode record"
	Err  error  // optional cause
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.String())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of Op and cause.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidMagic               = &Error{Kind: InvalidMagic}
	ErrUnknownCommand             = &Error{Kind: UnknownCommand}
	ErrSecurityViolation          = &Error{Kind: SecurityViolation}
	ErrNotEnoughData              = &Error{Kind: NotEnoughData}
	ErrInvalidData                = &Error{Kind: InvalidData}
	ErrWrongChecksum              = &Error{Kind: WrongChecksum}
	ErrUnsupportedProtocolVersion = &Error{Kind: UnsupportedProtocolVersion}
)

// NewError builds an *Error.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the taxonomy kind carried by err.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// Classify returns err as an *Error. Errors that already carry a kind are
// returned unchanged, truncated input becomes NotEnoughData, and anything
// else becomes fallback.
func Classify(err error, op string, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &Error{Kind: NotEnoughData, Op: op, Err: err}
	}
	return &Error{Kind: fallback, Op: op, Err: err}
}
