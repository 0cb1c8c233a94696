package core

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors. The set is closed; the numeric codes of
// the C surface are produced only via Number at the external boundary.
type Kind int

const (
	KindError Kind = iota // generic
	KindInternal
	KindBusy
	KindLocked
	KindNoMem
	KindReadOnly
	KindInterrupt
	KindIO
	KindCorrupt
	KindNotFound
	KindFull
	KindCantOpen
	KindSchema
	KindTooBig
	KindConstraint
	KindMismatch
	KindUsage
	KindAuth
	KindRange
	KindNotADB
	KindSyntax
	KindUnsupported
)

// Number maps a kind to its numeric code at the C surface.
func (k Kind) Number() int {
	switch k {
	case KindInternal:
		return 2
	case KindBusy:
		return 5
	case KindLocked:
		return 6
	case KindNoMem:
		return 7
	case KindReadOnly:
		return 8
	case KindInterrupt:
		return 9
	case KindIO:
		return 10
	case KindCorrupt:
		return 11
	case KindNotFound:
		return 12
	case KindFull:
		return 13
	case KindCantOpen:
		return 14
	case KindSchema:
		return 17
	case KindTooBig:
		return 18
	case KindConstraint:
		return 19
	case KindMismatch:
		return 20
	case KindUsage:
		return 21
	case KindAuth:
		return 23
	case KindRange:
		return 25
	case KindNotADB:
		return 26
	default:
		// generic, syntax and unsupported all surface as ZQLITE_ERROR
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindBusy:
		return "busy"
	case KindLocked:
		return "locked"
	case KindNoMem:
		return "nomem"
	case KindReadOnly:
		return "readonly"
	case KindInterrupt:
		return "interrupted"
	case KindIO:
		return "io"
	case KindCorrupt:
		return "corrupt"
	case KindNotFound:
		return "notfound"
	case KindFull:
		return "full"
	case KindCantOpen:
		return "cantopen"
	case KindSchema:
		return "schema"
	case KindTooBig:
		return "toobig"
	case KindConstraint:
		return "constraint"
	case KindMismatch:
		return "mismatch"
	case KindUsage:
		return "misuse"
	case KindAuth:
		return "auth"
	case KindRange:
		return "range"
	case KindNotADB:
		return "notadb"
	case KindSyntax:
		return "syntax"
	case KindUnsupported:
		return "unsupported"
	default:
		return "error"
	}
}

// Retryable reports whether the condition is transient and safe to retry.
func (k Kind) Retryable() bool {
	return k == KindBusy || k == KindLocked
}

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain, defaulting to KindError.
func KindOf(err error) Kind {
	if err == nil {
		return Kind(-1)
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
