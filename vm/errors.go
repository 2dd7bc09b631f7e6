package vm

import (
	"errors"
	"fmt"
)

// Code is a VM result code. The numbering is fixed; class tooling and
// native packages compare against the raw values.
type Code uint8

const (
	CodeNone              Code = 0
	CodeFalse             Code = 1
	CodeInvalidOpcode     Code = 2
	CodeMethodNonexistent Code = 3
	CodeDependencyMissing Code = 4
	CodeUnsupportedOpcode Code = 5
	CodeMalformed         Code = 6

	CodeStackSpace          Code = 16
	CodeMethodFlagsMismatch Code = 17
	CodeDivByZero           Code = 18
	CodeInvalidCast         Code = 19
	CodeOutOfMemory         Code = 20
	CodeArrayIndexOOB       Code = 21
	CodeFieldNotFound       Code = 22
	CodeNullPointer         Code = 23
	CodeMonitorState        Code = 24
	CodeNegArrSize          Code = 25

	CodeRetryLater    Code = 50
	CodeUserException Code = 99
	CodeInternal      Code = 100
)

// ---------------------------------------------------------------------------
// Sentinels
// ---------------------------------------------------------------------------

// Each sentinel is the Code itself, so errors.Is matches through any amount
// of fmt.Errorf("...: %w") wrapping.
var (
	ErrFalse               error = CodeFalse
	ErrInvalidOpcode       error = CodeInvalidOpcode
	ErrMethodNonexistent   error = CodeMethodNonexistent
	ErrDependencyMissing   error = CodeDependencyMissing
	ErrUnsupportedOpcode   error = CodeUnsupportedOpcode
	ErrMalformed           error = CodeMalformed
	ErrStackSpace          error = CodeStackSpace
	ErrMethodFlagsMismatch error = CodeMethodFlagsMismatch
	ErrDivByZero           error = CodeDivByZero
	ErrInvalidCast         error = CodeInvalidCast
	ErrOutOfMemory         error = CodeOutOfMemory
	ErrArrayIndexOOB       error = CodeArrayIndexOOB
	ErrFieldNotFound       error = CodeFieldNotFound
	ErrNullPointer         error = CodeNullPointer
	ErrMonitorState        error = CodeMonitorState
	ErrNegArrSize          error = CodeNegArrSize
	ErrRetryLater          error = CodeRetryLater
	ErrUserException       error = CodeUserException
	ErrInternal            error = CodeInternal
)

var (
	ErrDuplicateClass = errors.New("class already loaded")
	ErrNoHeap         = errors.New("vm: no heap configured")
)

var codeNames = map[Code]string{
	CodeNone:                "none",
	CodeFalse:               "false",
	CodeInvalidOpcode:       "invalid opcode",
	CodeMethodNonexistent:   "method nonexistent",
	CodeDependencyMissing:   "dependency missing",
	CodeUnsupportedOpcode:   "unsupported opcode",
	CodeMalformed:           "malformed class",
	CodeStackSpace:          "out of stack space",
	CodeMethodFlagsMismatch: "method flags mismatch",
	CodeDivByZero:           "division by zero",
	CodeInvalidCast:         "invalid cast",
	CodeOutOfMemory:         "out of memory",
	CodeArrayIndexOOB:       "array index out of bounds",
	CodeFieldNotFound:       "field not found",
	CodeNullPointer:         "null pointer",
	CodeMonitorState:        "illegal monitor state",
	CodeNegArrSize:          "negative array size",
	CodeRetryLater:          "retry later",
	CodeUserException:       "unhandled exception",
	CodeInternal:            "internal error",
}

func (c Code) Error() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code %d", uint8(c))
}

// Disposition groups codes by how the scheduler treats them.
type Disposition uint8

const (
	// Signal results are not errors: a boolean false, or an instruction
	// that must be re-attempted later.
	Signal Disposition = iota
	// Recoverable results are handled by the caller, e.g. a class load that
	// is retried once its dependencies are registered.
	Recoverable
	// ThreadFatal results terminate the offending VM thread only.
	ThreadFatal
	// HostFatal results mean the VM itself is inconsistent.
	HostFatal
)

func (d Disposition) String() string {
	switch d {
	case Signal:
		return "signal"
	case Recoverable:
		return "recoverable"
	case ThreadFatal:
		return "thread-fatal"
	}
	return "host-fatal"
}

// Disposition classifies the code.
func (c Code) Disposition() Disposition {
	switch c {
	case CodeNone, CodeFalse, CodeRetryLater:
		return Signal
	case CodeDependencyMissing:
		return Recoverable
	case CodeInternal, CodeMalformed:
		return HostFatal
	}
	return ThreadFatal
}

// CodeOf extracts the VM code carried by err. Errors that carry no code
// report CodeInternal; nil reports CodeNone.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	var te *ThreadError
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeInternal
}

// ThreadError reports a VM thread that was torn down by a fatal result.
type ThreadError struct {
	ThreadID uint32
	Code     Code
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("thread %d: %s", e.ThreadID, e.Code)
}

func (e *ThreadError) Unwrap() error { return e.Code }
