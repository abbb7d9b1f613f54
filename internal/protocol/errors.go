package protocol

import "fmt"

// ErrorKind classifies failures surfaced across the command boundary.
type ErrorKind int

const (
	// KindSerialization covers argument encoding and result decoding failures.
	KindSerialization ErrorKind = iota
	// KindExecute covers dispatch rejection, remote-thrown failures, and timeouts.
	KindExecute
	// KindMock covers mock registry failures. Should not occur in single-process
	// operation but must be representable.
	KindMock
)

func (k ErrorKind) String() string {
	switch k {
	case KindSerialization:
		return "serialization"
	case KindExecute:
		return "execute"
	case KindMock:
		return "mock"
	default:
		return "unknown"
	}
}

// Error carries a classified failure. All errors flatten to a caller-visible
// string at the command boundary; nothing is swallowed except late completions.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// SerializationError builds a KindSerialization error.
func SerializationError(format string, args ...any) *Error {
	return &Error{Kind: KindSerialization, Msg: fmt.Sprintf(format, args...)}
}

// ExecuteError builds a KindExecute error.
func ExecuteError(format string, args ...any) *Error {
	return &Error{Kind: KindExecute, Msg: fmt.Sprintf(format, args...)}
}

// MockError builds a KindMock error.
func MockError(format string, args ...any) *Error {
	return &Error{Kind: KindMock, Msg: fmt.Sprintf(format, args...)}
}
