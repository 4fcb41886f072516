package query

import "fmt"

// ErrorKind classifies compiler failures. Every kind is caused by malformed
// input and is safe to report back to the caller verbatim.
type ErrorKind int

const (
	KindInvalidPath ErrorKind = iota + 1
	KindInvalidCommand
	KindRawQueryRejected
	KindMissingTarget
	KindMissingBody
	KindInvalidBody
	KindInvalidFilter
	KindUnsupportedMethod
)

var kindNames = map[ErrorKind]string{
	KindInvalidPath:       "invalid_path",
	KindInvalidCommand:    "invalid_command",
	KindRawQueryRejected:  "raw_query_rejected",
	KindMissingTarget:     "missing_target",
	KindMissingBody:       "missing_body",
	KindInvalidBody:       "invalid_body",
	KindInvalidFilter:     "invalid_filter",
	KindUnsupportedMethod: "unsupported_method",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every compiler stage.
type Error struct {
	Kind    ErrorKind
	Message string
	Path    string // offending request path, if known
	Query   string // offending SQL or raw query text, if any
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors of the same kind, so errors.Is(err, ErrInvalidBody)
// holds for any invalid-body failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidPath       = &Error{Kind: KindInvalidPath, Message: "Invalid path."}
	ErrInvalidCommand    = &Error{Kind: KindInvalidCommand, Message: "Invalid command."}
	ErrRawQueryRejected  = &Error{Kind: KindRawQueryRejected, Message: "Raw query rejected."}
	ErrMissingTarget     = &Error{Kind: KindMissingTarget, Message: "Database or command is required."}
	ErrMissingBody       = &Error{Kind: KindMissingBody, Message: "Body required."}
	ErrInvalidBody       = &Error{Kind: KindInvalidBody, Message: "Invalid body."}
	ErrInvalidFilter     = &Error{Kind: KindInvalidFilter, Message: "Invalid filter."}
	ErrUnsupportedMethod = &Error{Kind: KindUnsupportedMethod, Message: "Method not allowed."}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
