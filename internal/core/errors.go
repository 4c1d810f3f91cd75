// Package core holds the error and truncation primitives shared by every
// ingestion/storage/bridge component.
package core

import "fmt"

// Kind classifies a core.Error the way callers across command, bridge, and
// cache-worker boundaries need to react to it.
type Kind string

const (
	KindInput   Kind = "input"
	KindStore   Kind = "store"
	KindNetwork Kind = "network"
	KindDecode  Kind = "decode"
	KindAuth    Kind = "auth"
)

// Error is the typed error surfaced by the core, mirroring the teacher's
// RespError{ErrCode, Err, StatusCode} shape minus the HTTP-specific field;
// the bridge handlers pick the HTTP status themselves when they call
// writeError.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind) + ": " + e.Code
}

func NewInput(code, message string) *Error {
	return &Error{Kind: KindInput, Code: code, Message: message}
}

func NewStore(operation string, err error) *Error {
	return &Error{Kind: KindStore, Code: "store_error", Message: fmt.Sprintf("%s: %v", operation, err)}
}

func NewAuth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

// NewError builds a typed Error of an arbitrary Kind, for call sites (like
// fetch_url_html) that don't fit the input/store/auth constructors above.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// TruncateError truncates an underlying error's message to at most 300
// bytes before it is persisted on an attachments.error column, per
// spec.md §7/§9.
func TruncateError(err error) string {
	return Truncate(err.Error(), 300)
}

// Truncate returns s cut to at most n bytes, a byte-safe truncation (not
// rune-safe) matching the spec's "truncated to 300 bytes" wording.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
