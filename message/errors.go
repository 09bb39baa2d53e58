package message

import "fmt"

// Reserved error codes, see http://www.jsonrpc.org/specification#error_object.
const (
	CodeParseError     = -32700 // Invalid JSON was received.
	CodeInvalidRequest = -32600 // The JSON sent is not a valid Request object.
	CodeMethodNotFound = -32601 // The method does not exist / is not available.
	CodeInvalidParams  = -32602 // Invalid method parameter(s).
	CodeInternalError  = -32603 // Internal JSON-RPC error.
)

// Error is a JSON-RPC error object. It is used by value so that catalog
// entries cannot be mutated through an envelope that carries them.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Catalog of protocol errors.
var (
	ErrParse          = Error{Code: CodeParseError, Message: "Parse error"}
	ErrInvalidRequest = Error{Code: CodeInvalidRequest, Message: "Invalid request"}
	ErrMethodNotFound = Error{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrInvalidParams  = Error{Code: CodeInvalidParams, Message: "Invalid params"}
	ErrInternal       = Error{Code: CodeInternalError, Message: "Internal error"}
)

func (e Error) Error() string {
	return fmt.Sprintf("jsonrpc: %s (code %d)", e.Message, e.Code)
}

// Is reports whether target is an Error with the same code, so that
// errors.Is(err, message.ErrMethodNotFound) works on received errors.
func (e Error) Is(target error) bool {
	switch t := target.(type) {
	case Error:
		return t.Code == e.Code
	case *Error:
		return t != nil && t.Code == e.Code
	}
	return false
}

// WithMessage returns a copy of e carrying msg.
func (e Error) WithMessage(msg string) Error {
	e.Message = msg
	return e
}

// WithData returns a copy of e carrying data.
func (e Error) WithData(data any) Error {
	e.Data = data
	return e
}
