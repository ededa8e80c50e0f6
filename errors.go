package upload

import (
	"github.com/pkg/errors"
)

// ErrorCode is carried in redirect URLs so the front-end can render the
// right message. Values are design-stable: the web front-end consumes them.
type ErrorCode int

// Error codes exposed in redirect URLs, per the upstream front-end contract.
const (
	ErrorFilename ErrorCode = 0
	ErrorExists   ErrorCode = 1
	ErrorNotExist ErrorCode = 2
	ErrorSize     ErrorCode = 3
	ErrorQuota    ErrorCode = 4
	ErrorRecv     ErrorCode = 5
	ErrorInternal ErrorCode = 6
)

// badRequestError signals malformed input: bad URL, missing header,
// broken multipart framing, unknown token. The caller replies 400 and
// closes the connection.
type badRequestError struct {
	cause error
}

func (e *badRequestError) Error() string { return "bad request: " + e.cause.Error() }
func (e *badRequestError) Unwrap() error { return e.cause }

// BadRequest wraps err as a client-framing error.
func BadRequest(err error) error {
	return &badRequestError{cause: err}
}

// IsBadRequest reports whether err (or its cause chain) is a BadRequest.
func IsBadRequest(err error) bool {
	var target *badRequestError
	return errors.As(err, &target)
}

// serverError signals an unexpected server-side failure: temp file
// open/write failure, unrecoverable I/O. The caller replies 500 and
// closes the connection.
type serverError struct {
	cause error
}

func (e *serverError) Error() string { return "server error: " + e.cause.Error() }
func (e *serverError) Unwrap() error { return e.cause }

// ServerError wraps err as an unexpected server-side failure.
func ServerError(err error) error {
	return &serverError{cause: err}
}

// IsServerError reports whether err (or its cause chain) is a ServerError.
func IsServerError(err error) bool {
	var target *serverError
	return errors.As(err, &target)
}

// handlerError is a post-body logical failure (quota, size, filename,
// missing target). It never terminates the connection; it becomes a
// redirect carrying Code.
type handlerError struct {
	Code  ErrorCode
	cause error
}

func (e *handlerError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return "handler error"
}
func (e *handlerError) Unwrap() error { return e.cause }

// HandlerError wraps err (which may be nil) as a domain failure carrying code.
func HandlerError(code ErrorCode, err error) error {
	return &handlerError{Code: code, cause: err}
}

// AsHandlerCode extracts the ErrorCode from err if it is a HandlerError.
func AsHandlerCode(err error) (ErrorCode, bool) {
	var target *handlerError
	if errors.As(err, &target) {
		return target.Code, true
	}
	return 0, false
}
