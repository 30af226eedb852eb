package coap

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrDuplicatePath    = errors.New("duplicate resource path")
	ErrNotFound         = errors.New("resource not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrInternal         = errors.New("internal handler fault")
	ErrInvalidScheme    = errors.New("invalid scheme")
	ErrClosed           = errors.New("endpoint closed")
	ErrReset            = errors.New("wait response reset by peer")
	ErrTimeout          = errors.New("wait response timeout")
)

// TransportError 客户端传输层错误, 由调用方决定是否重试.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("coap %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is, or wraps, a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ParseError describes a payload that does not parse as the resource's value
// type. Resources answer it themselves with a BadRequest result carrying the
// message, so it never reaches dispatch.
type ParseError struct {
	Type  string
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: invalid value %q", e.Type, e.Input)
}

// errorCode maps a dispatch error onto the response code sent to the peer.
func errorCode(err error) Code {
	switch errors.Cause(err) {
	case ErrNotFound:
		return NotFound
	case ErrMethodNotAllowed:
		return MethodNotAllowed
	}
	return InternalServerError
}
