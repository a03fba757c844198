// Package printerr holds the failure taxonomy shared by the encoder, the
// connection manager and the HTTP layer.
package printerr

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed field supplied by the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// DecodeError reports an image payload that is not a valid, complete image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid image data: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TimeoutError reports a connect or write that did not finish in time.
type TimeoutError struct {
	Op   string // "connect", "write" or "probe"
	Addr string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("printer %s timed out during %s", e.Addr, e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NetworkError reports a printer that could not be reached at all.
type NetworkError struct {
	Addr string
	Code string // ECONNREFUSED, EHOSTUNREACH, ENETUNREACH, ENOTFOUND
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("printer %s unreachable: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("printer %s unreachable (%s): %v", e.Addr, e.Code, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolWriteError reports a write that failed after the connection was up.
type ProtocolWriteError struct {
	Addr    string
	Written int
	Err     error
}

func (e *ProtocolWriteError) Error() string {
	return fmt.Sprintf("write to printer %s failed after %d bytes: %v", e.Addr, e.Written, e.Err)
}

func (e *ProtocolWriteError) Unwrap() error { return e.Err }

// Kind classifies an error for status mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDecode
	KindTimeout
	KindNetwork
	KindProtocolWrite
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDecode:
		return "decode"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindProtocolWrite:
		return "protocol_write"
	default:
		return "unknown"
	}
}

// Retryable is true for failures where trying again later may succeed.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindNetwork
}

// KindOf returns the taxonomy member found in err's chain.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		decode     *DecodeError
		timeout    *TimeoutError
		network    *NetworkError
		write      *ProtocolWriteError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &network):
		return KindNetwork
	case errors.As(err, &write):
		return KindProtocolWrite
	case errors.As(err, &decode):
		return KindDecode
	case errors.As(err, &validation):
		return KindValidation
	default:
		return KindUnknown
	}
}
