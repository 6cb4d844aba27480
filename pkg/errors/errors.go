package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeRequired indicates that a required tree node reference was nil
	ErrNodeRequired = errors.New("node is required")

	// ErrVariantMismatch indicates that a node is not of the variant a builder expects
	ErrVariantMismatch = errors.New("node variant mismatch")

	// ErrInvalidConfig indicates that the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRequest indicates that a projection request could not be decoded or is incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotConnected indicates that the client is not connected to NATS
	ErrNotConnected = errors.New("not connected to NATS")
)

// Error codes carried by Error.Code.
const (
	CodeNodeRequired    = "NODE_REQUIRED"
	CodeVariantMismatch = "VARIANT_MISMATCH"
	CodeInvalidConfig   = "INVALID_CONFIG"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInternal        = "INTERNAL"
)

// Error represents a structured Hodos error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NodeRequired reports a nil node passed to op.
func NodeRequired(op string) *Error {
	return NewError(CodeNodeRequired, op, ErrNodeRequired)
}

// VariantMismatch reports a node of variant got passed to op which needs want.
func VariantMismatch(op, nodeID, want, got string) *Error {
	return NewError(CodeVariantMismatch,
		fmt.Sprintf("%s: node %q is %s, want %s", op, nodeID, got, want),
		ErrVariantMismatch)
}

// InvalidConfig reports a configuration problem.
func InvalidConfig(message string) *Error {
	return NewError(CodeInvalidConfig, message, ErrInvalidConfig)
}

// InvalidRequest reports a malformed projection request.
func InvalidRequest(message string, err error) *Error {
	if err == nil {
		err = ErrInvalidRequest
	} else {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return NewError(CodeInvalidRequest, message, err)
}

// Code returns the code of the first *Error in err's chain, or CodeInternal.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsVariantMismatch checks if an error is a variant mismatch error
func IsVariantMismatch(err error) bool {
	return errors.Is(err, ErrVariantMismatch)
}

// IsNodeRequired checks if an error is a missing node error
func IsNodeRequired(err error) bool {
	return errors.Is(err, ErrNodeRequired)
}
