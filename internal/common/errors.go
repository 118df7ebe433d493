package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource already exists")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrStorage      = errors.New("storage error")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream service error")
	ErrQueueFull    = errors.New("job queue is full")
	ErrUnsupported  = errors.New("unsupported file type")
)

// AppError tags a failure with a stable code (LLM_ERROR, QUEUE_FULL, ...)
// that clients can switch on. The sentinel in Cause decides the transport
// status.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// statusKinds is checked in order; the first sentinel found in the chain wins.
var statusKinds = []struct {
	target error
	code   codes.Code
}{
	{ErrNotFound, codes.NotFound},
	{ErrInvalidInput, codes.InvalidArgument},
	{ErrValidation, codes.InvalidArgument},
	{ErrUnsupported, codes.InvalidArgument},
	{ErrConflict, codes.AlreadyExists},
	{ErrQueueFull, codes.ResourceExhausted},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
	{ErrUpstream, codes.Unavailable},
}

// CodeOf classifies err. Errors that already carry a gRPC status keep it.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	for _, k := range statusKinds {
		if errors.Is(err, k.target) {
			return k.code
		}
	}
	return codes.Internal
}

// ToStatus converts a domain error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(CodeOf(err), err.Error())
}

func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalErrorf(format string, args ...any) error {
	return status.Errorf(codes.Internal, format, args...)
}
