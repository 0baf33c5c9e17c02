package utils

import (
	"fmt"

	"github.com/coldvault/agent/internal/types"
)

// Exit codes, per §6 and §7.
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitUnknown         = 1
)

// Error codes (stable, tool-owned), per §7's taxonomy.
const (
	ErrCodePreconditionFailure = "PRECONDITION_FAILURE"
	ErrCodeValidationError     = "VALIDATION_ERROR"
	ErrCodeIOError             = "IO_ERROR"
	ErrCodeRemoteError         = "REMOTE_ERROR"
	ErrCodeTransientRemote     = "TRANSIENT_REMOTE_ERROR"
	ErrCodeInvariantViolation  = "INVARIANT_VIOLATION"
	ErrCodeUnknown             = "UNKNOWN"
)

// CLIErrorBuilder constructs a types.CLIError with optional context.
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError starts building an error with the given stable code and message.
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode maps a stable error code to a process exit code. Per §6, every
// failure mode converges on exit code 1; the table exists so a future
// distinction (e.g. a dedicated code per taxonomy entry) is a one-line change.
func GetExitCode(errorCode string) int {
	if errorCode == "" {
		return ExitSuccess
	}
	return ExitValidationError
}

// AppError is a custom error type that carries structured CLI error info,
// used for the run-level failures (PreconditionFailure, ValidationError,
// InvariantViolation) that §7 says should abort the run.
type AppError struct {
	CLIError types.CLIError
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// NewAppError wraps a CLIError as a Go error.
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// NewPreconditionFailure builds the error raised when the remote CLI is
// missing or unauthenticated (§4.7 step 2).
func NewPreconditionFailure(message string) *AppError {
	return NewAppError(NewCLIError(ErrCodePreconditionFailure, message).Build())
}

// NewValidationError builds the error raised for invalid CLI arguments or
// cron expressions, surfaced before any work begins.
func NewValidationError(message string) *AppError {
	return NewAppError(NewCLIError(ErrCodeValidationError, message).Build())
}

// NewInvariantViolation builds the error raised for an internal bug that
// should never occur in practice.
func NewInvariantViolation(message string) *AppError {
	return NewAppError(NewCLIError(ErrCodeInvariantViolation, message).Build())
}
