package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/ranklist/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Check failed, scenarios failed, invalid definitions
	ExitCommandError = 2 // Bad arguments, unreadable config, database errors
)

// Error codes reported by the list commands. Config load errors keep the
// loader's own E0xx/E1xx codes.
const (
	ErrCodeUnknownList = "E201"
	ErrCodeOperation   = "E202"
	ErrCodeContiguity  = "E203"
	ErrCodeTestFailed  = "E_TEST_FAILED"
)

// ExitError ends a command with a process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error // may be nil
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code and message to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code carried by an ExitError anywhere in err's
// chain, and ExitFailure otherwise.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter prints command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; Writer when nil
	Verbose   bool
}

// CLIResponse is the envelope of every JSON result.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	OpID   string    `json:"op_id,omitempty"` // engine op ID of a mutation
}

// CLIError is a coded failure inside a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E202", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success prints data. Text output goes through fmt, so result types
// implement fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	return f.SuccessWithOp(data, "")
}

// SuccessWithOp prints the result of a mutation; JSON output carries opID.
func (f *OutputFormatter) SuccessWithOp(data any, opID string) error {
	if f.Format != "json" {
		fmt.Fprintln(f.Writer, data)
		return nil
	}
	return f.encode(CLIResponse{Status: "ok", Data: data, OpID: opID})
}

// Error prints a coded failure. Details are shown in text mode only with
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog writes a diagnostic line when --verbose is set. It never goes
// to Writer while ErrWriter is set, so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when it is unset.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// operationError reports a failed list operation and returns the exit
// error for it. Missing rows and unsaved records are the caller's mistake;
// everything else comes from the database.
func (f *OutputFormatter) operationError(err error) error {
	var details any
	var le *engine.ListError
	if errors.As(err, &le) {
		details = map[string]any{"code": string(le.Code), "op": le.Op, "table": le.Table, "id": le.ID}
	}
	if outErr := f.Error(ErrCodeOperation, err.Error(), details); outErr != nil {
		return outErr
	}
	code := ExitCommandError
	if engine.IsNotFound(err) || engine.IsValidationError(err) {
		code = ExitFailure
	}
	return WrapExitError(code, "operation failed", err)
}
