package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/synarere/internal/config"
)

// Exit codes for CLI commands. The last two follow sysexits(3).
const (
	ExitSuccess      = 0  // Successful execution
	ExitFailure      = 1  // The bot stopped with an error
	ExitCommandError = 2  // Command error (bad flags, refusing to run as root, etc.)
	ExitSoftware     = 70 // Internal I/O failure, see options.tbfile
	ExitConfig       = 78 // The configuration file was rejected
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code, one of the Exit constants
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Output writes command results as text or as one JSON document.
type Output struct {
	JSON    bool
	Stdout  io.Writer
	Stderr  io.Writer // progress lines; never mixed into a JSON document
	Verbose bool
}

// Response is the JSON document written for --format json.
type Response struct {
	Status  string   `json:"status"` // "ok" or "error"
	Data    any      `json:"data,omitempty"`
	Problem *Problem `json:"problem,omitempty"`
}

// Problem says why a configuration file was rejected.
type Problem struct {
	Code    string `json:"code"` // config error code, or MODULE
	Message string `json:"message"`
	File    string `json:"file"`
	At      string `json:"at,omitempty"` // schema position of the failed constraint
}

// problemOf describes err, returned while loading file.
func problemOf(file string, err error) Problem {
	p := Problem{Code: "MODULE", Message: err.Error(), File: file}
	var ce *config.Error
	if errors.As(err, &ce) {
		p.Code = ce.Code
		p.Message = ce.Message
		if ce.Pos.IsValid() {
			p.At = ce.Pos.String()
		}
	}
	return p
}

func (p Problem) String() string {
	if p.At != "" {
		return fmt.Sprintf("%s: %s: %s (at %s)", p.File, p.Code, p.Message, p.At)
	}
	return fmt.Sprintf("%s: %s: %s", p.File, p.Code, p.Message)
}

// Result writes data. Text output uses its String method when it has one.
func (o *Output) Result(data any) error {
	if o.JSON {
		return json.NewEncoder(o.Stdout).Encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(o.Stdout, data)
	return err
}

// Reject writes p.
func (o *Output) Reject(p Problem) error {
	if o.JSON {
		return json.NewEncoder(o.Stdout).Encode(Response{Status: "error", Problem: &p})
	}
	_, err := fmt.Fprintln(o.Stdout, p)
	return err
}

// Logf writes a progress line to Stderr when verbose.
func (o *Output) Logf(format string, args ...any) {
	if !o.Verbose || o.Stderr == nil {
		return
	}
	fmt.Fprintf(o.Stderr, format+"\n", args...)
}
