package transcoder

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderrTail bounds how much tool output is kept in an error message
const maxStderrTail = 512

// ProbeError is returned when source metadata cannot be extracted
type ProbeError struct {
	Path   string
	Reason string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ", stderr: " + e.Stderr
	}
	return msg
}

func (e *ProbeError) Unwrap() error { return e.Err }

// EncodeError is returned when an ffmpeg invocation fails to start or exits non-zero
type EncodeError struct {
	Stage    string
	Output   string
	ExitCode int
	Spawn    bool
	Stderr   string
	Err      error
}

func (e *EncodeError) Error() string {
	var msg string
	if e.Spawn {
		msg = fmt.Sprintf("%s: failed to start ffmpeg for %s", e.Stage, e.Output)
	} else {
		msg = fmt.Sprintf("%s: ffmpeg exited with code %d for %s", e.Stage, e.ExitCode, e.Output)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ", stderr: " + e.Stderr
	}
	return msg
}

func (e *EncodeError) Unwrap() error { return e.Err }

// FileSystemError is returned when the artifact tree cannot be prepared or read
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

func newEncodeError(stage, output string, stderr []byte, err error) *EncodeError {
	encErr := &EncodeError{
		Stage:  stage,
		Output: output,
		Stderr: stderrTail(stderr),
		Err:    err,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		encErr.ExitCode = exitErr.ExitCode()
	} else {
		encErr.Spawn = true
	}
	return encErr
}

func stderrTail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > maxStderrTail {
		s = "..." + s[len(s)-maxStderrTail:]
	}
	return s
}
